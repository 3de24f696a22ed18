package redlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/git-hulk/go-redlock/redlock/node"
)

var errConnRefused = errors.New("connection refused")

// countingNode counts the primitive calls made on the wrapped node.
type countingNode struct {
	node.Node

	sets    atomic.Int32
	deletes atomic.Int32
}

func (n *countingNode) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n.sets.Inc()
	return n.Node.SetIfAbsent(ctx, key, value, ttl)
}

func (n *countingNode) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n.deletes.Inc()
	return n.Node.CompareAndDelete(ctx, key, value)
}

// downNode never answers before its context ends.
type downNode struct {
	name string
}

func (n *downNode) Name() string { return n.name }

func (n *downNode) SetIfAbsent(ctx context.Context, _, _ string, _ time.Duration) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (n *downNode) CompareAndDelete(ctx context.Context, _, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// refusingNode fails right away.
type refusingNode struct {
	name string
}

func (n *refusingNode) Name() string { return n.name }

func (n *refusingNode) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errConnRefused
}

func (n *refusingNode) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errConnRefused
}

// slowNode steps the fake clock before answering, simulating latency that
// the manager measures through its injected clock.
type slowNode struct {
	node.Node

	clock   *clocktesting.FakeClock
	latency time.Duration
}

func (n *slowNode) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n.clock.Step(n.latency)
	return n.Node.SetIfAbsent(ctx, key, value, ttl)
}

// sleepyNode really sleeps before answering, used to shuffle the order in
// which concurrent attempts reach each node.
type sleepyNode struct {
	node.Node

	delay time.Duration
}

func (n *sleepyNode) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	select {
	case <-time.After(n.delay):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return n.Node.SetIfAbsent(ctx, key, value, ttl)
}

func newMemoryNodes(count int, c clock.PassiveClock) []*node.Memory {
	nodes := make([]*node.Memory, count)
	for i := range nodes {
		nodes[i] = node.NewMemory(fmt.Sprintf("mem-%d", i), c)
	}
	return nodes
}

func asNodes[T node.Node](in []T) []node.Node {
	out := make([]node.Node, len(in))
	for i, n := range in {
		out[i] = n
	}
	return out
}

// maxJitter always picks the longest possible backoff.
type maxJitter struct {
	calls atomic.Int32
}

func (j *maxJitter) Int63n(n int64) int64 {
	j.calls.Inc()
	return n - 1
}
