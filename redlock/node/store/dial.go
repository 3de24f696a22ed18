package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/git-hulk/go-redlock/internal"
	"github.com/git-hulk/go-redlock/redlock/node"
)

const pingTimeout = 2 * time.Second

// Pinger is implemented by nodes able to check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// dialAll opens one node per address. Unreachable nodes are kept since they
// still count toward the quorum, the dial only fails when none answers.
func dialAll(ctx context.Context, addrs []string, open func(addr string) (node.Node, error)) ([]node.Node, error) {
	if len(addrs) == 0 {
		return nil, ErrNoNodes
	}

	nodes := make([]node.Node, 0, len(addrs))
	reachable := 0
	var errs error
	for _, addr := range addrs {
		n, err := open(addr)
		if err != nil {
			_ = CloseAll(nodes)
			return nil, fmt.Errorf("open node %q: %w", addr, err)
		}
		nodes = append(nodes, n)

		if err := ping(ctx, n); err != nil {
			internal.GetLogger().Printf("Node[%s] is unreachable, err: %v", n.Name(), err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		reachable++
	}
	if reachable == 0 {
		_ = CloseAll(nodes)
		return nil, fmt.Errorf("%w: %w", ErrNoReachableNode, errs)
	}
	return nodes, nil
}

func ping(ctx context.Context, n node.Node) error {
	p, ok := n.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// CloseAll closes every node holding a connection.
func CloseAll(nodes []node.Node) error {
	var errs error
	for _, n := range nodes {
		if c, ok := n.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}

// ttlSeconds rounds ttl up to whole seconds for stores without millisecond
// expiry. A node keeping a key longer than asked never breaks safety.
func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64((ttl + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
