package redlock

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/git-hulk/go-redlock/internal"
	"github.com/git-hulk/go-redlock/metrics"
	"github.com/git-hulk/go-redlock/redlock/node"
)

const tracerName = "github.com/git-hulk/go-redlock/redlock"

// Manager acquires and releases locks on a majority of independent nodes.
// It keeps no per-lock state and is safe for concurrent use, for the same
// resource as well as for different ones.
//
// A Manager with a single node is allowed, it then degrades to plain
// single-instance locking without any extra safety.
type Manager struct {
	nodes  []node.Node
	quorum int
	opts   *Options
	tracer trace.Tracer
}

// New creates a Manager over nodes. The order of nodes does not matter but
// every node counts toward the quorum, reachable or not.
func New(nodes []node.Node, opts *Options) (*Manager, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidConfiguration)
	}
	for i, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("%w: node %d is nil", ErrInvalidConfiguration, i)
		}
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Manager{
		nodes:  append([]node.Node(nil), nodes...),
		quorum: Quorum(len(nodes)),
		opts:   o,
		tracer: o.TracerProvider.Tracer(tracerName),
	}, nil
}

// Quorum returns how many nodes must accept a lock.
func (m *Manager) Quorum() int {
	return m.quorum
}

// Nodes returns a copy of the configured nodes.
func (m *Manager) Nodes() []node.Node {
	return append([]node.Node(nil), m.nodes...)
}

// Acquire tries to lock resource for ttl on a quorum of nodes. It makes up to
// RetryCount+1 attempts, each with a fresh token, and returns
// ErrCannotObtainLock once they are all spent.
func (m *Manager) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	if resource == "" {
		return nil, fmt.Errorf("%w: empty resource", ErrInvalidConfiguration)
	}
	if ttl < time.Millisecond {
		return nil, fmt.Errorf("%w: ttl %s is shorter than 1ms", ErrInvalidConfiguration, ttl)
	}

	ctx, span := m.tracer.Start(ctx, "Manager.Acquire", trace.WithAttributes(
		attribute.String("redlock.resource", resource),
		attribute.Int64("redlock.ttl_ms", ttl.Milliseconds()),
		attribute.Int("redlock.quorum", m.quorum),
	))
	defer span.End()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.maxAcquireTime(ttl))
		defer cancel()
	}

	start := time.Now()
	defer func() {
		metrics.AcquireDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		attempts int
		lastErr  error
	)
	for attempts < m.opts.RetryCount+1 {
		if attempts > 0 {
			if err := sleep(ctx, backoff(m.opts.Jitter, m.opts.RetryDelay)); err != nil {
				lastErr = err
				break
			}
		}
		attempts++
		metrics.AcquireAttempts.Inc()

		token, err := NewToken(m.opts.Random)
		if err != nil {
			metrics.AcquireTotal.WithLabelValues(metrics.StatusFailure).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "token generation failed")
			return nil, fmt.Errorf("generate token: %w", err)
		}
		lock, err := m.tryAcquire(ctx, resource, token, ttl)
		if err == nil {
			span.SetAttributes(attribute.Int("redlock.attempts", attempts))
			metrics.AcquireTotal.WithLabelValues(metrics.StatusSuccess).Inc()
			return lock, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	span.SetAttributes(attribute.Int("redlock.attempts", attempts))
	span.SetStatus(codes.Error, ErrCannotObtainLock.Error())
	metrics.AcquireTotal.WithLabelValues(metrics.StatusFailure).Inc()
	return nil, fmt.Errorf("%w: resource %q after %d attempts: %w", ErrCannotObtainLock, resource, attempts, lastErr)
}

// tryAcquire runs a single attempt. On failure every node is asked to drop
// the token, including the ones that never confirmed it.
func (m *Manager) tryAcquire(ctx context.Context, resource, token string, ttl time.Duration) (*Lock, error) {
	start := m.opts.Clock.Now()
	results := m.fanout(ctx, m.opts.nodeTimeout(ttl), metrics.OpSetIfAbsent, func(ctx context.Context, n node.Node) (bool, error) {
		return n.SetIfAbsent(ctx, resource, token, ttl)
	})
	elapsed := m.opts.Clock.Since(start)

	successes := countOK(results)
	validity := (ttl - elapsed - m.opts.drift(ttl)).Truncate(time.Millisecond)
	if successes >= m.quorum && validity > 0 {
		return &Lock{
			resource:   resource,
			token:      token,
			validity:   validity,
			acquiredAt: start,
		}, nil
	}

	m.cleanup(ctx, resource, token, m.opts.nodeTimeout(ttl))
	return nil, fmt.Errorf("%d of %d nodes accepted (quorum %d), validity %s",
		successes, len(m.nodes), m.quorum, validity)
}

// cleanup removes token from every node after a failed attempt. It outlives
// the caller's cancellation since leftovers would otherwise block others
// until they expire.
func (m *Manager) cleanup(ctx context.Context, resource, token string, timeout time.Duration) {
	ctx = context.WithoutCancel(ctx)
	results := m.fanout(ctx, timeout, metrics.OpCompareAndDelete, func(ctx context.Context, n node.Node) (bool, error) {
		return n.CompareAndDelete(ctx, resource, token)
	})
	for i, r := range results {
		if r.err != nil {
			internal.GetLogger().Printf("Failed to clean up resource[%s] on node[%s], it will expire on its own, err: %v",
				resource, m.nodes[i].Name(), r.err)
		}
	}
}

// Release deletes the lock on every node still holding its token. It only
// fails with ErrReleaseUnreachable when no node answered at all; nodes that
// missed the release simply let the key expire. Releasing twice, or
// releasing an expired lock, is harmless.
func (m *Manager) Release(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return fmt.Errorf("%w: nil lock", ErrInvalidConfiguration)
	}
	_, err := m.release(ctx, lock.resource, lock.token)
	return err
}

// ReleaseConfirmed works like Release and also reports whether a quorum of
// nodes actually deleted the token.
func (m *Manager) ReleaseConfirmed(ctx context.Context, lock *Lock) (bool, error) {
	if lock == nil {
		return false, fmt.Errorf("%w: nil lock", ErrInvalidConfiguration)
	}
	deleted, err := m.release(ctx, lock.resource, lock.token)
	if err != nil {
		return false, err
	}
	return deleted >= m.quorum, nil
}

// ReleaseToken releases a lock known only by its resource and token, e.g.
// one acquired by another process.
func (m *Manager) ReleaseToken(ctx context.Context, resource, token string) error {
	if resource == "" || token == "" {
		return fmt.Errorf("%w: resource and token are required", ErrInvalidConfiguration)
	}
	_, err := m.release(ctx, resource, token)
	return err
}

func (m *Manager) release(ctx context.Context, resource, token string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Release", trace.WithAttributes(
		attribute.String("redlock.resource", resource),
	))
	defer span.End()

	results := m.fanout(ctx, m.opts.NodeTimeout, metrics.OpCompareAndDelete, func(ctx context.Context, n node.Node) (bool, error) {
		return n.CompareAndDelete(ctx, resource, token)
	})

	var (
		errs             error
		reached, deleted int
	)
	for _, r := range results {
		if r.err != nil {
			errs = multierr.Append(errs, r.err)
			continue
		}
		reached++
		if r.ok {
			deleted++
		}
	}
	span.SetAttributes(attribute.Int("redlock.reached", reached), attribute.Int("redlock.deleted", deleted))
	if reached == 0 {
		span.SetStatus(codes.Error, ErrReleaseUnreachable.Error())
		metrics.ReleaseTotal.WithLabelValues(metrics.StatusUnreachable).Inc()
		return 0, fmt.Errorf("%w: %w", ErrReleaseUnreachable, errs)
	}
	if errs != nil {
		internal.GetLogger().Printf("Released resource[%s] on %d of %d nodes, err: %v", resource, reached, len(m.nodes), errs)
	}
	metrics.ReleaseTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	return deleted, nil
}

// WithLock runs fn while holding resource. The context given to fn ends
// with the validity window of the lock, and the lock is released when fn
// returns.
func (m *Manager) WithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	lock, err := m.Acquire(ctx, resource, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := m.Release(context.WithoutCancel(ctx), lock); releaseErr != nil {
			err = multierr.Append(err, releaseErr)
		}
	}()

	fnCtx, cancel := context.WithDeadline(ctx, lock.Until())
	defer cancel()
	return fn(fnCtx)
}

type result struct {
	ok  bool
	err error
}

type nodeOp func(ctx context.Context, n node.Node) (bool, error)

// fanout runs op on every node concurrently and waits for all of them; the
// caller needs the exact count. Each call is bounded by timeout even if the
// node ignores its context.
func (m *Manager) fanout(ctx context.Context, timeout time.Duration, opName string, op nodeOp) []result {
	results := make([]result, len(m.nodes))
	var g errgroup.Group
	for i, n := range m.nodes {
		i, n := i, n
		g.Go(func() error {
			ok, err := callWithTimeout(ctx, timeout, n, op)
			metrics.ObserveNodeOp(opName, ok, err)
			if err != nil {
				err = fmt.Errorf("%w: %s: %w", node.ErrNodeUnreachable, n.Name(), err)
			}
			results[i] = result{ok: ok && err == nil, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func callWithTimeout(ctx context.Context, timeout time.Duration, n node.Node, op nodeOp) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		ok, err := op(ctx, n)
		done <- result{ok: ok, err: err}
	}()
	select {
	case r := <-done:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func countOK(results []result) int {
	count := 0
	for _, r := range results {
		if r.ok {
			count++
		}
	}
	return count
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
