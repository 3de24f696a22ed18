package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/git-hulk/go-redlock/redlock"
	"github.com/git-hulk/go-redlock/redlock/node"
)

func newRedisNode(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(mr.Addr(), client), mr
}

func TestRedisSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	n, mr := newRedisNode(t)

	ok, err := n.SetIfAbsent(ctx, "resource", "token-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := mr.Get("resource")
	require.NoError(t, err)
	require.Equal(t, "token-1", got)
	require.Greater(t, mr.TTL("resource"), time.Duration(0))

	ok, err = n.SetIfAbsent(ctx, "resource", "token-2", time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(time.Second)
	ok, err = n.SetIfAbsent(ctx, "resource", "token-2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = n.SetIfAbsent(ctx, "resource", "token-3", time.Microsecond)
	require.ErrorIs(t, err, node.ErrInvalidTTL)
}

func TestRedisCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	n, mr := newRedisNode(t)

	deleted, err := n.CompareAndDelete(ctx, "resource", "token-1")
	require.NoError(t, err)
	require.False(t, deleted)

	ok, err := n.SetIfAbsent(ctx, "resource", "token-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err = n.CompareAndDelete(ctx, "resource", "token-2")
	require.NoError(t, err)
	require.False(t, deleted)
	require.True(t, mr.Exists("resource"))

	deleted, err = n.CompareAndDelete(ctx, "resource", "token-1")
	require.NoError(t, err)
	require.True(t, deleted)
	require.False(t, mr.Exists("resource"))
}

func TestRedisNodeDown(t *testing.T) {
	ctx := context.Background()
	n, mr := newRedisNode(t)
	mr.Close()

	_, err := n.SetIfAbsent(ctx, "resource", "token", time.Second)
	require.Error(t, err)
	_, err = n.CompareAndDelete(ctx, "resource", "token")
	require.Error(t, err)
	require.Error(t, n.Ping(ctx))
}

func TestDialRedis(t *testing.T) {
	ctx := context.Background()

	_, err := DialRedis(ctx, nil)
	require.ErrorIs(t, err, ErrNoNodes)

	_, err = DialRedis(ctx, []string{"ftp://localhost:6379"})
	require.Error(t, err)

	down := miniredis.RunT(t)
	downURL := "redis://" + down.Addr()
	down.Close()
	_, err = DialRedis(ctx, []string{downURL})
	require.ErrorIs(t, err, ErrNoReachableNode)

	up := miniredis.RunT(t)
	nodes, err := DialRedis(ctx, []string{"redis://" + up.Addr(), downURL})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, up.Addr(), nodes[0].Name())
	require.NoError(t, CloseAll(nodes))
}

func TestManagerOverRedis(t *testing.T) {
	ctx := context.Background()
	servers := make([]*miniredis.Miniredis, 3)
	urls := make([]string, 3)
	for i := range servers {
		servers[i] = miniredis.RunT(t)
		urls[i] = "redis://" + servers[i].Addr()
	}
	nodes, err := DialRedis(ctx, urls)
	require.NoError(t, err)
	defer func() { _ = CloseAll(nodes) }()

	m, err := redlock.New(nodes, &redlock.Options{RetryCount: redlock.NoRetry})
	require.NoError(t, err)

	lock, err := m.Acquire(ctx, "orders", 10*time.Second)
	require.NoError(t, err)
	for _, mr := range servers {
		got, err := mr.Get("orders")
		require.NoError(t, err)
		require.Equal(t, lock.Token(), got)
	}

	_, err = m.Acquire(ctx, "orders", 10*time.Second)
	require.ErrorIs(t, err, redlock.ErrCannotObtainLock)

	require.NoError(t, m.Release(ctx, lock))
	for _, mr := range servers {
		require.False(t, mr.Exists("orders"))
	}

	// a single server down still leaves a quorum
	servers[2].Close()
	lock, err = m.Acquire(ctx, "orders", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, lock))
}
