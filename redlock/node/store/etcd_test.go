package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/git-hulk/go-redlock/redlock"
	"github.com/git-hulk/go-redlock/redlock/node"
)

const etcdEndpoint = "localhost:2379"

func newEtcdNode(t *testing.T) *Etcd {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	nodes, err := DialEtcd(ctx, []string{etcdEndpoint})
	if err != nil {
		t.Skipf("etcd is not reachable at %s: %v", etcdEndpoint, err)
	}
	t.Cleanup(func() { _ = CloseAll(nodes) })
	return nodes[0].(*Etcd)
}

func TestEtcdSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	n := newEtcdNode(t)
	key := "redlock-test-" + uuid.NewString()

	ok, err := n.SetIfAbsent(ctx, key, "token-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = n.SetIfAbsent(ctx, key, "token-2", time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err := n.CompareAndDelete(ctx, key, "token-2")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = n.CompareAndDelete(ctx, key, "token-1")
	require.NoError(t, err)
	require.True(t, deleted)

	ok, err = n.SetIfAbsent(ctx, key, "token-2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// the lease lets the key expire on its own
	require.Eventually(t, func() bool {
		ok, err := n.SetIfAbsent(ctx, key, "token-3", time.Second)
		return err == nil && ok
	}, 5*time.Second, 200*time.Millisecond)
}

func TestManagerOverEtcd(t *testing.T) {
	ctx := context.Background()
	n := newEtcdNode(t)
	resource := "redlock-test-" + uuid.NewString()

	m, err := redlock.New([]node.Node{n}, nil)
	require.NoError(t, err)
	err = m.WithLock(ctx, resource, 2*time.Second, func(ctx context.Context) error {
		_, err := m.Acquire(ctx, resource, 2*time.Second)
		require.ErrorIs(t, err, redlock.ErrCannotObtainLock)
		return nil
	})
	require.NoError(t, err)
}
