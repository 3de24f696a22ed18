package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const aerospikeHost = "localhost:3000"

func newAerospikeNode(t *testing.T) *Aerospike {
	nodes, err := DialAerospike(context.Background(), []string{aerospikeHost}, "test")
	if err != nil {
		t.Skipf("aerospike is not reachable at %s: %v", aerospikeHost, err)
	}
	t.Cleanup(func() { _ = CloseAll(nodes) })
	return nodes[0].(*Aerospike)
}

func TestAerospikeSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	n := newAerospikeNode(t)
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

	deleted, err = n.CompareAndDelete(ctx, key, "token-1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestDialAerospikeBadAddress(t *testing.T) {
	_, err := DialAerospike(context.Background(), []string{"localhost"}, "test")
	require.Error(t, err)

	_, err = DialAerospike(context.Background(), nil, "test")
	require.ErrorIs(t, err, ErrNoNodes)
}
