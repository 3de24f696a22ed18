package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestMutex(t *testing.T) {
	ctx := context.Background()
	fakeClock := clocktesting.NewFakeClock(time.Now())
	memNodes := newMemoryNodes(3, fakeClock)
	m, err := New(asNodes(memNodes), &Options{Clock: fakeClock, RetryCount: NoRetry})
	require.NoError(t, err)

	mu1 := m.NewMutex("res", time.Second)
	mu2 := m.NewMutex("res", time.Second)
	require.Equal(t, "res", mu1.Key())
	require.Equal(t, time.Second, mu1.Timeout())
	require.False(t, mu1.IsLocked())
	require.Empty(t, mu1.ID())

	require.NoError(t, mu1.TryLock(ctx))
	require.True(t, mu1.IsLocked())
	require.NotEmpty(t, mu1.ID())
	require.ErrorIs(t, mu1.TryLock(ctx), ErrLockHeld)

	require.ErrorIs(t, mu2.TryLock(ctx), ErrCannotObtainLock)
	require.False(t, mu2.IsLocked())
	require.ErrorIs(t, mu2.Release(ctx), ErrNotLockHolder)

	require.NoError(t, mu1.Release(ctx))
	require.False(t, mu1.IsLocked())
	require.ErrorIs(t, mu1.Release(ctx), ErrNotLockHolder)

	require.NoError(t, mu2.TryLock(ctx))
	token := mu2.ID()

	// mu2 only holds a stale lock once its validity is over
	fakeClock.Step(2 * time.Second)
	require.False(t, mu2.IsLocked())
	require.NoError(t, mu1.TryLock(ctx))
	require.NotEqual(t, token, mu1.ID())

	// releasing the stale lock leaves the new owner alone
	require.NoError(t, mu2.Release(ctx))
	require.True(t, mu1.IsLocked())
	for _, n := range memNodes {
		value, ok := n.Get("res")
		require.True(t, ok)
		require.Equal(t, mu1.ID(), value)
	}
	require.NoError(t, mu1.Release(ctx))
}
