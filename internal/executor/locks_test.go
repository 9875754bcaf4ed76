package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistryExclusive(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	unlock, err := r.Acquire(ctx, "exchange:binance", time.Second)
	require.NoError(t, err)

	// A second acquire on the same key must block until released.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(blocked, "exchange:binance", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A different key is independent.
	unlock2, err := r.Acquire(ctx, "exchange:kraken", time.Second)
	require.NoError(t, err)
	unlock2()

	unlock()
	unlock3, err := r.Acquire(ctx, "exchange:binance", time.Second)
	require.NoError(t, err)
	unlock3()
}

func TestLockRegistryUnlockIdempotent(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	unlock, err := r.Acquire(ctx, "exchange:binance", time.Second)
	require.NoError(t, err)
	unlock()
	unlock() // second call must not corrupt the slot

	unlock2, err := r.Acquire(ctx, "exchange:binance", time.Second)
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(blocked, "exchange:binance", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	unlock2()
}
