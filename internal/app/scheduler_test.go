package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecSlotsDisjointSetsRunConcurrently(t *testing.T) {
	slots := newExecSlots()

	require.True(t, slots.reserve([]string{"binance"}))
	require.True(t, slots.reserve([]string{"kraken", "coinbase"}))

	// Any overlap with an in-flight set is refused, and nothing from the
	// refused set is claimed.
	assert.False(t, slots.reserve([]string{"binance", "kraken"}))
	assert.False(t, slots.reserve([]string{"coinbase"}))

	slots.release([]string{"kraken", "coinbase"})
	assert.True(t, slots.reserve([]string{"coinbase"}))
	assert.True(t, slots.reserve([]string{"kraken"}))
}

func TestExecSlotsFailedReserveClaimsNothing(t *testing.T) {
	slots := newExecSlots()
	require.True(t, slots.reserve([]string{"binance"}))

	// kraken appears after the conflicting binance entry; it must stay free.
	require.False(t, slots.reserve([]string{"binance", "kraken"}))
	assert.True(t, slots.reserve([]string{"kraken"}))
}
