package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFeeSplitConserves(t *testing.T) {
	amounts := []uint64{0, 1, 99, 100, 101, 1000, 12345, 1 << 32}
	for pct := 0; pct <= 100; pct++ {
		for _, amount := range amounts {
			fee, payout := FeeSplit(amount, pct)
			assert.Equal(t, amount, fee+payout, "amount=%d pct=%d", amount, pct)
			assert.LessOrEqual(t, fee, amount)
		}
	}
}

func TestFeeSplitRoundsDown(t *testing.T) {
	fee, payout := FeeSplit(199, 5)
	assert.Equal(t, uint64(9), fee) // floor(199*5/100)
	assert.Equal(t, uint64(190), payout)

	fee, payout = FeeSplit(100, 0)
	assert.Equal(t, uint64(0), fee)
	assert.Equal(t, uint64(100), payout)

	fee, payout = FeeSplit(100, 100)
	assert.Equal(t, uint64(100), fee)
	assert.Equal(t, uint64(0), payout)
}

func TestFeeSplitLargeAmounts(t *testing.T) {
	// Amounts above ~1.8e17 would wrap a naive amount*pct product.
	fee, payout := FeeSplit(math.MaxUint64, 100)
	assert.Equal(t, uint64(math.MaxUint64), fee)
	assert.Equal(t, uint64(0), payout)

	fee, payout = FeeSplit(math.MaxUint64, 1)
	assert.Equal(t, uint64(184467440737095516), fee) // floor(MaxUint64/100)
	assert.Equal(t, uint64(math.MaxUint64)-fee, payout)

	fee, payout = FeeSplit(1<<63, 5)
	assert.Equal(t, uint64(461168601842738790), fee)
	assert.Equal(t, uint64(1<<63)-fee, payout)
}

func TestOutbidsCurrentIsStrict(t *testing.T) {
	assert.False(t, OutbidsCurrent(100, 99))
	assert.False(t, OutbidsCurrent(100, 100))
	assert.True(t, OutbidsCurrent(100, 101))
}

func TestExpiredOrUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Used wins regardless of expiry.
	assert.True(t, ExpiredOrUsed(now.Add(time.Hour), true, now))

	// Strictly after the expiry instant.
	assert.False(t, ExpiredOrUsed(now, false, now))
	assert.False(t, ExpiredOrUsed(now.Add(time.Second), false, now))
	assert.True(t, ExpiredOrUsed(now.Add(-time.Second), false, now))
}
