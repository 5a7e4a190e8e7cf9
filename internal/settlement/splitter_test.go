package settlement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tenPercent = FeeRate{Numerator: 10, Denominator: 100}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		rate     FeeRate
		total    int64
		payee    int64
		treasury int64
	}{
		{"round amount", tenPercent, 1_000_000, 900_000, 100_000},
		{"remainder goes to payee", tenPercent, 101, 91, 10},
		{"below one fee unit", tenPercent, 9, 9, 0},
		{"zero", tenPercent, 0, 0, 0},
		{"one unit", tenPercent, 1, 1, 0},
		{"no fee", FeeRate{Numerator: 0, Denominator: 1}, 500, 500, 0},
		{"full fee", FeeRate{Numerator: 1, Denominator: 1}, 500, 0, 500},
		{"odd rate", FeeRate{Numerator: 1, Denominator: 3}, 100, 67, 33},
		{"max int64", tenPercent, math.MaxInt64, math.MaxInt64 - math.MaxInt64/10, math.MaxInt64 / 10},
		{"product above 64 bits", FeeRate{Numerator: math.MaxUint64 - 1, Denominator: math.MaxUint64}, math.MaxInt64, 1, math.MaxInt64 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payee, treasury, err := tt.rate.Split(tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.payee, payee)
			assert.Equal(t, tt.treasury, treasury)
		})
	}
}

func TestSplitConservesTotal(t *testing.T) {
	rates := []FeeRate{tenPercent, {Numerator: 7, Denominator: 1000}, {Numerator: 2, Denominator: 3}}
	for _, rate := range rates {
		for total := int64(0); total < 2_000; total += 7 {
			payee, treasury, err := rate.Split(total)
			require.NoError(t, err)
			assert.Equal(t, total, payee+treasury, "rate %s total %d", rate, total)
			assert.GreaterOrEqual(t, payee, int64(0))
			assert.GreaterOrEqual(t, treasury, int64(0))
		}
	}
}

func TestSplitConservesLargeTotals(t *testing.T) {
	rates := []FeeRate{
		tenPercent,
		{Numerator: 2, Denominator: 3},
		{Numerator: 1, Denominator: math.MaxUint64},
		{Numerator: math.MaxUint64 / 3, Denominator: math.MaxUint64 - 5},
		{Numerator: math.MaxUint64, Denominator: math.MaxUint64},
	}
	for _, rate := range rates {
		for delta := int64(0); delta < 2_000; delta += 13 {
			total := int64(math.MaxInt64) - delta
			payee, treasury, err := rate.Split(total)
			require.NoError(t, err)
			assert.Equal(t, total, payee+treasury, "rate %s total %d", rate, total)
			assert.GreaterOrEqual(t, payee, int64(0))
			assert.GreaterOrEqual(t, treasury, int64(0))
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	p1, t1, err := tenPercent.Split(123_456_789)
	require.NoError(t, err)
	p2, t2, err := tenPercent.Split(123_456_789)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, t1, t2)
}

func TestSplitRejects(t *testing.T) {
	_, _, err := tenPercent.Split(-1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = FeeRate{Numerator: 1, Denominator: 0}.Split(100)
	assert.ErrorIs(t, err, ErrInvalidFeeRate)

	_, _, err = FeeRate{Numerator: 3, Denominator: 2}.Split(100)
	assert.ErrorIs(t, err, ErrInvalidFeeRate)
}
