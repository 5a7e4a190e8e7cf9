package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1", 1_000_000},
		{"0.5", 500_000},
		{"12.345678", 12_345_678},
		{"0.000001", 1},
		{"0", 0},
		{"250.100000", 250_100_000},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in, DefaultDecimals)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePriceRejects(t *testing.T) {
	_, err := ParsePrice("0.0000001", DefaultDecimals)
	assert.ErrorIs(t, err, ErrPrecisionOverflow)

	_, err = ParsePrice("1.2345678", DefaultDecimals)
	assert.ErrorIs(t, err, ErrPrecisionOverflow)

	_, err = ParsePrice("-1", DefaultDecimals)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParsePrice("abc", DefaultDecimals)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParsePrice("99999999999999999999", DefaultDecimals)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseMinorUnits(decimal.NewFromInt(1), -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseMinorUnitsOtherExponents(t *testing.T) {
	got, err := ParseMinorUnits(decimal.RequireFromString("1.5"), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000_000), got)

	got, err = ParseMinorUnits(decimal.RequireFromString("42"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	_, err = ParseMinorUnits(decimal.RequireFromString("4.2"), 0)
	assert.ErrorIs(t, err, ErrPrecisionOverflow)
}

func TestFormatMinorUnits(t *testing.T) {
	assert.Equal(t, "1.000000", FormatMinorUnits(1_000_000, DefaultDecimals))
	assert.Equal(t, "0.000091", FormatMinorUnits(91, DefaultDecimals))
	assert.Equal(t, "42", FormatMinorUnits(42, 0))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, CodeInvalidAmount, ErrorCode(ErrInvalidAmount))
	assert.Equal(t, CodeInvalidAmount, ErrorCode(ErrInvalidFeeRate))
	assert.Equal(t, CodePrecisionOverflow, ErrorCode(ErrPrecisionOverflow))
	assert.Equal(t, CodeProvisioningUnavailable, ErrorCode(ErrProvisioningUnavailable))
	assert.Equal(t, CodeSettlementFailed, ErrorCode(ErrSettlementFailed))
	assert.Equal(t, CodeInvalidPlan, ErrorCode(ErrInvalidPlan))
	assert.Equal(t, CodeCancelled, ErrorCode(ErrCancelled))
	assert.Equal(t, CodeInternal, ErrorCode(assert.AnError))

	assert.True(t, Retryable(ErrProvisioningUnavailable))
	assert.False(t, Retryable(ErrInvalidAmount))
}
