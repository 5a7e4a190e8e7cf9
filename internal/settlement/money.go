package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the minor unit exponent of USDC
const DefaultDecimals int32 = 6

// ParseMinorUnits converts a decimal price into an exact count of minor units.
// A price with more fractional digits than decimals is rejected with
// ErrPrecisionOverflow rather than truncated.
func ParseMinorUnits(price decimal.Decimal, decimals int32) (int64, error) {
	if decimals < 0 {
		return 0, fmt.Errorf("%w: negative token exponent %d", ErrInvalidAmount, decimals)
	}
	if price.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, price.String())
	}

	shifted := price.Shift(decimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d fractional digits", ErrPrecisionOverflow, price.String(), decimals)
	}

	minor := shifted.BigInt()
	if !minor.IsInt64() {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, price.String())
	}
	return minor.Int64(), nil
}

// ParsePrice parses a decimal string as sent by the UI into minor units
func ParsePrice(s string, decimals int32) (int64, error) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	return ParseMinorUnits(price, decimals)
}

// FormatMinorUnits renders minor units as a fixed-point decimal string
func FormatMinorUnits(amount int64, decimals int32) string {
	return decimal.New(amount, -decimals).StringFixed(decimals)
}
