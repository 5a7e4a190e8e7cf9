package settlement

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FeeRate is the treasury's share of every sale as a fraction
type FeeRate struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// Validate rejects a zero denominator and rates above 100%
func (r FeeRate) Validate() error {
	if r.Denominator == 0 {
		return fmt.Errorf("%w: zero denominator", ErrInvalidFeeRate)
	}
	if r.Numerator > r.Denominator {
		return fmt.Errorf("%w: %d/%d exceeds 100%%", ErrInvalidFeeRate, r.Numerator, r.Denominator)
	}
	return nil
}

// Split divides total between payee and treasury.
// The treasury share is floored so the payee absorbs any remainder, which
// keeps payee + treasury == total for every non-negative total.
func (r FeeRate) Split(total int64) (payee, treasury int64, err error) {
	if err := r.Validate(); err != nil {
		return 0, 0, err
	}
	if total < 0 {
		return 0, 0, fmt.Errorf("%w: %d is negative", ErrInvalidAmount, total)
	}
	if total == 0 {
		return 0, 0, nil
	}

	share := new(uint256.Int).Mul(uint256.NewInt(uint64(total)), uint256.NewInt(r.Numerator))
	share.Div(share, uint256.NewInt(r.Denominator))

	// share <= total because Numerator <= Denominator
	treasury = int64(share.Uint64())
	return total - treasury, treasury, nil
}

func (r FeeRate) String() string {
	return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
}
