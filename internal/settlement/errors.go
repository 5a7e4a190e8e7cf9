package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAmount is a caller error: negative, zero, non-finite or out of range amount
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrPrecisionOverflow is returned when a price is finer than the token's minor unit
	ErrPrecisionOverflow = errors.New("price precision exceeds token minor unit")
	// ErrProvisioningUnavailable is returned when account existence could not be determined
	ErrProvisioningUnavailable = errors.New("receiving account lookup unavailable")
	// ErrSettlementFailed is returned when the execution environment rejected the plan
	ErrSettlementFailed = errors.New("settlement failed")
	// ErrInvalidPlan is returned when a plan cannot guarantee its transfer destinations
	ErrInvalidPlan = errors.New("invalid settlement plan")
	// ErrInvalidFeeRate is returned for a zero denominator or a rate above 100%
	ErrInvalidFeeRate = errors.New("invalid fee rate")
	// ErrCancelled is returned when the caller gave up before the plan was submitted
	ErrCancelled = errors.New("settlement cancelled before submission")
	// ErrUnsupportedToken is returned for a token other than the configured settlement token
	ErrUnsupportedToken = errors.New("unsupported settlement token")
	// ErrSettlementPending is returned when the environment accepted the plan
	// but did not report an outcome before the submit deadline
	ErrSettlementPending = errors.New("settlement pending confirmation")
)

// Error codes handed to the UI in Result.Code
const (
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodePrecisionOverflow       = "PRECISION_OVERFLOW"
	CodeProvisioningUnavailable = "PROVISIONING_UNAVAILABLE"
	CodeSettlementFailed        = "SETTLEMENT_FAILED"
	CodeInvalidPlan             = "INVALID_PLAN"
	CodeCancelled               = "SETTLEMENT_CANCELLED"
	CodeSettlementPending       = "SETTLEMENT_PENDING"
	CodeUnsupportedToken        = "UNSUPPORTED_TOKEN"
	CodeInternal                = "INTERNAL"
)

// AccountExistsError is reported by the execution environment when a plan
// tries to create a receiving account that another plan created first.
// Accounts may be empty when the environment cannot tell which one.
type AccountExistsError struct {
	Accounts []Party
}

func (e *AccountExistsError) Error() string {
	if len(e.Accounts) == 0 {
		return "receiving account already exists"
	}
	names := make([]string, len(e.Accounts))
	for i, acc := range e.Accounts {
		names[i] = string(acc)
	}
	return "receiving account already exists: " + strings.Join(names, ", ")
}

// PendingError is reported by the execution environment when a submitted
// plan has a reference but no confirmed outcome yet. The plan may still
// apply, so it must not be resubmitted.
type PendingError struct {
	Reference string
	Err       error
}

func (e *PendingError) Error() string {
	if e.Err == nil {
		return "transaction " + e.Reference + " not confirmed"
	}
	return "transaction " + e.Reference + " not confirmed: " + e.Err.Error()
}

func (e *PendingError) Unwrap() []error {
	return []error{ErrSettlementPending, e.Err}
}

func planError(index int, reason string) error {
	return fmt.Errorf("%w: step %d: %s", ErrInvalidPlan, index, reason)
}

// ErrorCode maps an error returned by this package to its stable UI code
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSettlementPending):
		return CodeSettlementPending
	case errors.Is(err, ErrUnsupportedToken):
		return CodeUnsupportedToken
	case errors.Is(err, ErrPrecisionOverflow):
		return CodePrecisionOverflow
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidFeeRate):
		return CodeInvalidAmount
	case errors.Is(err, ErrProvisioningUnavailable):
		return CodeProvisioningUnavailable
	case errors.Is(err, ErrInvalidPlan):
		return CodeInvalidPlan
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrSettlementFailed):
		return CodeSettlementFailed
	default:
		return CodeInternal
	}
}

// Retryable reports whether retrying the same request may succeed. A
// pending settlement is never retryable: the first attempt may still land.
func Retryable(err error) bool {
	if errors.Is(err, ErrSettlementPending) {
		return false
	}
	return errors.Is(err, ErrProvisioningUnavailable) || errors.Is(err, ErrSettlementFailed)
}
