package identity

import (
	"errors"

	"capital-creator/marketplace-backend/pkg/workflows"
)

var (
	ErrMissingHandle           = errors.New("handle is required")
	ErrChallengeMismatch       = errors.New("proof does not match challenge")
	ErrNoActiveChallenge       = errors.New("no active challenge")
	ErrChallengeExpired        = errors.New("challenge expired")
	ErrVerificationInProgress  = errors.New("verification in progress")
	ErrVerificationUnavailable = errors.New("proof verification unavailable")
	ErrUnsupportedMedium       = errors.New("unsupported proof medium")
	ErrInvalidLocator          = errors.New("invalid proof locator")
	ErrInvalidTransition       = errors.New("invalid handshake transition")
	ErrBindingNotSaved         = errors.New("failed to save identity binding")
)

// Error codes returned to the UI
const (
	CodeMissingHandle           = "MISSING_HANDLE"
	CodeChallengeMismatch       = "CHALLENGE_MISMATCH"
	CodeNoActiveChallenge       = "NO_ACTIVE_CHALLENGE"
	CodeChallengeExpired        = "CHALLENGE_EXPIRED"
	CodeVerificationInProgress  = "VERIFICATION_IN_PROGRESS"
	CodeVerificationUnavailable = "VERIFICATION_UNAVAILABLE"
	CodeUnsupportedMedium       = "UNSUPPORTED_MEDIUM"
	CodeInvalidLocator          = "INVALID_LOCATOR"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeBindingNotSaved         = "BINDING_NOT_SAVED"
	CodeInternal                = "INTERNAL"
)

// ErrorCode maps a handshake error to its stable UI code
func ErrorCode(err error) string {
	var transition *workflows.TransitionError[State]
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingHandle):
		return CodeMissingHandle
	case errors.Is(err, ErrBindingNotSaved):
		return CodeBindingNotSaved
	case errors.Is(err, ErrVerificationUnavailable):
		return CodeVerificationUnavailable
	case errors.Is(err, ErrChallengeMismatch):
		return CodeChallengeMismatch
	case errors.Is(err, ErrNoActiveChallenge):
		return CodeNoActiveChallenge
	case errors.Is(err, ErrChallengeExpired):
		return CodeChallengeExpired
	case errors.Is(err, ErrVerificationInProgress):
		return CodeVerificationInProgress
	case errors.Is(err, ErrUnsupportedMedium):
		return CodeUnsupportedMedium
	case errors.Is(err, ErrInvalidLocator):
		return CodeInvalidLocator
	case errors.Is(err, ErrInvalidTransition), errors.As(err, &transition):
		return CodeInvalidTransition
	default:
		return CodeInternal
	}
}
