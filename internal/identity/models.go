package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is a step of the identity handshake
type State string

const (
	StateIdle            State = "idle"
	StateChallengeIssued State = "challenge_issued"
	StateScanning        State = "scanning"
	StateVerified        State = "verified"
)

// Medium is the external channel a proof is published on
type Medium string

const (
	MediumSocial Medium = "x"
	MediumWallet Medium = "wallet"
)

// Challenge binds an unpredictable code to the handle being claimed
type Challenge struct {
	ID            uuid.UUID `json:"id"`
	ProfileID     string    `json:"profile_id"`
	Code          string    `json:"code"`
	SubjectHandle string    `json:"subject_handle"`
	Medium        Medium    `json:"medium"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the challenge can no longer be answered
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Binding is a verified identity attached to a profile
type Binding struct {
	ProfileID  string    `json:"profile_id"`
	Handle     string    `json:"handle"`
	Medium     Medium    `json:"medium"`
	ProofRef   string    `json:"proof_ref"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Status is a snapshot of one profile's handshake
type Status struct {
	ProfileID  string     `json:"profile_id"`
	State      State      `json:"state"`
	Challenge  *Challenge `json:"challenge,omitempty"`
	Binding    *Binding   `json:"binding,omitempty"`
	LastReason string     `json:"last_reason,omitempty"`
}

// Outcome is the delivered result of one verification attempt
type Outcome struct {
	State     State      `json:"state"`
	Matched   bool       `json:"matched"`
	Reason    string     `json:"reason,omitempty"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Binding   *Binding   `json:"binding,omitempty"`
}

// VerifyResult is what a proof verifier concluded
type VerifyResult struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason,omitempty"`
}

// ProofVerifier checks that the evidence at locator is attributable to
// expectedHandle and contains expectedCode
type ProofVerifier interface {
	VerifyProof(ctx context.Context, locator, expectedHandle, expectedCode string) (VerifyResult, error)
}

// BindingStore persists verified bindings on the owning profile
type BindingStore interface {
	SaveBinding(ctx context.Context, binding Binding) error
}

// BindingStoreFunc adapts a function to BindingStore
type BindingStoreFunc func(ctx context.Context, binding Binding) error

func (f BindingStoreFunc) SaveBinding(ctx context.Context, binding Binding) error {
	return f(ctx, binding)
}
