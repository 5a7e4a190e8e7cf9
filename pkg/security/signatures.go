package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidSignature is returned when a signature does not match the signer and message
var ErrInvalidSignature = errors.New("invalid signature")

// SignatureInfo describes a verified wallet signature
type SignatureInfo struct {
	Signer     string
	Algorithm  string
	VerifiedAt time.Time
}

// Validator verifies detached wallet signatures over arbitrary messages
type Validator interface {
	VerifyMessage(signer string, message []byte, signature string) (*SignatureInfo, error)
}

type ed25519Validator struct{}

// NewValidator creates a validator for base58 encoded ed25519 wallet signatures
func NewValidator() Validator {
	return &ed25519Validator{}
}

// VerifyMessage checks that signature is signer's ed25519 signature of message
func (v *ed25519Validator) VerifyMessage(signer string, message []byte, signature string) (*SignatureInfo, error) {
	pubKey, err := solana.PublicKeyFromBase58(signer)
	if err != nil {
		return nil, fmt.Errorf("invalid signer address: %w", err)
	}

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}

	if !sig.Verify(pubKey, message) {
		return nil, ErrInvalidSignature
	}

	return &SignatureInfo{
		Signer:     pubKey.String(),
		Algorithm:  "ed25519",
		VerifiedAt: time.Now(),
	}, nil
}
