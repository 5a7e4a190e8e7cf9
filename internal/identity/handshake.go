package identity

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"capital-creator/marketplace-backend/pkg/workflows"
)

// CodePrefix starts every challenge code so it is easy to spot in a post
const CodePrefix = "CC-"

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var handshakeMachine = workflows.NewStateMachine(map[State][]State{
	StateIdle:            {StateChallengeIssued},
	StateChallengeIssued: {StateChallengeIssued, StateScanning, StateIdle},
	StateScanning:        {StateVerified, StateChallengeIssued, StateIdle},
	StateVerified:        {StateChallengeIssued},
})

// NewCode returns a fresh unpredictable challenge code
func NewCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge code: %w", err)
	}
	return CodePrefix + codeEncoding.EncodeToString(buf), nil
}

// Handshake is the per-profile identity state. It is not safe for
// concurrent use; Service serializes access.
type Handshake struct {
	profileID  string
	state      State
	challenge  *Challenge
	binding    *Binding
	lastReason string
}

func newHandshake(profileID string) *Handshake {
	return &Handshake{profileID: profileID, state: StateIdle}
}

func (h *Handshake) move(to State) error {
	next, err := handshakeMachine.Transition(h.state, to)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	h.state = next
	return nil
}

// issue replaces any live challenge with ch
func (h *Handshake) issue(ch *Challenge) error {
	if h.state == StateScanning {
		return ErrVerificationInProgress
	}
	if err := h.move(StateChallengeIssued); err != nil {
		return err
	}
	h.challenge = ch
	h.lastReason = ""
	return nil
}

// beginScan consumes the live challenge and enters Scanning
func (h *Handshake) beginScan(now time.Time) (*Challenge, error) {
	switch h.state {
	case StateScanning:
		return nil, ErrVerificationInProgress
	case StateChallengeIssued:
	default:
		return nil, ErrNoActiveChallenge
	}

	if h.challenge.Expired(now) {
		h.expire()
		return nil, ErrChallengeExpired
	}

	if err := h.move(StateScanning); err != nil {
		return nil, err
	}
	ch := h.challenge
	h.challenge = nil
	return ch, nil
}

// verified completes a scan with a binding
func (h *Handshake) verified(b *Binding) error {
	if err := h.move(StateVerified); err != nil {
		return err
	}
	h.binding = b
	h.lastReason = ""
	return nil
}

// rejected completes a scan without a match and arms a replacement challenge
func (h *Handshake) rejected(reason string, next *Challenge) error {
	if err := h.move(StateChallengeIssued); err != nil {
		return err
	}
	h.challenge = next
	h.lastReason = reason
	return nil
}

// abort ends a scan that could not arm a replacement challenge
func (h *Handshake) abort(reason string) {
	if h.state != StateScanning || h.move(StateIdle) != nil {
		return
	}
	h.challenge = nil
	h.lastReason = reason
}

// cancel abandons the live challenge
func (h *Handshake) cancel() error {
	switch h.state {
	case StateScanning:
		return ErrVerificationInProgress
	case StateChallengeIssued:
	default:
		return ErrNoActiveChallenge
	}
	if err := h.move(StateIdle); err != nil {
		return err
	}
	h.challenge = nil
	h.lastReason = ""
	return nil
}

// expire drops a live challenge that ran out of time
func (h *Handshake) expire() bool {
	if h.state != StateChallengeIssued || h.move(StateIdle) != nil {
		return false
	}
	h.challenge = nil
	h.lastReason = ErrChallengeExpired.Error()
	return true
}

func (h *Handshake) status() Status {
	st := Status{
		ProfileID:  h.profileID,
		State:      h.state,
		LastReason: h.lastReason,
	}
	if h.challenge != nil {
		ch := *h.challenge
		st.Challenge = &ch
	}
	if h.binding != nil {
		b := *h.binding
		st.Binding = &b
	}
	return st
}
