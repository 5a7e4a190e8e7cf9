package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultChallengeTTL  = 15 * time.Minute
	DefaultVerifyTimeout = 10 * time.Second
)

// Config holds handshake settings
type Config struct {
	ChallengeTTL  time.Duration `json:"challenge_ttl"`
	VerifyTimeout time.Duration `json:"verify_timeout"`
}

// Listener reacts to handshake results (realtime push, audit)
type Listener interface {
	OnVerified(ctx context.Context, binding Binding)
	OnRejected(ctx context.Context, profileID, reason string)
}

// Service runs one identity handshake per profile
type Service struct {
	verifiers map[Medium]ProofVerifier
	store     BindingStore
	listeners []Listener
	config    Config
	logger    *zap.Logger
	now       func() time.Time
	newCode   func() (string, error)

	mu         sync.Mutex
	handshakes map[string]*Handshake
}

// NewService creates a new identity service
func NewService(verifiers map[Medium]ProofVerifier, store BindingStore, config Config, logger *zap.Logger) *Service {
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = DefaultChallengeTTL
	}
	if config.VerifyTimeout <= 0 {
		config.VerifyTimeout = DefaultVerifyTimeout
	}
	return &Service{
		verifiers:  verifiers,
		store:      store,
		config:     config,
		logger:     logger,
		now:        time.Now,
		newCode:    NewCode,
		handshakes: make(map[string]*Handshake),
	}
}

// AddListener registers a handshake listener
func (s *Service) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) handshake(profileID string) *Handshake {
	h, ok := s.handshakes[profileID]
	if !ok {
		h = newHandshake(profileID)
		s.handshakes[profileID] = h
	}
	return h
}

func (s *Service) newChallenge(profileID string, medium Medium, handle string) (*Challenge, error) {
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &Challenge{
		ID:            uuid.New(),
		ProfileID:     profileID,
		Code:          code,
		SubjectHandle: handle,
		Medium:        medium,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.ChallengeTTL),
	}, nil
}

// StartChallenge issues a fresh code for handle, invalidating any live challenge
func (s *Service) StartChallenge(ctx context.Context, profileID string, medium Medium, handle string) (*Challenge, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, ErrMissingHandle
	}
	if medium == "" {
		medium = MediumSocial
	}
	if _, ok := s.verifiers[medium]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedium, medium)
	}

	ch, err := s.newChallenge(profileID, medium, handle)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	err = s.handshake(profileID).issue(ch)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Identity challenge issued",
		zap.String("profile_id", profileID),
		zap.String("medium", string(medium)),
		zap.String("handle", handle))

	out := *ch
	return &out, nil
}

// SubmitProof verifies the evidence at locator against the live challenge.
// Verification runs to completion even if ctx is cancelled. On mismatch the
// handshake returns to ChallengeIssued with a new code and the returned
// error wraps ErrChallengeMismatch.
func (s *Service) SubmitProof(ctx context.Context, profileID, locator string) (*Outcome, error) {
	s.mu.Lock()
	ch, err := s.handshake(profileID).beginScan(s.now())
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	verifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.VerifyTimeout)
	defer cancel()

	result, verifyErr := s.verifiers[ch.Medium].VerifyProof(verifyCtx, locator, ch.SubjectHandle, ch.Code)
	if verifyErr != nil {
		result = VerifyResult{Reason: fmt.Sprintf("%v: %v", ErrVerificationUnavailable, verifyErr)}
	}

	if result.Matched {
		return s.complete(verifyCtx, profileID, ch, locator)
	}

	if result.Reason == "" {
		result.Reason = "proof did not match"
	}
	if verifyErr != nil {
		return s.reject(verifyCtx, profileID, ch, result.Reason, fmt.Errorf("%w: %v", ErrVerificationUnavailable, verifyErr))
	}
	return s.reject(verifyCtx, profileID, ch, result.Reason, fmt.Errorf("%w: %s", ErrChallengeMismatch, result.Reason))
}

// complete persists the binding before the handshake reports Verified. A
// binding that could not be saved fails the scan like a verifier error.
func (s *Service) complete(ctx context.Context, profileID string, ch *Challenge, locator string) (*Outcome, error) {
	binding := &Binding{
		ProfileID:  profileID,
		Handle:     ch.SubjectHandle,
		Medium:     ch.Medium,
		ProofRef:   locator,
		VerifiedAt: s.now(),
	}

	if s.store != nil {
		if err := s.store.SaveBinding(ctx, *binding); err != nil {
			s.logger.Error("Failed to save identity binding", zap.String("profile_id", profileID), zap.Error(err))
			return s.reject(ctx, profileID, ch, ErrBindingNotSaved.Error(), fmt.Errorf("%w: %v", ErrBindingNotSaved, err))
		}
	}

	s.mu.Lock()
	err := s.handshake(profileID).verified(binding)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Identity verified",
		zap.String("profile_id", profileID),
		zap.String("handle", binding.Handle),
		zap.String("medium", string(binding.Medium)))

	for _, l := range s.listeners {
		l.OnVerified(ctx, *binding)
	}

	return &Outcome{State: StateVerified, Matched: true, Binding: binding}, nil
}

// reject ends a scan that did not produce a binding. The handshake returns
// to ChallengeIssued with a fresh code, or to Idle when no code could be
// issued. result is returned alongside the outcome.
func (s *Service) reject(ctx context.Context, profileID string, consumed *Challenge, reason string, result error) (*Outcome, error) {
	next, err := s.newChallenge(profileID, consumed.Medium, consumed.SubjectHandle)
	if err != nil {
		s.mu.Lock()
		s.handshake(profileID).abort(reason)
		s.mu.Unlock()
		s.logger.Error("Failed to issue replacement challenge",
			zap.String("profile_id", profileID), zap.Error(err))
		return nil, errors.Join(result, err)
	}

	s.mu.Lock()
	err = s.handshake(profileID).rejected(reason, next)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Identity proof rejected",
		zap.String("profile_id", profileID),
		zap.String("handle", consumed.SubjectHandle),
		zap.String("reason", reason))

	for _, l := range s.listeners {
		l.OnRejected(ctx, profileID, reason)
	}

	out := *next
	return &Outcome{State: StateChallengeIssued, Reason: reason, Challenge: &out}, result
}

// Cancel abandons the live challenge; refused while a verification runs
func (s *Service) Cancel(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshake(profileID).cancel()
}

// Status returns a snapshot of the profile's handshake
func (s *Service) Status(profileID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handshakes[profileID]; ok {
		return h.status()
	}
	return Status{ProfileID: profileID, State: StateIdle}
}

// SweepExpired returns handshakes with an expired challenge to Idle
func (s *Service) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, h := range s.handshakes {
		if h.state == StateChallengeIssued && h.challenge != nil && h.challenge.Expired(now) && h.expire() {
			swept++
			continue
		}
		if h.state == StateIdle && h.binding == nil {
			delete(s.handshakes, id)
		}
	}
	return swept
}
