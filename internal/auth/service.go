package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"capital-creator/marketplace-backend/pkg/security"
)

var (
	// ErrMissingAddress is returned when no wallet address was supplied
	ErrMissingAddress = errors.New("wallet address is required")
	// ErrInvalidAddress is returned when the address is not a base58 public key
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrNoChallenge is returned when a session is requested without a live challenge
	ErrNoChallenge = errors.New("no pending wallet challenge")
	// ErrInvalidToken is returned for a malformed, expired or forged session token
	ErrInvalidToken = errors.New("invalid session token")
)

// Config holds session settings
type Config struct {
	JWTSecret    string        `json:"jwt_secret"`
	Issuer       string        `json:"issuer"`
	SessionTTL   time.Duration `json:"session_ttl"`
	ChallengeTTL time.Duration `json:"challenge_ttl"`
}

// WalletChallenge is the message a wallet must sign to open a session
type WalletChallenge struct {
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is an issued bearer token
type Session struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues wallet challenges and signed sessions. Connecting a wallet
// always requires a fresh signature; there is no silent reconnect.
type Service struct {
	config    Config
	validator security.Validator
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	pending   map[string]WalletChallenge
	nextSweep time.Time
}

// NewService creates a new auth service
func NewService(config Config, validator security.Validator, logger *zap.Logger) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 24 * time.Hour
	}
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = 5 * time.Minute
	}
	if config.Issuer == "" {
		config.Issuer = "capital-creator"
	}
	return &Service{
		config:    config,
		validator: validator,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[string]WalletChallenge),
	}
}

// SessionMessage is the text a wallet signs to prove control of address
func SessionMessage(address string, issuedAt time.Time) string {
	return fmt.Sprintf("Sign this to verify your session with Capital Creator.\n\nTimestamp: %d\nWallet: %s",
		issuedAt.UnixMilli(), address)
}

// IssueChallenge creates a fresh message for address, replacing any pending one
func (s *Service) IssueChallenge(address string) (*WalletChallenge, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrMissingAddress
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	now := s.now()
	challenge := WalletChallenge{
		Address:   address,
		Message:   SessionMessage(address, now),
		ExpiresAt: now.Add(s.config.ChallengeTTL),
	}

	s.mu.Lock()
	// expired challenges are dropped at most once per TTL
	if !now.Before(s.nextSweep) {
		s.sweepLocked(now)
		s.nextSweep = now.Add(s.config.ChallengeTTL)
	}
	s.pending[address] = challenge
	s.mu.Unlock()

	return &challenge, nil
}

// SweepExpired drops every challenge past its expiry and returns how many
// were removed
func (s *Service) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *Service) sweepLocked(now time.Time) int {
	removed := 0
	for address, challenge := range s.pending {
		if now.After(challenge.ExpiresAt) {
			delete(s.pending, address)
			removed++
		}
	}
	return removed
}

// PendingChallenges returns the number of challenges awaiting a signature
func (s *Service) PendingChallenges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CreateSession verifies the signed challenge and issues a session token.
// The challenge is consumed whether or not the signature is valid.
func (s *Service) CreateSession(ctx context.Context, address, signature string) (*Session, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrMissingAddress
	}

	s.mu.Lock()
	challenge, ok := s.pending[address]
	delete(s.pending, address)
	s.mu.Unlock()

	if !ok || s.now().After(challenge.ExpiresAt) {
		return nil, ErrNoChallenge
	}

	if _, err := s.validator.VerifyMessage(address, []byte(challenge.Message), signature); err != nil {
		s.logger.Warn("Wallet signature rejected", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("failed to verify wallet signature: %w", err)
	}

	session, err := s.issueToken(address)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Wallet session opened", zap.String("address", address))
	return session, nil
}

func (s *Service) issueToken(address string) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.config.SessionTTL)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.config.Issuer,
		Subject:   address,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{Address: address, Token: token, ExpiresAt: expiresAt}, nil
}

// ParseToken validates a session token and returns the wallet address
func (s *Service) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
