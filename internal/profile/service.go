package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"capital-creator/marketplace-backend/internal/identity"
	"capital-creator/marketplace-backend/internal/settlement"
)

// ErrInvalidProfile is returned for an update that fails validation
var ErrInvalidProfile = errors.New("invalid profile")

// Service maintains the profile read model
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new profile service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GetProfile returns the profile of address, or an empty one if none exists
func (s *Service) GetProfile(ctx context.Context, address string) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return &Profile{Address: address, Role: RoleUndefined}, nil
	}
	return p, err
}

// UpdateProfile saves the editable fields. Display names are free text and
// are not tied to a verified handle.
func (s *Service) UpdateProfile(ctx context.Context, address string, req UpdateRequest) (*Profile, error) {
	role := req.Role
	switch role {
	case "":
		role = RoleUndefined
	case RoleUndefined, RoleCreator, RoleSponsor:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, role)
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: email: %v", ErrInvalidProfile, err)
		}
	}

	p := &Profile{
		Address:   address,
		Name:      strings.TrimSpace(req.Name),
		Bio:       strings.TrimSpace(req.Bio),
		Role:      role,
		AvatarURL: strings.TrimSpace(req.AvatarURL),
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
	}
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return s.repo.GetProfile(ctx, address)
}

// ListSales returns the most recent sales paid to address
func (s *Service) ListSales(ctx context.Context, address string, limit int) ([]SaleRecord, error) {
	return s.repo.ListSales(ctx, address, limit)
}

// SaveBinding implements identity.BindingStore
func (s *Service) SaveBinding(ctx context.Context, b identity.Binding) error {
	return s.repo.SaveBinding(ctx, b.ProfileID, b.Handle, string(b.Medium), b.ProofRef, b.VerifiedAt)
}

// OnSettled implements settlement.SaleListener. Revenue and hire count are
// credited once per transaction reference.
func (s *Service) OnSettled(ctx context.Context, event settlement.SaleEvent) error {
	receipt, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	recorded, err := s.repo.RecordSale(ctx, &SaleRecord{
		TxReference:    event.TxReference,
		PlanID:         event.PlanID,
		ItemID:         event.ItemID,
		Buyer:          string(event.Buyer),
		Payee:          string(event.Payee),
		Token:          string(event.Token),
		AmountPaid:     event.AmountPaid,
		PayeeAmount:    event.PayeeAmount,
		TreasuryAmount: event.TreasuryAmount,
		Decimals:       event.Decimals,
		Attestation:    event.Attestation,
		Receipt:        datatypes.JSON(receipt),
		SettledAt:      event.SettledAt,
	})
	if err != nil {
		return err
	}

	if !recorded {
		s.logger.Info("Sale already recorded", zap.String("tx", event.TxReference))
		return nil
	}

	s.logger.Info("Sale recorded",
		zap.String("tx", event.TxReference),
		zap.String("payee", string(event.Payee)),
		zap.Int64("payee_amount", event.PayeeAmount))
	return nil
}
