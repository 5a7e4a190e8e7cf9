package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"capital-creator/marketplace-backend/internal/identity"
	"capital-creator/marketplace-backend/internal/settlement"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetProfile(ctx context.Context, address string) (*Profile, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

func (m *MockRepository) SaveProfile(ctx context.Context, p *Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) SaveBinding(ctx context.Context, address, handle, medium, proof string, verifiedAt time.Time) error {
	args := m.Called(ctx, address, handle, medium, proof, verifiedAt)
	return args.Error(0)
}

func (m *MockRepository) RecordSale(ctx context.Context, sale *SaleRecord) (bool, error) {
	args := m.Called(ctx, sale)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListSales(ctx context.Context, payee string, limit int) ([]SaleRecord, error) {
	args := m.Called(ctx, payee, limit)
	return args.Get(0).([]SaleRecord), args.Error(1)
}

func saleEvent(tx string) settlement.SaleEvent {
	return settlement.SaleEvent{
		PlanID:         uuid.New(),
		ItemID:         "inv_1",
		Buyer:          "sponsor",
		Payee:          "creator",
		Token:          "usdc",
		AmountPaid:     1_000_000,
		PayeeAmount:    900_000,
		TreasuryAmount: 100_000,
		Decimals:       6,
		TxReference:    tx,
		SettledAt:      time.Now(),
	}
}

func TestOnSettledCreditsPayeeOnce(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.OnSettled(ctx, saleEvent("tx-1")))
	require.NoError(t, svc.OnSettled(ctx, saleEvent("tx-1")))
	require.NoError(t, svc.OnSettled(ctx, saleEvent("tx-2")))

	p, err := svc.GetProfile(ctx, "creator")
	require.NoError(t, err)
	assert.Equal(t, int64(1_800_000), p.RevenueEarned)
	assert.Equal(t, int64(2), p.TimesHired)
	assert.Equal(t, RoleCreator, p.Role)

	sales, err := svc.ListSales(ctx, "creator", 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "tx-2", sales[0].TxReference)
	assert.Contains(t, string(sales[0].Receipt), `"tx_reference":"tx-2"`)

	sales, err = svc.ListSales(ctx, "creator", 1)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestOnSettledPropagatesRepositoryError(t *testing.T) {
	repo := new(MockRepository)
	repo.On("RecordSale", mock.Anything, mock.MatchedBy(func(s *SaleRecord) bool {
		return s.TxReference == "tx-1" && s.PayeeAmount == 900_000
	})).Return(false, errors.New("connection reset"))

	err := NewService(repo, zap.NewNop()).OnSettled(context.Background(), saleEvent("tx-1"))
	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestSaveBinding(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()

	_, err := svc.UpdateProfile(ctx, "wallet-1", UpdateRequest{Name: "Display Name"})
	require.NoError(t, err)

	verifiedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.SaveBinding(ctx, identity.Binding{
		ProfileID:  "wallet-1",
		Handle:     "alice",
		Medium:     identity.MediumSocial,
		ProofRef:   "https://x.com/alice/status/1",
		VerifiedAt: verifiedAt,
	}))

	p, err := svc.GetProfile(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.VerifiedHandle)
	assert.Equal(t, "x", p.VerifiedMedium)
	assert.Equal(t, verifiedAt, *p.VerifiedAt)
	assert.Equal(t, "Display Name", p.Name, "verification does not rename the profile")

	require.NoError(t, svc.SaveBinding(ctx, identity.Binding{ProfileID: "wallet-1", Handle: "alice2", Medium: identity.MediumSocial, VerifiedAt: verifiedAt}))
	p, err = svc.GetProfile(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "alice2", p.VerifiedHandle)
	assert.Empty(t, p.VerifiedProof)
}

func TestUpdateProfileValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.UpdateProfile(ctx, "wallet-1", UpdateRequest{Role: "ADMIN"})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = svc.UpdateProfile(ctx, "wallet-1", UpdateRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	p, err := svc.UpdateProfile(ctx, "wallet-1", UpdateRequest{Name: " Creator ", Role: RoleCreator, Email: "creator@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Creator", p.Name)
	assert.Equal(t, RoleCreator, p.Role)
}

func TestGetProfileMissing(t *testing.T) {
	p, err := NewService(NewMemoryRepository(), zap.NewNop()).GetProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", p.Address)
	assert.Equal(t, RoleUndefined, p.Role)
}
