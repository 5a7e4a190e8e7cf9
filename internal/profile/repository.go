package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no profile exists for an address
var ErrNotFound = errors.New("profile not found")

// Repository persists profiles and sale records
type Repository interface {
	GetProfile(ctx context.Context, address string) (*Profile, error)
	SaveProfile(ctx context.Context, profile *Profile) error
	SaveBinding(ctx context.Context, address, handle, medium, proof string, verifiedAt time.Time) error
	// RecordSale stores sale and credits the payee once per transaction
	// reference; it reports false when the sale was already recorded
	RecordSale(ctx context.Context, sale *SaleRecord) (bool, error)
	ListSales(ctx context.Context, payee string, limit int) ([]SaleRecord, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed repository and migrates its tables
func NewRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&Profile{}, &SaleRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) GetProfile(ctx context.Context, address string) (*Profile, error) {
	var p Profile
	err := r.db.WithContext(ctx).First(&p, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (r *gormRepository) SaveProfile(ctx context.Context, p *Profile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "bio", "role", "avatar_url", "email", "phone", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (r *gormRepository) SaveBinding(ctx context.Context, address, handle, medium, proof string, verifiedAt time.Time) error {
	p := &Profile{
		Address:        address,
		Role:           RoleUndefined,
		VerifiedHandle: handle,
		VerifiedMedium: medium,
		VerifiedProof:  proof,
		VerifiedAt:     &verifiedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"verified_handle", "verified_medium", "verified_proof", "verified_at", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to save identity binding: %w", err)
	}
	return nil
}

func (r *gormRepository) RecordSale(ctx context.Context, sale *SaleRecord) (bool, error) {
	recorded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(sale)
		if res.Error != nil {
			return fmt.Errorf("failed to insert sale record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		recorded = true

		credit := &Profile{
			Address:       sale.Payee,
			Role:          RoleCreator,
			RevenueEarned: sale.PayeeAmount,
			TimesHired:    1,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"revenue_earned": gorm.Expr("profiles.revenue_earned + ?", sale.PayeeAmount),
				"times_hired":    gorm.Expr("profiles.times_hired + 1"),
				"updated_at":     time.Now(),
			}),
		}).Create(credit).Error
		if err != nil {
			return fmt.Errorf("failed to credit payee: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func (r *gormRepository) ListSales(ctx context.Context, payee string, limit int) ([]SaleRecord, error) {
	var sales []SaleRecord
	q := r.db.WithContext(ctx).Where("payee = ?", payee).Order("settled_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

type memoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	sales    map[string]*SaleRecord
	order    []string
}

// NewMemoryRepository creates a repository that keeps everything in process
func NewMemoryRepository() Repository {
	return &memoryRepository{
		profiles: make(map[string]*Profile),
		sales:    make(map[string]*SaleRecord),
	}
}

func (r *memoryRepository) GetProfile(ctx context.Context, address string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[address]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *memoryRepository) profile(address string) *Profile {
	p, ok := r.profiles[address]
	if !ok {
		now := time.Now()
		p = &Profile{Address: address, Role: RoleUndefined, CreatedAt: now}
		r.profiles[address] = p
	}
	return p
}

func (r *memoryRepository) SaveProfile(ctx context.Context, in *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profile(in.Address)
	p.Name = in.Name
	p.Bio = in.Bio
	p.Role = in.Role
	p.AvatarURL = in.AvatarURL
	p.Email = in.Email
	p.Phone = in.Phone
	p.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepository) SaveBinding(ctx context.Context, address, handle, medium, proof string, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profile(address)
	p.VerifiedHandle = handle
	p.VerifiedMedium = medium
	p.VerifiedProof = proof
	p.VerifiedAt = &verifiedAt
	p.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepository) RecordSale(ctx context.Context, sale *SaleRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sales[sale.TxReference]; ok {
		return false, nil
	}
	rec := *sale
	rec.CreatedAt = time.Now()
	r.sales[sale.TxReference] = &rec
	r.order = append(r.order, sale.TxReference)

	p := r.profile(sale.Payee)
	if p.Role == RoleUndefined {
		p.Role = RoleCreator
	}
	p.RevenueEarned += sale.PayeeAmount
	p.TimesHired++
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *memoryRepository) ListSales(ctx context.Context, payee string, limit int) ([]SaleRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SaleRecord
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.sales[r.order[i]]
		if rec.Payee != payee {
			continue
		}
		out = append(out, *rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
