package profile

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Role is what a wallet does on the marketplace
type Role string

const (
	RoleUndefined Role = "UNDEFINED"
	RoleCreator   Role = "CREATOR"
	RoleSponsor   Role = "SPONSOR"
)

// Profile is the read model of a wallet's marketplace identity
type Profile struct {
	Address   string `json:"address" gorm:"primaryKey;size:64"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Role      Role   `json:"role" gorm:"size:16;default:UNDEFINED"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`

	// minor units of the settlement token
	RevenueEarned int64 `json:"revenue_earned"`
	TimesHired    int64 `json:"times_hired"`

	VerifiedHandle string     `json:"verified_handle,omitempty"`
	VerifiedMedium string     `json:"verified_medium,omitempty"`
	VerifiedProof  string     `json:"verified_proof,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateRequest holds the editable profile fields
type UpdateRequest struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// SaleRecord is one settled sale, keyed by its transaction reference
type SaleRecord struct {
	TxReference    string         `json:"tx_reference" gorm:"primaryKey;size:128"`
	PlanID         uuid.UUID      `json:"plan_id" gorm:"type:uuid"`
	ItemID         string         `json:"item_id,omitempty"`
	Buyer          string         `json:"buyer" gorm:"index"`
	Payee          string         `json:"payee" gorm:"index"`
	Token          string         `json:"token"`
	AmountPaid     int64          `json:"amount_paid"`
	PayeeAmount    int64          `json:"payee_amount"`
	TreasuryAmount int64          `json:"treasury_amount"`
	Decimals       int32          `json:"decimals"`
	Attestation    string         `json:"attestation,omitempty"`
	Receipt        datatypes.JSON `json:"receipt" gorm:"type:jsonb"`
	SettledAt      time.Time      `json:"settled_at"`
	CreatedAt      time.Time      `json:"created_at"`
}
