package settlement

import (
	"time"

	"github.com/google/uuid"
)

// Party is an opaque address of a buyer, payee or treasury
type Party string

// TokenID identifies the token being settled (the SPL mint on Solana)
type TokenID string

// StepKind tags the variant held by a Step
type StepKind string

const (
	StepCreateAccount StepKind = "create_account"
	StepTransfer      StepKind = "transfer"
)

// Step is one instruction of a settlement plan.
//
// For StepCreateAccount, Owner and Token identify the receiving account and
// Account is its derived address. For StepTransfer, From is the paying owner,
// Account is the destination receiving account owned by Owner and Amount is
// in minor units.
type Step struct {
	Kind    StepKind `json:"kind"`
	Owner   Party    `json:"owner"`
	Token   TokenID  `json:"token"`
	Account Party    `json:"account"`
	From    Party    `json:"from,omitempty"`
	Amount  int64    `json:"amount,omitempty"`
}

// CreateAccount builds a provisioning step
func CreateAccount(owner Party, token TokenID, account Party) Step {
	return Step{Kind: StepCreateAccount, Owner: owner, Token: token, Account: account}
}

// Transfer builds a transfer step into owner's receiving account
func Transfer(from, owner Party, token TokenID, account Party, amount int64) Step {
	return Step{Kind: StepTransfer, From: from, Owner: owner, Token: token, Account: account, Amount: amount}
}

// Plan is an ordered sequence of steps submitted as one atomic unit
type Plan struct {
	ID             uuid.UUID `json:"id"`
	Buyer          Party     `json:"buyer"`
	Payee          Party     `json:"payee"`
	Treasury       Party     `json:"treasury"`
	Token          TokenID   `json:"token"`
	FeePayer       Party     `json:"fee_payer"`
	Total          int64     `json:"total"`
	PayeeAmount    int64     `json:"payee_amount"`
	TreasuryAmount int64     `json:"treasury_amount"`
	Steps          []Step    `json:"steps"`

	// receiving accounts confirmed to exist when the plan was built
	Existing []Party `json:"existing,omitempty"`
}

// Validate checks that every transfer lands in an account that already
// existed at build time or is created by an earlier step of the plan
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return ErrInvalidPlan
	}
	ensured := make(map[Party]bool, len(p.Existing)+len(p.Steps))
	for _, acc := range p.Existing {
		ensured[acc] = true
	}
	for i, step := range p.Steps {
		switch step.Kind {
		case StepCreateAccount:
			ensured[step.Account] = true
		case StepTransfer:
			if step.Amount <= 0 {
				return planError(i, "transfer amount must be positive")
			}
			if !ensured[step.Account] {
				return planError(i, "destination account "+string(step.Account)+" is not guaranteed to exist")
			}
		default:
			return planError(i, "unknown step kind "+string(step.Kind))
		}
	}
	return nil
}

// WithoutCreation returns a copy of the plan whose creation steps for the
// given accounts are removed and recorded as existing. An empty accounts
// list drops every creation step.
func (p *Plan) WithoutCreation(accounts []Party) *Plan {
	drop := make(map[Party]bool, len(accounts))
	for _, acc := range accounts {
		drop[acc] = true
	}

	out := *p
	out.Steps = make([]Step, 0, len(p.Steps))
	out.Existing = append([]Party(nil), p.Existing...)
	for _, step := range p.Steps {
		if step.Kind == StepCreateAccount && (len(drop) == 0 || drop[step.Account]) {
			out.Existing = append(out.Existing, step.Account)
			continue
		}
		out.Steps = append(out.Steps, step)
	}
	return &out
}

// CreationSteps counts the provisioning steps in the plan
func (p *Plan) CreationSteps() int {
	n := 0
	for _, step := range p.Steps {
		if step.Kind == StepCreateAccount {
			n++
		}
	}
	return n
}

// Result is the outcome of one settlement attempt.
// Reference holds the transaction signature on success or while the outcome
// is pending, and a readable failure reason otherwise.
type Result struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	Code      string `json:"code,omitempty"`
}

// SaleEvent is emitted to listeners after a successful settlement
type SaleEvent struct {
	PlanID         uuid.UUID `json:"plan_id"`
	ItemID         string    `json:"item_id,omitempty"`
	Buyer          Party     `json:"buyer"`
	Payee          Party     `json:"payee"`
	Token          TokenID   `json:"token"`
	AmountPaid     int64     `json:"amount_paid"`
	PayeeAmount    int64     `json:"payee_amount"`
	TreasuryAmount int64     `json:"treasury_amount"`
	Decimals       int32     `json:"decimals"`
	TxReference    string    `json:"tx_reference"`
	SettledAt      time.Time `json:"settled_at"`

	// platform signature over Receipt(), empty when attestation failed
	Attestation string `json:"attestation,omitempty"`
}
