package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSubmitTimeout bounds a single atomic submission
const DefaultSubmitTimeout = 30 * time.Second

// BuildRequest describes one sale to be turned into a plan
type BuildRequest struct {
	Buyer    Party
	Payee    Party
	Treasury Party
	Token    TokenID
	Total    int64

	// FeePayer pays network fees and account rent; the buyer when empty
	FeePayer Party
}

// TransactionBuilder turns a sale into an atomic settlement plan and submits it
type TransactionBuilder struct {
	rate          FeeRate
	provisioner   *AccountProvisioner
	submitter     Submitter
	submitTimeout time.Duration
	logger        *zap.Logger
}

// NewTransactionBuilder creates a new settlement transaction builder
func NewTransactionBuilder(rate FeeRate, provisioner *AccountProvisioner, submitter Submitter, submitTimeout time.Duration, logger *zap.Logger) *TransactionBuilder {
	if submitTimeout <= 0 {
		submitTimeout = DefaultSubmitTimeout
	}
	return &TransactionBuilder{
		rate:          rate,
		provisioner:   provisioner,
		submitter:     submitter,
		submitTimeout: submitTimeout,
		logger:        logger,
	}
}

// Build splits the total, provisions missing receiving accounts (payee
// first, then treasury) and appends the two transfers. The returned plan is
// always valid.
func (b *TransactionBuilder) Build(ctx context.Context, req BuildRequest) (*Plan, error) {
	if req.Buyer == "" || req.Payee == "" || req.Treasury == "" || req.Token == "" {
		return nil, fmt.Errorf("%w: buyer, payee, treasury and token are required", ErrInvalidPlan)
	}

	payeeAmount, treasuryAmount, err := b.rate.Split(req.Total)
	if err != nil {
		return nil, err
	}

	feePayer := req.FeePayer
	if feePayer == "" {
		feePayer = req.Buyer
	}

	plan := &Plan{
		ID:             uuid.New(),
		Buyer:          req.Buyer,
		Payee:          req.Payee,
		Treasury:       req.Treasury,
		Token:          req.Token,
		FeePayer:       feePayer,
		Total:          req.Total,
		PayeeAmount:    payeeAmount,
		TreasuryAmount: treasuryAmount,
	}

	payeeStep, payeeAccount, err := b.provisioner.EnsureReceiving(ctx, req.Payee, req.Token)
	if err != nil {
		return nil, err
	}
	treasuryStep, treasuryAccount, err := b.provisioner.EnsureReceiving(ctx, req.Treasury, req.Token)
	if err != nil {
		return nil, err
	}

	if payeeStep != nil {
		plan.Steps = append(plan.Steps, *payeeStep)
	} else {
		plan.Existing = append(plan.Existing, payeeAccount)
	}
	switch {
	case treasuryStep == nil:
		plan.Existing = append(plan.Existing, treasuryAccount)
	case treasuryAccount != payeeAccount:
		plan.Steps = append(plan.Steps, *treasuryStep)
	}

	if payeeAmount > 0 {
		plan.Steps = append(plan.Steps, Transfer(req.Buyer, req.Payee, req.Token, payeeAccount, payeeAmount))
	}
	if treasuryAmount > 0 {
		plan.Steps = append(plan.Steps, Transfer(req.Buyer, req.Treasury, req.Token, treasuryAccount, treasuryAmount))
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	b.logger.Debug("Settlement plan built",
		zap.String("plan_id", plan.ID.String()),
		zap.Int("steps", len(plan.Steps)),
		zap.Int("creations", plan.CreationSteps()),
		zap.Int64("payee_amount", payeeAmount),
		zap.Int64("treasury_amount", treasuryAmount))

	return plan, nil
}

// Submit sends the plan as one atomic unit. If the environment reports that
// a receiving account was created by a concurrent plan, the creation steps
// are dropped and the transfers are resubmitted once. A plan that was sent
// but not confirmed in time comes back as a *PendingError together with its
// reference. Any other rejection is returned as ErrSettlementFailed; the
// builder never retries beyond that.
func (b *TransactionBuilder) Submit(ctx context.Context, plan *Plan) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}

	ref, err := b.submitOnce(ctx, plan)

	var exists *AccountExistsError
	if errors.As(err, &exists) && plan.CreationSteps() > 0 {
		retry := plan.WithoutCreation(exists.Accounts)
		b.logger.Info("Receiving account created concurrently, resubmitting transfers only",
			zap.String("plan_id", plan.ID.String()),
			zap.Int("dropped_steps", len(plan.Steps)-len(retry.Steps)))
		ref, err = b.submitOnce(ctx, retry)
	}

	var pending *PendingError
	if errors.As(err, &pending) {
		b.logger.Warn("Settlement submitted but not confirmed before the deadline",
			zap.String("plan_id", plan.ID.String()),
			zap.String("tx", pending.Reference))
		return pending.Reference, err
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	return ref, nil
}

func (b *TransactionBuilder) submitOnce(ctx context.Context, plan *Plan) (string, error) {
	submitCtx, cancel := context.WithTimeout(ctx, b.submitTimeout)
	defer cancel()
	return b.submitter.SubmitAtomic(submitCtx, plan)
}

// Rate returns the fee rate the builder splits with
func (b *TransactionBuilder) Rate() FeeRate {
	return b.rate
}
