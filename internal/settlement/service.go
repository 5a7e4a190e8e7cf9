package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MessageSigner signs receipts with the platform key
type MessageSigner interface {
	SignMessage(ctx context.Context, message []byte) (string, error)
}

// ServiceConfig holds the externally supplied settlement constants
type ServiceConfig struct {
	Treasury Party   `json:"treasury"`
	Token    TokenID `json:"token"`
	Decimals int32   `json:"decimals"`
	FeePayer Party   `json:"fee_payer"`
}

// SettleRequest is a purchase initiated by the UI
type SettleRequest struct {
	Buyer  Party
	Payee  Party
	Price  decimal.Decimal
	Token  TokenID
	ItemID string
}

// Service orchestrates fee split, provisioning and atomic submission
type Service struct {
	builder   *TransactionBuilder
	signer    MessageSigner
	listeners []SaleListener
	config    ServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new payment settlement service
func NewService(builder *TransactionBuilder, signer MessageSigner, config ServiceConfig, logger *zap.Logger) *Service {
	if config.Decimals == 0 {
		config.Decimals = DefaultDecimals
	}
	return &Service{
		builder: builder,
		signer:  signer,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// AddListener registers a reaction to successful settlements
func (s *Service) AddListener(listener SaleListener) {
	s.listeners = append(s.listeners, listener)
}

// Settle runs one settlement attempt and reports its outcome. Errors never
// escape as Go errors: they are mapped onto Result.Code so callers can render
// a stable message. Listeners only run after the environment confirmed the
// plan.
func (s *Service) Settle(ctx context.Context, req SettleRequest) Result {
	// prices are parsed with the configured token's decimals, so no other token is accepted
	token := s.config.Token
	if req.Token != "" && req.Token != token {
		return s.failure(req, fmt.Errorf("%w: %s", ErrUnsupportedToken, req.Token))
	}

	total, err := ParseMinorUnits(req.Price, s.config.Decimals)
	if err != nil {
		return s.failure(req, err)
	}
	if total == 0 {
		return s.failure(req, fmt.Errorf("%w: nothing to settle", ErrInvalidAmount))
	}

	plan, err := s.builder.Build(ctx, BuildRequest{
		Buyer:    req.Buyer,
		Payee:    req.Payee,
		Treasury: s.config.Treasury,
		Token:    token,
		Total:    total,
		FeePayer: s.config.FeePayer,
	})
	if err != nil {
		return s.failure(req, err)
	}

	// an unsubmitted plan is simply discarded
	if ctx.Err() != nil {
		return s.failure(req, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
	}

	ref, err := s.builder.Submit(ctx, plan)
	if errors.Is(err, ErrSettlementPending) {
		// the reference lets the caller follow the transaction instead of paying again
		s.logger.Warn("Settlement outcome unknown",
			zap.String("plan_id", plan.ID.String()),
			zap.String("tx", ref),
			zap.String("buyer", string(req.Buyer)),
			zap.String("payee", string(req.Payee)),
			zap.Error(err))
		return Result{Success: false, Reference: ref, Code: CodeSettlementPending}
	}
	if err != nil {
		return s.failure(req, err)
	}

	s.logger.Info("Settlement confirmed",
		zap.String("plan_id", plan.ID.String()),
		zap.String("tx", ref),
		zap.String("buyer", string(req.Buyer)),
		zap.String("payee", string(req.Payee)),
		zap.Int64("payee_amount", plan.PayeeAmount),
		zap.Int64("treasury_amount", plan.TreasuryAmount))

	event := SaleEvent{
		PlanID:         plan.ID,
		ItemID:         req.ItemID,
		Buyer:          req.Buyer,
		Payee:          req.Payee,
		Token:          token,
		AmountPaid:     total,
		PayeeAmount:    plan.PayeeAmount,
		TreasuryAmount: plan.TreasuryAmount,
		Decimals:       s.config.Decimals,
		TxReference:    ref,
		SettledAt:      s.now(),
	}

	// reactions must not be cut short by a client that went away after the money moved
	s.notify(context.WithoutCancel(ctx), event)

	return Result{Success: true, Reference: ref}
}

func (s *Service) notify(ctx context.Context, event SaleEvent) {
	if s.signer != nil {
		sig, err := s.signer.SignMessage(ctx, event.Receipt())
		if err != nil {
			s.logger.Warn("Failed to attest settlement receipt",
				zap.String("tx", event.TxReference), zap.Error(err))
		} else {
			event.Attestation = sig
		}
	}

	for _, listener := range s.listeners {
		if err := listener.OnSettled(ctx, event); err != nil {
			s.logger.Error("Sale listener failed",
				zap.String("tx", event.TxReference),
				zap.String("payee", string(event.Payee)),
				zap.Error(err))
		}
	}
}

func (s *Service) failure(req SettleRequest, err error) Result {
	code := ErrorCode(err)
	s.logger.Warn("Settlement failed",
		zap.String("buyer", string(req.Buyer)),
		zap.String("payee", string(req.Payee)),
		zap.String("price", req.Price.String()),
		zap.String("code", code),
		zap.Bool("retryable", Retryable(err)),
		zap.Error(err))
	return Result{Success: false, Reference: err.Error(), Code: code}
}

// Receipt is the canonical text the platform signs for a settled sale
func (e SaleEvent) Receipt() []byte {
	return []byte(fmt.Sprintf("Capital Creator settlement receipt\nplan: %s\ntx: %s\nbuyer: %s\npayee: %s\ntoken: %s\namount: %s\ncreator: %s\ntreasury: %s\n",
		e.PlanID,
		e.TxReference,
		e.Buyer,
		e.Payee,
		e.Token,
		FormatMinorUnits(e.AmountPaid, e.Decimals),
		FormatMinorUnits(e.PayeeAmount, e.Decimals),
		FormatMinorUnits(e.TreasuryAmount, e.Decimals)))
}
