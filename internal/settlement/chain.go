package settlement

import "context"

// AccountQuerier resolves and inspects receiving accounts
type AccountQuerier interface {
	// ReceivingAccount derives the deterministic account holding token for owner
	ReceivingAccount(owner Party, token TokenID) (Party, error)
	// QueryAccountExists asks the execution environment whether the receiving account exists
	QueryAccountExists(ctx context.Context, owner Party, token TokenID) (bool, error)
}

// Submitter applies a plan atomically and returns the transaction reference.
// When another plan created one of the plan's accounts first it returns an
// *AccountExistsError and applies nothing. When the plan was sent but no
// outcome arrived before ctx expired it returns a *PendingError.
type Submitter interface {
	SubmitAtomic(ctx context.Context, plan *Plan) (string, error)
}

// ChainClient is the capability the settlement core needs from the chain
type ChainClient interface {
	AccountQuerier
	Submitter
	// SignMessage signs message with the platform key and returns the encoded signature
	SignMessage(ctx context.Context, message []byte) (string, error)
}

// SaleListener reacts to a successful settlement (read models, notifications)
type SaleListener interface {
	OnSettled(ctx context.Context, event SaleEvent) error
}

// SaleListenerFunc adapts a function to SaleListener
type SaleListenerFunc func(ctx context.Context, event SaleEvent) error

func (f SaleListenerFunc) OnSettled(ctx context.Context, event SaleEvent) error {
	return f(ctx, event)
}
