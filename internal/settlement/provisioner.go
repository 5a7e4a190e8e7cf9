package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultQueryTimeout bounds a single account existence query
const DefaultQueryTimeout = 5 * time.Second

// AccountProvisioner decides whether a receiving account must be created.
// Existence is queried on every call and never cached, since another
// settlement may create the account between two calls.
type AccountProvisioner struct {
	chain   AccountQuerier
	timeout time.Duration
	logger  *zap.Logger
}

// NewAccountProvisioner creates a provisioner querying chain with the given per-query timeout
func NewAccountProvisioner(chain AccountQuerier, timeout time.Duration, logger *zap.Logger) *AccountProvisioner {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &AccountProvisioner{
		chain:   chain,
		timeout: timeout,
		logger:  logger,
	}
}

// EnsureReceiving returns a CreateAccount step when owner has no receiving
// account for token, or nil when it already exists. A failed query is
// reported as ErrProvisioningUnavailable and never treated as "missing".
func (p *AccountProvisioner) EnsureReceiving(ctx context.Context, owner Party, token TokenID) (*Step, Party, error) {
	account, err := p.chain.ReceivingAccount(owner, token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to derive receiving account for %s: %v", ErrInvalidPlan, owner, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	exists, err := p.chain.QueryAccountExists(queryCtx, owner, token)
	if err != nil {
		p.logger.Warn("Receiving account lookup failed",
			zap.String("owner", string(owner)),
			zap.String("account", string(account)),
			zap.Error(err))
		return nil, account, fmt.Errorf("%w: %s: %v", ErrProvisioningUnavailable, owner, err)
	}

	if exists {
		return nil, account, nil
	}

	step := CreateAccount(owner, token, account)
	return &step, account, nil
}
