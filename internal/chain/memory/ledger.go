// Package memory provides an in-process settlement environment used for
// local development and tests. Plans are applied all-or-nothing under a
// single lock.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"capital-creator/marketplace-backend/internal/settlement"
)

var (
	// ErrInsufficientFunds is returned when a transfer source cannot cover the amount
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownAccount is returned when a step touches an account that does not exist
	ErrUnknownAccount = errors.New("account does not exist")
	// ErrInjectedFailure is returned by a ledger configured with FailAfter
	ErrInjectedFailure = errors.New("injected failure")
	// ErrNoSigner is returned by SignMessage when the ledger has no platform key
	ErrNoSigner = errors.New("no platform signer configured")
)

var accountNamespace = uuid.MustParse("6f1d8c2e-4b7a-4e55-9a38-0c2b1f7d9e61")

// Ledger is a ChainClient backed by maps
type Ledger struct {
	mu       sync.Mutex
	accounts map[settlement.Party]bool
	balances map[settlement.Party]int64
	txs      map[string]*settlement.Plan

	signer    solana.PrivateKey
	failAfter int
	queryErr  error
}

// NewLedger creates an empty ledger. signer may be nil, in which case
// SignMessage fails.
func NewLedger(signer solana.PrivateKey) *Ledger {
	return &Ledger{
		accounts:  make(map[settlement.Party]bool),
		balances:  make(map[settlement.Party]int64),
		txs:       make(map[string]*settlement.Plan),
		signer:    signer,
		failAfter: -1,
	}
}

// ReceivingAccount derives a stable name-based UUID for (owner, token)
func (l *Ledger) ReceivingAccount(owner settlement.Party, token settlement.TokenID) (settlement.Party, error) {
	if owner == "" || token == "" {
		return "", fmt.Errorf("owner and token are required")
	}
	id := uuid.NewSHA1(accountNamespace, []byte(string(token)+"/"+string(owner)))
	return settlement.Party(id.String()), nil
}

// QueryAccountExists reports whether the receiving account is open
func (l *Ledger) QueryAccountExists(ctx context.Context, owner settlement.Party, token settlement.TokenID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	account, err := l.ReceivingAccount(owner, token)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queryErr != nil {
		return false, l.queryErr
	}
	return l.accounts[account], nil
}

// SubmitAtomic stages every step against a copy of the state and commits
// only if all of them succeed
func (l *Ledger) SubmitAtomic(ctx context.Context, plan *settlement.Plan) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var existing []settlement.Party
	for _, step := range plan.Steps {
		if step.Kind == settlement.StepCreateAccount && l.accounts[step.Account] {
			existing = append(existing, step.Account)
		}
	}
	if len(existing) > 0 {
		return "", &settlement.AccountExistsError{Accounts: existing}
	}

	accounts := make(map[settlement.Party]bool, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	balances := make(map[settlement.Party]int64, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}

	for i, step := range plan.Steps {
		switch step.Kind {
		case settlement.StepCreateAccount:
			accounts[step.Account] = true
		case settlement.StepTransfer:
			source, err := l.ReceivingAccount(step.From, step.Token)
			if err != nil {
				return "", err
			}
			if !accounts[source] {
				return "", fmt.Errorf("step %d: source %s: %w", i, step.From, ErrUnknownAccount)
			}
			if !accounts[step.Account] {
				return "", fmt.Errorf("step %d: destination %s: %w", i, step.Account, ErrUnknownAccount)
			}
			if balances[source] < step.Amount {
				return "", fmt.Errorf("step %d: %w: have %d, need %d", i, ErrInsufficientFunds, balances[source], step.Amount)
			}
			balances[source] -= step.Amount
			balances[step.Account] += step.Amount
		default:
			return "", fmt.Errorf("step %d: unknown kind %q", i, step.Kind)
		}

		if l.failAfter >= 0 && i+1 >= l.failAfter {
			return "", fmt.Errorf("step %d: %w", i, ErrInjectedFailure)
		}
	}

	l.accounts = accounts
	l.balances = balances

	ref := uuid.New().String()
	l.txs[ref] = plan
	return ref, nil
}

// SignMessage signs message with the platform key
func (l *Ledger) SignMessage(ctx context.Context, message []byte) (string, error) {
	if l.signer == nil {
		return "", ErrNoSigner
	}
	sig, err := l.signer.Sign(message)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return sig.String(), nil
}

// Fund opens owner's receiving account if needed and credits it
func (l *Ledger) Fund(owner settlement.Party, token settlement.TokenID, amount int64) error {
	account, err := l.ReceivingAccount(owner, token)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account] = true
	l.balances[account] += amount
	return nil
}

// OpenAccount opens owner's receiving account with a zero balance
func (l *Ledger) OpenAccount(owner settlement.Party, token settlement.TokenID) error {
	return l.Fund(owner, token, 0)
}

// Balance returns owner's balance of token in minor units
func (l *Ledger) Balance(owner settlement.Party, token settlement.TokenID) int64 {
	account, err := l.ReceivingAccount(owner, token)
	if err != nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Transaction returns the plan committed under ref
func (l *Ledger) Transaction(ref string) (*settlement.Plan, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	plan, ok := l.txs[ref]
	return plan, ok
}

// FailAfter makes every submission fail once n steps were applied.
// A negative n disables injection.
func (l *Ledger) FailAfter(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failAfter = n
}

// FailQueries makes QueryAccountExists return err; nil restores normal behavior
func (l *Ledger) FailQueries(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queryErr = err
}
