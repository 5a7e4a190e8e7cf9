// Package solanarpc settles plans as SPL token transactions over Solana JSON-RPC.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"capital-creator/marketplace-backend/internal/settlement"
)

// ErrMissingSigner is returned when a plan needs a key the client does not hold
var ErrMissingSigner = errors.New("missing signer")

// RPC is the subset of the Solana JSON-RPC client used for settlement
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Config configures the client
type Config struct {
	Decimals     uint8
	Commitment   rpc.CommitmentType
	PollInterval time.Duration
}

// Client implements settlement.ChainClient on Solana. The platform key pays
// fees and signs receipts; buyer keys are looked up in the custodial key set.
type Client struct {
	rpc      RPC
	platform solana.PrivateKey
	keys     map[solana.PublicKey]solana.PrivateKey
	config   Config
	logger   *zap.Logger
}

// NewClient creates a Solana chain client. custodial holds wallets whose
// transfers the backend may sign.
func NewClient(rpcClient RPC, platform solana.PrivateKey, custodial []solana.PrivateKey, config Config, logger *zap.Logger) *Client {
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentConfirmed
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(custodial)+1)
	for _, key := range custodial {
		keys[key.PublicKey()] = key
	}
	if platform != nil {
		keys[platform.PublicKey()] = platform
	}

	return &Client{
		rpc:      rpcClient,
		platform: platform,
		keys:     keys,
		config:   config,
		logger:   logger,
	}
}

// Dial connects to the JSON-RPC endpoint at url
func Dial(url string, platform solana.PrivateKey, custodial []solana.PrivateKey, config Config, logger *zap.Logger) *Client {
	return NewClient(rpc.New(url), platform, custodial, config, logger)
}

// ReceivingAccount derives the associated token account of owner for the mint
func (c *Client) ReceivingAccount(owner settlement.Party, mint settlement.TokenID) (settlement.Party, error) {
	ownerKey, mintKey, err := parseOwnerMint(owner, mint)
	if err != nil {
		return "", err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return "", fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return settlement.Party(ata.String()), nil
}

// QueryAccountExists fetches the associated token account; a not-found
// answer is the only way to learn that it is missing
func (c *Client) QueryAccountExists(ctx context.Context, owner settlement.Party, mint settlement.TokenID) (bool, error) {
	account, err := c.ReceivingAccount(owner, mint)
	if err != nil {
		return false, err
	}

	_, err = c.rpc.GetAccountInfoWithOpts(ctx, solana.MustPublicKeyFromBase58(string(account)), &rpc.GetAccountInfoOpts{
		Commitment: c.config.Commitment,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, rpc.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
}

// SubmitAtomic sends the plan as a single transaction and waits for it to
// reach the configured commitment. A Solana transaction either applies every
// instruction or none.
func (c *Client) SubmitAtomic(ctx context.Context, plan *settlement.Plan) (string, error) {
	feePayer, err := solana.PublicKeyFromBase58(string(plan.FeePayer))
	if err != nil {
		return "", fmt.Errorf("invalid fee payer %q: %w", plan.FeePayer, err)
	}

	instructions, err := c.instructions(plan, feePayer)
	if err != nil {
		return "", err
	}

	latest, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if priv, ok := c.keys[key]; ok {
			return &priv
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingSigner, err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.config.Commitment,
	})
	if err != nil {
		return "", classify(err)
	}

	c.logger.Debug("Settlement transaction sent",
		zap.String("plan_id", plan.ID.String()),
		zap.String("signature", sig.String()),
		zap.Int("instructions", len(instructions)))

	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (c *Client) instructions(plan *settlement.Plan, feePayer solana.PublicKey) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		owner, mint, err := parseOwnerMint(step.Owner, step.Token)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		switch step.Kind {
		case settlement.StepCreateAccount:
			ix, err := associatedtokenaccount.NewCreateInstruction(feePayer, owner, mint).ValidateAndBuild()
			if err != nil {
				return nil, fmt.Errorf("step %d: failed to build create instruction: %w", i, err)
			}
			out = append(out, ix)

		case settlement.StepTransfer:
			from, err := solana.PublicKeyFromBase58(string(step.From))
			if err != nil {
				return nil, fmt.Errorf("step %d: invalid source owner: %w", i, err)
			}
			source, _, err := solana.FindAssociatedTokenAddress(from, mint)
			if err != nil {
				return nil, fmt.Errorf("step %d: failed to derive source account: %w", i, err)
			}
			destination, err := solana.PublicKeyFromBase58(string(step.Account))
			if err != nil {
				return nil, fmt.Errorf("step %d: invalid destination account: %w", i, err)
			}
			ix, err := token.NewTransferCheckedInstruction(
				uint64(step.Amount),
				c.config.Decimals,
				source,
				mint,
				destination,
				from,
				[]solana.PublicKey{},
			).ValidateAndBuild()
			if err != nil {
				return nil, fmt.Errorf("step %d: failed to build transfer instruction: %w", i, err)
			}
			out = append(out, ix)

		default:
			return nil, fmt.Errorf("step %d: unknown kind %q", i, step.Kind)
		}
	}
	return out, nil
}

func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			c.logger.Warn("Signature status lookup failed", zap.String("signature", sig.String()), zap.Error(err))
		} else if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return classify(fmt.Errorf("transaction %s failed: %v", sig, status.Err))
			}
			if reached(status.ConfirmationStatus, c.config.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return &settlement.PendingError{Reference: sig.String(), Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// SignMessage signs message with the platform key
func (c *Client) SignMessage(ctx context.Context, message []byte) (string, error) {
	if c.platform == nil {
		return "", fmt.Errorf("%w: platform key not configured", ErrMissingSigner)
	}
	sig, err := c.platform.Sign(message)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return sig.String(), nil
}

// PlatformAddress returns the public key of the fee payer
func (c *Client) PlatformAddress() string {
	if c.platform == nil {
		return ""
	}
	return c.platform.PublicKey().String()
}

func reached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch got {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	default:
		return false
	}
}

// classify maps a "create an account that is already there" rejection to
// settlement.AccountExistsError so the builder can resubmit the transfers
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already in use") || strings.Contains(msg, "account already exists") {
		return &settlement.AccountExistsError{}
	}
	return err
}

func parseOwnerMint(owner settlement.Party, mint settlement.TokenID) (solana.PublicKey, solana.PublicKey, error) {
	ownerKey, err := solana.PublicKeyFromBase58(string(owner))
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(string(mint))
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	return ownerKey, mintKey, nil
}
