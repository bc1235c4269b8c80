// Package solrpc reads token state from a Solana JSON-RPC node and dry-runs
// swap transactions against it.
package solrpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// DefaultEndpoint is the public mainnet RPC.
const DefaultEndpoint = rpc.MainNetBeta_RPC

// Client implements domain.HolderSource and domain.SwapSimulator.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	swapTx     *solana.Transaction
}

// Option configures a Client.
type Option func(*Client)

// WithCommitment overrides the default "confirmed" commitment.
func WithCommitment(c rpc.CommitmentType) Option {
	return func(cl *Client) {
		cl.commitment = c
	}
}

// WithSwapTransaction sets the signed swap transaction used by SimulateSwap.
// See DecodeTransaction for the base64 wire format.
func WithSwapTransaction(tx *solana.Transaction) Option {
	return func(cl *Client) {
		cl.swapTx = tx
	}
}

// New creates a Client for the given endpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DecodeTransaction parses a base64 wire-format transaction.
func DecodeTransaction(b64 string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("solrpc: decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("solrpc: unmarshal transaction: %w", err)
	}
	return tx, nil
}

// HasSwapTransaction reports whether SimulateSwap has a transaction to run.
func (c *Client) HasSwapTransaction() bool {
	return c.swapTx != nil
}

// TopHolders returns the largest token accounts of the mint (descending, as
// the node reports them) together with the total supply, both in raw units.
func (c *Client) TopHolders(ctx context.Context, token domain.TokenIdentifier) (domain.HolderDistribution, error) {
	mint, err := solana.PublicKeyFromBase58(token.String())
	if err != nil {
		return domain.HolderDistribution{}, fmt.Errorf("solrpc: top holders %s: %w", token, domain.ErrInvalidToken)
	}

	supply, err := c.rpc.GetTokenSupply(ctx, mint, c.commitment)
	if err != nil {
		return domain.HolderDistribution{}, fmt.Errorf("solrpc: token supply %s: %w", token, err)
	}
	if supply == nil || supply.Value == nil {
		return domain.HolderDistribution{}, fmt.Errorf("solrpc: token supply %s: %w", token, domain.ErrUnexpectedResponse)
	}
	total, err := decimal.NewFromString(supply.Value.Amount)
	if err != nil {
		return domain.HolderDistribution{}, fmt.Errorf("solrpc: parse supply %s: %w", token, err)
	}

	largest, err := c.rpc.GetTokenLargestAccounts(ctx, mint, c.commitment)
	if err != nil {
		return domain.HolderDistribution{}, fmt.Errorf("solrpc: largest accounts %s: %w", token, err)
	}
	if largest == nil {
		return domain.HolderDistribution{}, fmt.Errorf("solrpc: largest accounts %s: %w", token, domain.ErrUnexpectedResponse)
	}

	dist := domain.HolderDistribution{
		Supply:  total,
		Holders: make([]decimal.Decimal, 0, len(largest.Value)),
	}
	for _, acct := range largest.Value {
		if acct == nil {
			continue
		}
		amt, err := decimal.NewFromString(acct.Amount)
		if err != nil {
			return domain.HolderDistribution{}, fmt.Errorf("solrpc: parse holder amount %s: %w", token, err)
		}
		dist.Holders = append(dist.Holders, amt)
	}
	return dist, nil
}

// SimulateSwap dry-runs the configured swap transaction. Signature checks are
// skipped so a stale signature does not mask the program result.
func (c *Client) SimulateSwap(ctx context.Context, token domain.TokenIdentifier) (domain.SimulationResult, error) {
	if c.swapTx == nil {
		return domain.SimulationResult{}, fmt.Errorf("solrpc: simulate swap %s: no swap transaction configured", token)
	}

	out, err := c.rpc.SimulateTransactionWithOpts(ctx, c.swapTx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		Commitment:             c.commitment,
		ReplaceRecentBlockhash: true,
	})
	if err != nil {
		return domain.SimulationResult{}, fmt.Errorf("solrpc: simulate swap %s: %w", token, err)
	}
	if out == nil || out.Value == nil {
		return domain.SimulationResult{}, fmt.Errorf("solrpc: simulate swap %s: %w", token, domain.ErrUnexpectedResponse)
	}

	res := domain.SimulationResult{Logs: out.Value.Logs}
	if out.Value.Err != nil {
		res.Failed = true
		res.Reason = fmt.Sprint(out.Value.Err)
	}
	return res, nil
}

// Compile-time interface checks.
var (
	_ domain.HolderSource  = (*Client)(nil)
	_ domain.SwapSimulator = (*Client)(nil)
)
