package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Safety check names, used for logs and metrics labels.
const (
	CheckHolderConcentration = "holder_concentration"
	CheckLiquidityLock       = "liquidity_lock"
	CheckReputation          = "reputation"
	CheckSwapSimulation      = "swap_simulation"
)

// SafetyVerdict holds the outcome of each safety check for one evaluation.
// It reflects live state and is never cached.
type SafetyVerdict struct {
	HolderConcentrationOK bool
	LiquidityLocked       bool
	NotFlaggedUnsafe      bool
	SwapSimulationOK      bool
}

// Passed reports whether every check passed.
func (v SafetyVerdict) Passed() bool {
	return v.HolderConcentrationOK && v.LiquidityLocked && v.NotFlaggedUnsafe && v.SwapSimulationOK
}

// HolderDistribution lists the largest holder balances (descending) against
// the token's total supply, in raw base units.
type HolderDistribution struct {
	Supply  decimal.Decimal
	Holders []decimal.Decimal
}

// SimulationResult is the outcome of a dry-run swap.
type SimulationResult struct {
	Failed bool
	Reason string
	Logs   []string
}

// HolderSource reports the top holders of a token.
type HolderSource interface {
	TopHolders(ctx context.Context, token TokenIdentifier) (HolderDistribution, error)
}

// LiquidityLockSource reports the locked liquidity of a token's pool.
type LiquidityLockSource interface {
	LockedLiquidity(ctx context.Context, token TokenIdentifier) (decimal.Decimal, error)
}

// ReputationSource reports whether a token is flagged as unsafe.
type ReputationSource interface {
	IsFlagged(ctx context.Context, token TokenIdentifier) (bool, error)
}

// SwapSimulator dry-runs a swap transaction for a token.
type SwapSimulator interface {
	SimulateSwap(ctx context.Context, token TokenIdentifier) (SimulationResult, error)
}
