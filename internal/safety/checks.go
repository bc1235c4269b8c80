package safety

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// DefaultTopHolders is how many of the largest holders are checked.
const DefaultTopHolders = 3

// DefaultMaxHolderShare is the largest share of supply a top holder may own.
var DefaultMaxHolderShare = decimal.NewFromFloat(0.10)

// HolderConcentration fails when any of the top n holders owns more than
// maxShare of total supply. A token with no reported holders fails.
func HolderConcentration(src domain.HolderSource, n int, maxShare decimal.Decimal) Check {
	if n <= 0 {
		n = DefaultTopHolders
	}
	return func(ctx context.Context, token domain.TokenIdentifier) (bool, error) {
		dist, err := src.TopHolders(ctx, token)
		if err != nil {
			return false, err
		}
		if len(dist.Holders) == 0 {
			return false, nil
		}
		if !dist.Supply.IsPositive() {
			return false, fmt.Errorf("safety: holder concentration %s: supply %s: %w", token, dist.Supply, domain.ErrUnexpectedResponse)
		}

		top := dist.Holders
		if len(top) > n {
			top = top[:n]
		}
		for _, h := range top {
			if h.Div(dist.Supply).GreaterThan(maxShare) {
				return false, nil
			}
		}
		return true, nil
	}
}

// LiquidityLock passes when the pool reports a positive locked amount.
func LiquidityLock(src domain.LiquidityLockSource) Check {
	return func(ctx context.Context, token domain.TokenIdentifier) (bool, error) {
		locked, err := src.LockedLiquidity(ctx, token)
		if err != nil {
			return false, err
		}
		return locked.IsPositive(), nil
	}
}

// Reputation passes when the token is not flagged unsafe.
func Reputation(src domain.ReputationSource) Check {
	return func(ctx context.Context, token domain.TokenIdentifier) (bool, error) {
		flagged, err := src.IsFlagged(ctx, token)
		if err != nil {
			return false, err
		}
		return !flagged, nil
	}
}

// SwapSimulation passes when the dry-run swap reports no error.
func SwapSimulation(sim domain.SwapSimulator) Check {
	return func(ctx context.Context, token domain.TokenIdentifier) (bool, error) {
		res, err := sim.SimulateSwap(ctx, token)
		if err != nil {
			return false, err
		}
		return !res.Failed, nil
	}
}
