// Package safety runs the per-token safety checks concurrently and folds
// them into a verdict.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/observability"
)

// Check answers one safety question about a token. An error means the
// answer is unknown and is treated as a failed check.
type Check func(ctx context.Context, token domain.TokenIdentifier) (bool, error)

// Checks is the fixed set of checks the orchestrator runs. A nil check
// always fails.
type Checks struct {
	HolderConcentration Check
	LiquidityLock       Check
	Reputation          Check
	SwapSimulation      Check
}

// Orchestrator launches every check for a token at once and joins them.
// No check is skipped or cancelled because a sibling failed.
type Orchestrator struct {
	checks  Checks
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator. timeout bounds each check; zero
// means checks are bounded only by the caller's context.
func NewOrchestrator(checks Checks, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		checks:  checks,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "safety")),
	}
}

// Evaluate reports whether every check passed.
func (o *Orchestrator) Evaluate(ctx context.Context, token domain.TokenIdentifier) bool {
	return o.Verdict(ctx, token).Passed()
}

// Verdict runs the four checks concurrently and returns each outcome.
func (o *Orchestrator) Verdict(ctx context.Context, token domain.TokenIdentifier) domain.SafetyVerdict {
	var (
		v domain.SafetyVerdict
		g errgroup.Group
	)

	// Each goroutine owns one field of v; Wait orders the writes before the read.
	g.Go(func() error {
		v.HolderConcentrationOK = o.run(ctx, token, domain.CheckHolderConcentration, o.checks.HolderConcentration)
		return nil
	})
	g.Go(func() error {
		v.LiquidityLocked = o.run(ctx, token, domain.CheckLiquidityLock, o.checks.LiquidityLock)
		return nil
	})
	g.Go(func() error {
		v.NotFlaggedUnsafe = o.run(ctx, token, domain.CheckReputation, o.checks.Reputation)
		return nil
	})
	g.Go(func() error {
		v.SwapSimulationOK = o.run(ctx, token, domain.CheckSwapSimulation, o.checks.SwapSimulation)
		return nil
	})
	_ = g.Wait()

	o.logger.Debug("safety verdict",
		slog.String("token", token.String()),
		slog.Bool("holder_concentration", v.HolderConcentrationOK),
		slog.Bool("liquidity_locked", v.LiquidityLocked),
		slog.Bool("not_flagged", v.NotFlaggedUnsafe),
		slog.Bool("swap_simulation", v.SwapSimulationOK),
	)
	return v
}

// run executes one check under the per-check timeout, converting errors
// and panics into a failed outcome.
func (o *Orchestrator) run(ctx context.Context, token domain.TokenIdentifier, name string, check Check) (ok bool) {
	start := time.Now()
	result := "fail"
	defer func() {
		if r := recover(); r != nil {
			ok = false
			result = "error"
			o.logger.Error("safety check panicked",
				slog.String("check", name),
				slog.String("token", token.String()),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
		o.metrics.RecordSafetyCheck(name, result, time.Since(start))
	}()

	if check == nil {
		result = "error"
		return false
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	passed, err := check(ctx, token)
	if err != nil {
		result = "error"
		o.logger.Warn("safety check failed",
			slog.String("check", name),
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if passed {
		result = "pass"
	}
	return passed
}
