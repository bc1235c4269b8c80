// Package pipeline drives token evaluations: extraction from chat text,
// market data resolution, safety checks, scoring and the alert decision.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/notify"
	"github.com/alanyoungcy/solbot/internal/observability"
)

// Outcome is the terminal state of one evaluation.
type Outcome string

const (
	OutcomeNoData              Outcome = "no_data"
	OutcomeInsufficientHistory Outcome = "insufficient_history"
	OutcomeUnsafe              Outcome = "unsafe"
	OutcomeBelowThreshold      Outcome = "below_threshold"
	OutcomeAlerted             Outcome = "alerted"
	OutcomeAlertFailed         Outcome = "alert_failed"
	OutcomeError               Outcome = "error"
)

// Resolver returns the current snapshot for a token. *marketdata.Fetcher
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, token domain.TokenIdentifier) (domain.PairSnapshot, bool)
}

// SafetyGate reports whether a token passes every safety check.
// *safety.Orchestrator implements it.
type SafetyGate interface {
	Evaluate(ctx context.Context, token domain.TokenIdentifier) bool
}

// Analyzer scores a snapshot. *scoring.Engine implements it.
type Analyzer interface {
	Analyze(snap domain.PairSnapshot) (domain.AnalysisResult, error)
}

// Dispatcher decides on and delivers alerts. *notify.AlertDispatcher
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, token domain.TokenIdentifier, res domain.AnalysisResult) notify.Decision
}

// Evaluator runs a single token through the pipeline stages.
type Evaluator struct {
	resolver   Resolver
	safety     SafetyGate
	analyzer   Analyzer
	dispatcher Dispatcher
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewEvaluator creates an Evaluator. metrics may be nil.
func NewEvaluator(resolver Resolver, safety SafetyGate, analyzer Analyzer, dispatcher Dispatcher, metrics *observability.Metrics, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		resolver:   resolver,
		safety:     safety,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate resolves the token, scores it, runs the safety checks and hands
// safe results to the dispatcher. The history guard runs before the safety
// checks so a snapshot that cannot be scored costs no RPC calls.
func (e *Evaluator) Evaluate(ctx context.Context, token domain.TokenIdentifier) Outcome {
	done := e.metrics.EvaluationStarted()
	defer done()

	outcome := e.evaluate(ctx, token)
	e.metrics.RecordEvaluation(string(outcome))
	return outcome
}

func (e *Evaluator) evaluate(ctx context.Context, token domain.TokenIdentifier) Outcome {
	log := e.logger.With(slog.String("token", token.String()))

	snap, ok := e.resolver.Resolve(ctx, token)
	if !ok {
		log.Debug("no market data")
		return OutcomeNoData
	}

	res, err := e.analyzer.Analyze(snap)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientHistory) {
			log.Debug("not enough history to score", slog.String("error", err.Error()))
			return OutcomeInsufficientHistory
		}
		log.Warn("analysis failed", slog.String("error", err.Error()))
		return OutcomeError
	}
	e.metrics.RecordScore(res.Score)

	if !e.safety.Evaluate(ctx, token) {
		log.Info("token failed safety checks")
		return OutcomeUnsafe
	}

	switch e.dispatcher.Dispatch(ctx, token, res) {
	case notify.DecisionSent:
		return OutcomeAlerted
	case notify.DecisionFailed:
		return OutcomeAlertFailed
	default:
		log.Debug("score below threshold", slog.Float64("score", res.Score))
		return OutcomeBelowThreshold
	}
}
