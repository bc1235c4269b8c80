package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/cache/memory"
	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/extract"
	"github.com/alanyoungcy/solbot/internal/marketdata"
	"github.com/alanyoungcy/solbot/internal/notify"
	"github.com/alanyoungcy/solbot/internal/safety"
	"github.com/alanyoungcy/solbot/internal/scoring"
)

const (
	tokenA = domain.TokenIdentifier("So11111111111111111111111111111111111111112")
	tokenB = domain.TokenIdentifier("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticOrigin struct {
	pairs map[domain.TokenIdentifier][]domain.PairSnapshot
	calls atomic.Int32
}

func (o *staticOrigin) TokenPairs(_ context.Context, token domain.TokenIdentifier) ([]domain.PairSnapshot, error) {
	o.calls.Add(1)
	return o.pairs[token], nil
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) Notify(_ context.Context, _, title, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, title+"\n"+message)
	return nil
}

func (b *recordingBroadcaster) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

func pass(context.Context, domain.TokenIdentifier) (bool, error) { return true, nil }
func fail(context.Context, domain.TokenIdentifier) (bool, error) { return false, nil }

// trendingPair scores 0.7*1.0 + 0.3*0.5 = 0.85.
func trendingPair() domain.PairSnapshot {
	t0 := time.Unix(1700000000, 0)
	return domain.PairSnapshot{
		ChainID:   "solana",
		DexID:     "raydium",
		BaseToken: tokenA.String(),
		Price:     decimal.RequireFromString("2.5"),
		Liquidity: decimal.NewFromInt(50000),
		PriceHistory: []domain.HistoryPoint{
			{At: t0, Value: 1.0},
			{At: t0.Add(time.Minute), Value: 2.0},
		},
		VolumeHistory: []domain.HistoryPoint{
			{At: t0, Value: 100},
			{At: t0.Add(time.Minute), Value: 150},
		},
	}
}

type harness struct {
	pipeline *Pipeline
	origin   *staticOrigin
	out      *recordingBroadcaster
}

func newHarness(t *testing.T, pairs map[domain.TokenIdentifier][]domain.PairSnapshot, checks safety.Checks) *harness {
	t.Helper()
	logger := discardLogger()
	origin := &staticOrigin{pairs: pairs}
	out := &recordingBroadcaster{}

	fetcher := marketdata.NewFetcher(
		memory.NewPairCache(),
		memory.NewRateLimiter(10, time.Second),
		origin,
		marketdata.Config{TTL: time.Minute},
		nil, logger,
	)
	eval := NewEvaluator(
		fetcher,
		safety.NewOrchestrator(checks, time.Second, nil, logger),
		scoring.NewEngine(10),
		notify.NewAlertDispatcher(out, notify.DefaultThreshold, nil, nil, logger),
		nil, logger,
	)
	return &harness{
		pipeline: New(extract.New(5), eval, 4, logger),
		origin:   origin,
		out:      out,
	}
}

func allPass() safety.Checks {
	return safety.Checks{
		HolderConcentration: pass,
		LiquidityLock:       pass,
		Reputation:          pass,
		SwapSimulation:      pass,
	}
}

func TestPipeline_NoDataSendsNothing(t *testing.T) {
	h := newHarness(t, nil, allPass())

	n := h.pipeline.HandleText(context.Background(), "check "+tokenA.String()+" and abc123")
	assert.Equal(t, 1, n)

	require.NoError(t, h.pipeline.Wait(5*time.Second))
	assert.Equal(t, int32(1), h.origin.calls.Load())
	assert.Empty(t, h.out.sent())
}

func TestPipeline_AlertsOnceWhenSafeAndTrending(t *testing.T) {
	h := newHarness(t, map[domain.TokenIdentifier][]domain.PairSnapshot{
		tokenA: {trendingPair()},
	}, allPass())

	n := h.pipeline.HandleText(context.Background(), tokenA.String())
	assert.Equal(t, 1, n)
	require.NoError(t, h.pipeline.Wait(5*time.Second))

	sent := h.out.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], tokenA.String())
	assert.Contains(t, sent[0], "0.85")
}

func TestPipeline_UnsafeTokenSendsNothing(t *testing.T) {
	checks := allPass()
	checks.LiquidityLock = fail
	h := newHarness(t, map[domain.TokenIdentifier][]domain.PairSnapshot{
		tokenA: {trendingPair()},
	}, checks)

	h.pipeline.HandleText(context.Background(), tokenA.String())
	require.NoError(t, h.pipeline.Wait(5*time.Second))
	assert.Empty(t, h.out.sent())
}

func TestPipeline_CallerCancellationDoesNotAbortTasks(t *testing.T) {
	h := newHarness(t, map[domain.TokenIdentifier][]domain.PairSnapshot{
		tokenA: {trendingPair()},
	}, allPass())

	ctx, cancel := context.WithCancel(context.Background())
	h.pipeline.HandleText(ctx, tokenA.String())
	cancel()

	require.NoError(t, h.pipeline.Wait(5*time.Second))
	assert.Len(t, h.out.sent(), 1)
}

func TestPipeline_SubmitAfterWaitIsRejected(t *testing.T) {
	h := newHarness(t, nil, allPass())
	require.NoError(t, h.pipeline.Wait(time.Second))

	assert.False(t, h.pipeline.Submit(context.Background(), tokenA))
	assert.Zero(t, h.pipeline.HandleText(context.Background(), tokenA.String()))
}

type funcEvaluator func(ctx context.Context, token domain.TokenIdentifier) Outcome

func (f funcEvaluator) Evaluate(ctx context.Context, token domain.TokenIdentifier) Outcome {
	return f(ctx, token)
}

func TestPipeline_PanicIsContained(t *testing.T) {
	var done atomic.Int32
	eval := funcEvaluator(func(_ context.Context, token domain.TokenIdentifier) Outcome {
		if token == tokenA {
			panic("boom")
		}
		done.Add(1)
		return OutcomeNoData
	})
	p := New(extract.New(5), eval, 2, discardLogger())

	n := p.HandleText(context.Background(), tokenA.String()+" "+tokenB.String())
	assert.Equal(t, 2, n)
	require.NoError(t, p.Wait(5*time.Second))
	assert.Equal(t, int32(1), done.Load())
}

func TestPipeline_WaitTimeoutCancelsTasks(t *testing.T) {
	eval := funcEvaluator(func(ctx context.Context, _ domain.TokenIdentifier) Outcome {
		<-ctx.Done()
		return OutcomeError
	})
	p := New(extract.New(5), eval, 2, discardLogger())

	require.True(t, p.Submit(context.Background(), tokenA))
	assert.ErrorIs(t, p.Wait(50*time.Millisecond), ErrClosed)
}

func TestPipeline_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	eval := funcEvaluator(func(context.Context, domain.TokenIdentifier) Outcome {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return OutcomeNoData
	})
	p := New(extract.New(5), eval, 2, discardLogger())

	for i := 0; i < 6; i++ {
		require.True(t, p.Submit(context.Background(), tokenA))
	}
	require.NoError(t, p.Wait(5*time.Second))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type stubResolver struct {
	snap domain.PairSnapshot
	ok   bool
}

func (r stubResolver) Resolve(context.Context, domain.TokenIdentifier) (domain.PairSnapshot, bool) {
	return r.snap, r.ok
}

type countingGate struct{ calls atomic.Int32 }

func (g *countingGate) Evaluate(context.Context, domain.TokenIdentifier) bool {
	g.calls.Add(1)
	return true
}

type stubDispatcher struct{ decision notify.Decision }

func (d stubDispatcher) Dispatch(context.Context, domain.TokenIdentifier, domain.AnalysisResult) notify.Decision {
	return d.decision
}

func TestEvaluator_Outcomes(t *testing.T) {
	short := trendingPair()
	short.VolumeHistory = short.VolumeHistory[:1]

	tests := []struct {
		name        string
		resolver    stubResolver
		decision    notify.Decision
		want        Outcome
		safetyCalls int32
	}{
		{"no data", stubResolver{}, notify.DecisionSent, OutcomeNoData, 0},
		{"short history skips safety", stubResolver{snap: short, ok: true}, notify.DecisionSent, OutcomeInsufficientHistory, 0},
		{"below threshold", stubResolver{snap: trendingPair(), ok: true}, notify.DecisionBelowThreshold, OutcomeBelowThreshold, 1},
		{"alerted", stubResolver{snap: trendingPair(), ok: true}, notify.DecisionSent, OutcomeAlerted, 1},
		{"delivery failed", stubResolver{snap: trendingPair(), ok: true}, notify.DecisionFailed, OutcomeAlertFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &countingGate{}
			e := NewEvaluator(tt.resolver, gate, scoring.NewEngine(10), stubDispatcher{tt.decision}, nil, discardLogger())
			assert.Equal(t, tt.want, e.Evaluate(context.Background(), tokenA))
			assert.Equal(t, tt.safetyCalls, gate.calls.Load())
		})
	}
}
