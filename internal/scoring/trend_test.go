package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/domain"
)

func series(vals ...float64) []domain.HistoryPoint {
	out := make([]domain.HistoryPoint, len(vals))
	for i, v := range vals {
		out[i] = domain.HistoryPoint{At: time.Unix(int64(i), 0), Value: v}
	}
	return out
}

func TestScore_Reference(t *testing.T) {
	e := NewEngine(10)
	prices := []float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.1}
	volumes := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 110}

	assert.InDelta(t, 0.1, e.Score(prices, volumes), 1e-9)
}

func TestScore_ZeroFirstValueContributesNothing(t *testing.T) {
	e := NewEngine(10)

	assert.NotPanics(t, func() {
		assert.InDelta(t, 0.3*0.1, e.Score([]float64{0, 5}, []float64{100, 110}), 1e-9)
		assert.InDelta(t, 0.7*0.1, e.Score([]float64{1, 1.1}, []float64{0, 50}), 1e-9)
		assert.Equal(t, 0.0, e.Score([]float64{0, 1}, []float64{0, 1}))
	})
}

func TestScore_UsesTrailingWindow(t *testing.T) {
	e := NewEngine(3)
	// Only the last three prices (2, 3, 4) count: change = 1.0.
	assert.InDelta(t, 0.7, e.Score([]float64{100, 1, 2, 3, 4}, []float64{1, 1}), 1e-9)
}

func TestScore_Unbounded(t *testing.T) {
	e := NewEngine(10)
	assert.InDelta(t, 0.7*9+0.3*4, e.Score([]float64{1, 10}, []float64{1, 5}), 1e-9)
	assert.Less(t, e.Score([]float64{10, 1}, []float64{10, 1}), 0.0)
}

func TestAnalyze(t *testing.T) {
	e := NewEngine(10)
	snap := domain.PairSnapshot{
		Price:         decimal.RequireFromString("1.1"),
		Liquidity:     decimal.RequireFromString("50000"),
		PriceHistory:  series(1.0, 1.05, 1.1),
		VolumeHistory: series(100, 105, 110),
	}

	res, err := e.Analyze(snap)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, res.Score, 1e-9)
	assert.True(t, res.Price.Equal(snap.Price))
	assert.True(t, res.Liquidity.Equal(snap.Liquidity))
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	e := NewEngine(10)

	for _, snap := range []domain.PairSnapshot{
		{},
		{PriceHistory: series(1), VolumeHistory: series(1, 2)},
		{PriceHistory: series(1, 2), VolumeHistory: series(1)},
	} {
		_, err := e.Analyze(snap)
		assert.True(t, errors.Is(err, domain.ErrInsufficientHistory))
	}
}
