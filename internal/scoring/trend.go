// Package scoring computes the composite trend score of a pair snapshot.
package scoring

import (
	"fmt"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// Default weights of the price and volume terms.
const (
	DefaultPriceWeight  = 0.7
	DefaultVolumeWeight = 0.3
)

// Engine scores price and volume momentum over a trailing window. The score
// is the raw weighted sum of relative changes and is not clamped: a doubling
// price alone scores 0.7, and crashes go negative.
type Engine struct {
	priceWeight  float64
	volumeWeight float64
	window       int
}

// NewEngine returns an Engine with the default weights over window points;
// window <= 0 selects domain.DefaultHistoryWindow.
func NewEngine(window int) *Engine {
	if window <= 0 {
		window = domain.DefaultHistoryWindow
	}
	return &Engine{
		priceWeight:  DefaultPriceWeight,
		volumeWeight: DefaultVolumeWeight,
		window:       window,
	}
}

// Score returns priceWeight*priceChange + volumeWeight*volumeChange over the
// last window values of each series (oldest first). A series with fewer
// than two values, or whose first value is zero, contributes nothing.
func (e *Engine) Score(prices, volumes []float64) float64 {
	return e.priceWeight*change(tail(prices, e.window)) + e.volumeWeight*change(tail(volumes, e.window))
}

// Analyze scores the snapshot. Both histories need at least two points
// inside the window, otherwise it returns domain.ErrInsufficientHistory.
func (e *Engine) Analyze(snap domain.PairSnapshot) (domain.AnalysisResult, error) {
	prices := tail(snap.Prices(), e.window)
	volumes := tail(snap.Volumes(), e.window)
	if len(prices) < 2 || len(volumes) < 2 {
		return domain.AnalysisResult{}, fmt.Errorf("scoring: %w: %d price, %d volume points",
			domain.ErrInsufficientHistory, len(prices), len(volumes))
	}

	return domain.AnalysisResult{
		Score:     e.Score(prices, volumes),
		Price:     snap.Price,
		Liquidity: snap.Liquidity,
	}, nil
}

// change is (last-first)/first, or 0 when undefined.
func change(xs []float64) float64 {
	if len(xs) < 2 || xs[0] == 0 {
		return 0
	}
	return (xs[len(xs)-1] - xs[0]) / xs[0]
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
