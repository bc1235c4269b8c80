package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHistoryWindow is the number of price/volume points a snapshot keeps.
const DefaultHistoryWindow = 10

// HistoryPoint is a single timestamped observation (a price or a volume).
type HistoryPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// PairSnapshot is the last-known market state of a token's trading pair.
// PriceHistory and VolumeHistory are ordered oldest-first.
type PairSnapshot struct {
	ChainID       string          `json:"chain_id"`
	DexID         string          `json:"dex_id"`
	PairAddress   string          `json:"pair_address"`
	BaseToken     string          `json:"base_token"`
	Price         decimal.Decimal `json:"price"`
	Liquidity     decimal.Decimal `json:"liquidity"`
	PriceHistory  []HistoryPoint  `json:"price_history"`
	VolumeHistory []HistoryPoint  `json:"volume_history"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PairEvent is a pair update received from the live market feed.
type PairEvent struct {
	ChainID      string
	TokenAddress string
	Snapshot     PairSnapshot
}

// AddPrice inserts p in time order and evicts the oldest points beyond window.
func (s *PairSnapshot) AddPrice(p HistoryPoint, window int) {
	s.PriceHistory = insertWindowed(s.PriceHistory, p, window)
}

// AddVolume inserts p in time order and evicts the oldest points beyond window.
func (s *PairSnapshot) AddVolume(p HistoryPoint, window int) {
	s.VolumeHistory = insertWindowed(s.VolumeHistory, p, window)
}

// Normalize returns a copy whose histories are sorted oldest-first and
// trimmed to the most recent window points. Points with equal timestamps
// keep their source order.
func (s PairSnapshot) Normalize(window int) PairSnapshot {
	out := s.Clone()
	out.PriceHistory = normalizeHistory(out.PriceHistory, window)
	out.VolumeHistory = normalizeHistory(out.VolumeHistory, window)
	return out
}

// Clone returns a deep copy of the snapshot.
func (s PairSnapshot) Clone() PairSnapshot {
	out := s
	if s.PriceHistory != nil {
		out.PriceHistory = append([]HistoryPoint(nil), s.PriceHistory...)
	}
	if s.VolumeHistory != nil {
		out.VolumeHistory = append([]HistoryPoint(nil), s.VolumeHistory...)
	}
	return out
}

// Prices returns the price history values oldest-first.
func (s PairSnapshot) Prices() []float64 {
	return values(s.PriceHistory)
}

// Volumes returns the volume history values oldest-first.
func (s PairSnapshot) Volumes() []float64 {
	return values(s.VolumeHistory)
}

func values(points []HistoryPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func insertWindowed(points []HistoryPoint, p HistoryPoint, window int) []HistoryPoint {
	// First index whose timestamp is after p, so equal timestamps stay in
	// arrival order.
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].At.After(p.At)
	})
	points = append(points, HistoryPoint{})
	copy(points[idx+1:], points[idx:])
	points[idx] = p
	return trimHistory(points, window)
}

func normalizeHistory(points []HistoryPoint, window int) []HistoryPoint {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].At.Before(points[j].At)
	})
	return trimHistory(points, window)
}

func trimHistory(points []HistoryPoint, window int) []HistoryPoint {
	if window <= 0 || len(points) <= window {
		return points
	}
	return append([]HistoryPoint(nil), points[len(points)-window:]...)
}
