package dexscreener

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string; DEX Screener
// sends history values either way.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// APIToken is the base or quote token of a pair.
type APIToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// APILiquidity is the pool liquidity breakdown.
type APILiquidity struct {
	USD   decimal.Decimal `json:"usd"`
	Base  flexFloat       `json:"base"`
	Quote flexFloat       `json:"quote"`
}

// APIPricePoint is one entry of a pair's price history.
type APIPricePoint struct {
	Timestamp int64     `json:"timestamp"`
	PriceUSD  flexFloat `json:"priceUsd"`
}

// APIVolumePoint is one entry of a pair's volume history.
type APIVolumePoint struct {
	Timestamp int64     `json:"timestamp"`
	Volume    flexFloat `json:"volume"`
}

// APIPair is a trading pair as returned by the REST API and the pair feed.
// The feed names the pair address "address"; the REST API uses "pairAddress".
type APIPair struct {
	ChainID       string           `json:"chainId"`
	DexID         string           `json:"dexId"`
	PairAddress   string           `json:"pairAddress"`
	Address       string           `json:"address"`
	BaseToken     APIToken         `json:"baseToken"`
	QuoteToken    APIToken         `json:"quoteToken"`
	PriceUSD      decimal.Decimal  `json:"priceUsd"`
	Liquidity     APILiquidity     `json:"liquidity"`
	PriceHistory  []APIPricePoint  `json:"priceHistory"`
	VolumeHistory []APIVolumePoint `json:"volumeHistory"`
	PairCreatedAt int64            `json:"pairCreatedAt"`
}

// TokensResponse is the body of GET /latest/dex/tokens/{address}.
type TokensResponse struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []APIPair `json:"pairs"`
}

// StreamMessage is one frame of the pair feed. A frame carries either a
// single pair or a batch.
type StreamMessage struct {
	Pair  *APIPair  `json:"pair"`
	Pairs []APIPair `json:"pairs"`
}

// ToDomain converts the pair into a snapshot whose histories are ordered
// oldest-first and trimmed to window points.
func (p *APIPair) ToDomain(window int, now time.Time) domain.PairSnapshot {
	addr := p.PairAddress
	if addr == "" {
		addr = p.Address
	}

	snap := domain.PairSnapshot{
		ChainID:     p.ChainID,
		DexID:       p.DexID,
		PairAddress: addr,
		BaseToken:   p.BaseToken.Address,
		Price:       p.PriceUSD,
		Liquidity:   p.Liquidity.USD,
		UpdatedAt:   now,
	}

	if len(p.PriceHistory) > 0 {
		snap.PriceHistory = make([]domain.HistoryPoint, 0, len(p.PriceHistory))
		for _, pt := range p.PriceHistory {
			snap.PriceHistory = append(snap.PriceHistory, domain.HistoryPoint{
				At:    msToTime(pt.Timestamp),
				Value: float64(pt.PriceUSD),
			})
		}
	}
	if len(p.VolumeHistory) > 0 {
		snap.VolumeHistory = make([]domain.HistoryPoint, 0, len(p.VolumeHistory))
		for _, pt := range p.VolumeHistory {
			snap.VolumeHistory = append(snap.VolumeHistory, domain.HistoryPoint{
				At:    msToTime(pt.Timestamp),
				Value: float64(pt.Volume),
			})
		}
	}

	return snap.Normalize(window)
}

// ToEvent wraps the converted pair as a feed event keyed by its base token.
func (p *APIPair) ToEvent(window int, now time.Time) domain.PairEvent {
	return domain.PairEvent{
		ChainID:      p.ChainID,
		TokenAddress: p.BaseToken.Address,
		Snapshot:     p.ToDomain(window, now),
	}
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
