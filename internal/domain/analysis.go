package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AnalysisResult is the transient output of trend scoring. Score is the raw
// weighted change and is not normalised to [0,1].
type AnalysisResult struct {
	Score     float64
	Price     decimal.Decimal
	Liquidity decimal.Decimal
}

// AlertRecord is a journal entry for a dispatched alert.
type AlertRecord struct {
	ID        int64
	Token     TokenIdentifier
	Score     float64
	Price     decimal.Decimal
	Liquidity decimal.Decimal
	Message   string
	Delivered bool
	Error     string
	CreatedAt time.Time
}

// AlertStore persists dispatched alerts.
type AlertStore interface {
	Record(ctx context.Context, rec AlertRecord) error
	ListRecent(ctx context.Context, limit int) ([]AlertRecord, error)
}
