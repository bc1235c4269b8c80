package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL. Decimals travel
// as text and are stored as NUMERIC.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Record appends an alert to the journal.
func (s *AlertStore) Record(ctx context.Context, rec domain.AlertRecord) error {
	const query = `
		INSERT INTO alerts (token, score, price, liquidity, message, delivered, error, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, COALESCE($8::timestamptz, NOW()))`

	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}

	_, err := s.pool.Exec(ctx, query,
		rec.Token.String(),
		rec.Score,
		rec.Price.String(),
		rec.Liquidity.String(),
		rec.Message,
		rec.Delivered,
		rec.Error,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record alert %s: %w", rec.Token, err)
	}
	return nil
}

// ListRecent returns up to limit alerts, newest first.
func (s *AlertStore) ListRecent(ctx context.Context, limit int) ([]domain.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, token, score, price::text, liquidity::text, message, delivered, error, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		var (
			rec              domain.AlertRecord
			token            string
			price, liquidity string
		)
		if err := rows.Scan(&rec.ID, &token, &rec.Score, &price, &liquidity,
			&rec.Message, &rec.Delivered, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		rec.Token = domain.TokenIdentifier(token)
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse alert price: %w", err)
		}
		if rec.Liquidity, err = decimal.NewFromString(liquidity); err != nil {
			return nil, fmt.Errorf("postgres: parse alert liquidity: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate alerts: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
