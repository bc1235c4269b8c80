// Package raydium reads pool liquidity lock state from the Raydium API.
package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/platform/rest"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.raydium.io"

	// DefaultLockField is the response field holding the locked amount.
	DefaultLockField = "liquidity_locked"
)

// Client implements domain.LiquidityLockSource.
type Client struct {
	baseURL    string
	lockField  string
	httpClient *http.Client
}

// NewClient creates a Raydium client. lockField names the response field
// read as the locked liquidity amount.
func NewClient(baseURL, lockField string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if lockField == "" {
		lockField = DefaultLockField
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		lockField:  lockField,
		httpClient: rest.NewHTTPClient(timeout),
	}
}

// LockedLiquidity returns the locked liquidity reported for the token's
// pool. An absent field reads as zero.
func (c *Client) LockedLiquidity(ctx context.Context, token domain.TokenIdentifier) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/v2/main/pool/liquidity/" + url.PathEscape(token.String())

	var body map[string]json.RawMessage
	if err := rest.GetJSON(ctx, c.httpClient, endpoint, nil, &body); err != nil {
		return decimal.Zero, fmt.Errorf("raydium: locked liquidity %s: %w", token, err)
	}

	raw, ok := body[c.lockField]
	if !ok {
		return decimal.Zero, nil
	}
	amt, err := parseAmount(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("raydium: parse %s for %s: %w", c.lockField, token, err)
	}
	return amt, nil
}

// parseAmount accepts a number, a numeric string, a bool or null.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	}
	var d decimal.NullDecimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnexpectedResponse, string(raw))
	}
	if !d.Valid {
		return decimal.Zero, nil
	}
	return d.Decimal, nil
}

// Compile-time interface check.
var _ domain.LiquidityLockSource = (*Client)(nil)
