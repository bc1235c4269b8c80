// Package dexscreener is the client for the DEX Screener REST API and its
// live pair-update feed.
package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/platform/rest"
)

// DefaultBaseURL is the public REST API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client queries DEX Screener for the pairs of a token. It implements
// domain.PairSource.
type Client struct {
	baseURL    string
	window     int
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a REST client. window is the history length kept on
// each returned snapshot.
func NewClient(baseURL string, window int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if window <= 0 {
		window = domain.DefaultHistoryWindow
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		window:     window,
		httpClient: rest.NewHTTPClient(timeout),
		now:        time.Now,
	}
}

// TokenPairs returns every pair the API reports for token, in response
// order. A token with no pairs yields an empty slice and no error.
func (c *Client) TokenPairs(ctx context.Context, token domain.TokenIdentifier) ([]domain.PairSnapshot, error) {
	endpoint := c.baseURL + "/latest/dex/tokens/" + url.PathEscape(token.String())

	var resp TokensResponse
	if err := rest.GetJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("dexscreener: token pairs %s: %w", token, err)
	}

	now := c.now()
	pairs := make([]domain.PairSnapshot, 0, len(resp.Pairs))
	for i := range resp.Pairs {
		pairs = append(pairs, resp.Pairs[i].ToDomain(c.window, now))
	}
	return pairs, nil
}

// Compile-time interface check.
var _ domain.PairSource = (*Client)(nil)
