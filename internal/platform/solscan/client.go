// Package solscan reads token reputation flags from the Solscan API.
package solscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/platform/rest"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.solscan.io"

	// DefaultFlagField is the token meta field marking an unsafe token.
	DefaultFlagField = "isSlerf"
)

// Client implements domain.ReputationSource.
type Client struct {
	baseURL    string
	flagField  string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Solscan client. flagField names the boolean meta
// field that marks a token unsafe; apiKey is sent in the "token" header
// when set.
func NewClient(baseURL, flagField, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if flagField == "" {
		flagField = DefaultFlagField
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		flagField:  flagField,
		apiKey:     apiKey,
		httpClient: rest.NewHTTPClient(timeout),
	}
}

// IsFlagged reports whether the token meta carries the flag. The field is
// looked up at the top level and under "data"; an absent field reads as
// not flagged.
func (c *Client) IsFlagged(ctx context.Context, token domain.TokenIdentifier) (bool, error) {
	params := url.Values{}
	params.Set("tokenAddress", token.String())
	endpoint := c.baseURL + "/token/meta?" + params.Encode()

	var hdr http.Header
	if c.apiKey != "" {
		hdr = http.Header{"Token": []string{c.apiKey}}
	}

	var body map[string]json.RawMessage
	if err := rest.GetJSON(ctx, c.httpClient, endpoint, hdr, &body); err != nil {
		return false, fmt.Errorf("solscan: token meta %s: %w", token, err)
	}

	raw, ok := body[c.flagField]
	if !ok {
		var data map[string]json.RawMessage
		if nested, found := body["data"]; found && json.Unmarshal(nested, &data) == nil {
			raw, ok = data[c.flagField]
		}
	}
	if !ok || string(raw) == "null" {
		return false, nil
	}

	var flagged bool
	if err := json.Unmarshal(raw, &flagged); err != nil {
		return false, fmt.Errorf("solscan: parse %s for %s: %w: %s", c.flagField, token, domain.ErrUnexpectedResponse, string(raw))
	}
	return flagged, nil
}

// Compile-time interface check.
var _ domain.ReputationSource = (*Client)(nil)
