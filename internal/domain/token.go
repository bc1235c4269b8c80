package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// ChainSolana is the chain identifier the bot tracks.
const ChainSolana = "solana"

// Token identifier length bounds (base-58 encoded 32-byte addresses).
const (
	MinTokenLength = 32
	MaxTokenLength = 44
)

// TokenIdentifier is a validated base-58 token address. Construct it with
// ParseTokenIdentifier; the zero value is not a valid identifier.
type TokenIdentifier string

// ParseTokenIdentifier validates s against the base-58 alphabet and the
// 32–44 character length rule.
func ParseTokenIdentifier(s string) (TokenIdentifier, error) {
	if len(s) < MinTokenLength || len(s) > MaxTokenLength {
		return "", fmt.Errorf("%w: length %d outside [%d,%d]", ErrInvalidToken, len(s), MinTokenLength, MaxTokenLength)
	}
	if _, err := base58.Decode(s); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidToken, s, err)
	}
	return TokenIdentifier(s), nil
}

// String returns the address.
func (t TokenIdentifier) String() string {
	return string(t)
}
