package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// PairCache implements domain.PairCache with one JSON string per token.
//
// Key schema:
//
//	{chain}:pair:{address} - JSON envelope {snapshot, inserted_at, ttl_ms}, SET with EX
//
// Redis expires the key; the envelope timestamp is also checked on read so
// an entry is never served at or past its TTL.
type PairCache struct {
	rdb   *redis.Client
	chain string
	now   func() time.Time
}

// NewPairCache creates a PairCache for the given chain backed by c.
func NewPairCache(c *Client, chain string) *PairCache {
	return &PairCache{rdb: c.Underlying(), chain: chain, now: time.Now}
}

type pairEnvelope struct {
	Snapshot   domain.PairSnapshot `json:"snapshot"`
	InsertedAt time.Time           `json:"inserted_at"`
	TTLMillis  int64               `json:"ttl_ms"`
}

func pairKey(chain string, token domain.TokenIdentifier) string {
	return chain + ":pair:" + string(token)
}

// Put stores snap under the token's key with the given TTL.
func (pc *PairCache) Put(ctx context.Context, token domain.TokenIdentifier, snap domain.PairSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis: put pair %s: ttl must be positive, got %s", token, ttl)
	}

	data, err := json.Marshal(pairEnvelope{
		Snapshot:   snap,
		InsertedAt: pc.now(),
		TTLMillis:  ttl.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal pair %s: %w", token, err)
	}

	if err := pc.rdb.Set(ctx, pairKey(pc.chain, token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set pair %s: %w", token, err)
	}
	return nil
}

// Get returns the cached snapshot for token. Missing, expired and
// undecodable entries are reported as absent; undecodable ones also return
// an error so the caller can log them.
func (pc *PairCache) Get(ctx context.Context, token domain.TokenIdentifier) (domain.PairSnapshot, bool, error) {
	data, err := pc.rdb.Get(ctx, pairKey(pc.chain, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PairSnapshot{}, false, nil
		}
		return domain.PairSnapshot{}, false, fmt.Errorf("redis: get pair %s: %w", token, err)
	}

	var env pairEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.PairSnapshot{}, false, fmt.Errorf("redis: unmarshal pair %s: %w", token, err)
	}

	ttl := time.Duration(env.TTLMillis) * time.Millisecond
	if ttl > 0 && pc.now().Sub(env.InsertedAt) >= ttl {
		return domain.PairSnapshot{}, false, nil
	}
	return env.Snapshot, true, nil
}

// Invalidate removes the token's entry.
func (pc *PairCache) Invalidate(ctx context.Context, token domain.TokenIdentifier) error {
	if err := pc.rdb.Del(ctx, pairKey(pc.chain, token)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pair %s: %w", token, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PairCache = (*PairCache)(nil)
