package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(provider, fingerprint string) string
}

// IdempotencyGuard drops byte-identical redeliveries before they reach the engine.
type IdempotencyGuard struct {
	store dedupeStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store dedupeStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// Fingerprint is the dedupe key for one delivery of body.
func Fingerprint(provider enums.Provider, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(provider))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// CheckAndMark returns true when the same delivery was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, provider enums.Provider, body []byte) (bool, error) {
	key := g.store.WebhookKey(provider.String(), Fingerprint(provider, body))
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook dedupe key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so the provider's retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, provider enums.Provider, body []byte) error {
	return g.store.Del(ctx, g.store.WebhookKey(provider.String(), Fingerprint(provider, body)))
}
