package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

type memoryStore struct {
	keys   map[string]bool
	setErr error
}

func newMemoryStore() *memoryStore { return &memoryStore{keys: map[string]bool{}} }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryStore) WebhookKey(provider, fingerprint string) string {
	return "tithe:webhook:" + provider + ":" + fingerprint
}

func TestGuardDetectsRedelivery(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	body := []byte(`{"CheckoutRequestID":"ABC123"}`)

	seen, err := guard.CheckAndMark(ctx, enums.ProviderMpesa, body)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, enums.ProviderMpesa, body)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = guard.CheckAndMark(ctx, enums.ProviderSquare, body)
	require.NoError(t, err)
	assert.False(t, seen, "fingerprint is scoped per provider")
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	body := []byte(`{}`)

	_, err = guard.CheckAndMark(ctx, enums.ProviderMpesa, body)
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, enums.ProviderMpesa, body))

	seen, err := guard.CheckAndMark(ctx, enums.ProviderMpesa, body)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardPropagatesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("redis down")
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), enums.ProviderMpesa, []byte(`{}`))
	require.ErrorIs(t, err, store.setErr)
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour)
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second)
	require.Error(t, err)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(enums.ProviderMpesa, []byte("x"))
	assert.Equal(t, a, Fingerprint(enums.ProviderMpesa, []byte("x")))
	assert.NotEqual(t, a, Fingerprint(enums.ProviderMpesa, []byte("y")))
	assert.Len(t, a, 64)
}
