package intents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuarypay/tithe-backend/pkg/db/dbtest"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

func TestParkedCallbackLifecycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	parking := NewParkedCallbackRepository(dbtest.Open(t), time.Second).WithClock(func() time.Time { return clock })

	parked, err := parking.Park(ctx, enums.ProviderMpesa, "REF-1", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.True(t, parked)

	parked, err = parking.Park(ctx, enums.ProviderMpesa, "REF-1", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.False(t, parked, "identical body is stored once")

	clock = base.Add(time.Minute)
	parked, err = parking.Park(ctx, enums.ProviderSquare, "REF-2", []byte(`{"b":2}`))
	require.NoError(t, err)
	assert.True(t, parked)

	rows, err := parking.ListParked(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "REF-1", rows[0].ProviderReference)
	assert.Equal(t, []byte(`{"a":1}`), rows[0].Body)
	assert.Len(t, rows[0].BodySHA256, 64)

	require.NoError(t, parking.MarkAttempt(ctx, rows[0].ID))
	require.NoError(t, parking.Unpark(ctx, rows[1].ID))

	rows, err = parking.ListParked(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Attempts)
	require.NotNil(t, rows[0].LastAttemptAt)
}
