package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chargeflow/backend/services/charging-service/internal/models"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStoreRoundTrip(t *testing.T) {
	mr, client := newClient(t)
	store := NewStore(client, time.Hour)
	ctx := context.Background()

	missing, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	session := &models.Session{
		ID:           "s1",
		UserID:       "u1",
		PointID:      "p1",
		Status:       models.SessionStatusActive,
		MeterStart:   decimal.RequireFromString("100.0"),
		MeterCurrent: decimal.RequireFromString("112.5"),
		Tariff:       models.Tariff{PricePerKWh: decimal.NewFromInt(5000), Currency: "VND"},
	}
	require.NoError(t, store.Save(ctx, session))
	assert.True(t, mr.Exists("sessions:active:user:u1"))
	assert.Greater(t, mr.TTL("sessions:active:user:u1"), time.Duration(0))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)
	assert.True(t, got.EnergyKWh().Equal(decimal.RequireFromString("12.5")))
	assert.True(t, got.Tariff.PricePerKWh.Equal(decimal.NewFromInt(5000)))

	require.NoError(t, store.Delete(ctx, "u1"))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	mr, client := newClient(t)
	locker := NewLocker(client, time.Minute, zap.NewNop())

	unlock, err := locker.Lock(context.Background(), "user:1", "point:7")
	require.NoError(t, err)
	assert.True(t, mr.Exists("locks:user:1"))
	assert.True(t, mr.Exists("locks:point:7"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "point:7")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("locks:user:1"))
	assert.False(t, mr.Exists("locks:point:7"))

	again, err := locker.Lock(context.Background(), "point:7")
	require.NoError(t, err)
	again()
}

func TestLockerDoesNotReleaseForeignToken(t *testing.T) {
	mr, client := newClient(t)
	core, logs := observer.New(zapcore.WarnLevel)
	locker := NewLocker(client, time.Second, zap.New(core))

	unlock, err := locker.Lock(context.Background(), "session:1")
	require.NoError(t, err)

	// the lock expired and somebody else took it
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("locks:session:1", "other"))

	unlock()
	got, err := mr.Get("locks:session:1")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
	assert.Equal(t, 1, logs.FilterMessage("lock expired before release").Len())
}

func TestLockerLogsReleaseFailure(t *testing.T) {
	mr, client := newClient(t)
	core, logs := observer.New(zapcore.WarnLevel)
	locker := NewLocker(client, time.Minute, zap.New(core))

	unlock, err := locker.Lock(context.Background(), "user:1")
	require.NoError(t, err)

	mr.Close()
	unlock()

	entries := logs.FilterMessage("failed to release lock, it is held until expiry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "locks:user:1", entries[0].ContextMap()["key"])
}
