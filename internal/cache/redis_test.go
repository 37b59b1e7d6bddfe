package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.RedisConnection{
		Addr: mr.Addr(),
	}

	cache, err := InitServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	expected := models.VoucherSummary{Code: "RAMADAN2026", Tier: models.TierPro, DurationMonths: 3}
	err := cache.Set(ctx, "voucher:RAMADAN2026", expected, time.Minute)
	require.NoError(t, err)

	var actual models.VoucherSummary
	found, err := cache.Get(ctx, "voucher:RAMADAN2026", &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestGetNotFound(t *testing.T) {
	cache, _ := setupTestCache(t)

	var out models.VoucherSummary
	found, err := cache.Get(context.Background(), "no_such_key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	err := cache.Set(ctx, "key", "value", time.Minute)
	require.NoError(t, err)

	err = cache.Invalidate(ctx, "key")
	require.NoError(t, err)

	var out string
	found, err := cache.Get(ctx, "key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetInvalidJSON(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	err := cache.Db.Set(ctx, "bad", []byte("not-json"), time.Minute).Err()
	require.NoError(t, err)

	var out models.VoucherSummary
	found, err := cache.Get(ctx, "bad", &out)
	assert.False(t, found)
	assert.Error(t, err)
}

func TestAcquire(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	ok, err := cache.Acquire(ctx, "fallback:a@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Acquire(ctx, "fallback:a@example.com", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = cache.Acquire(ctx, "fallback:a@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInitServerInvalidAddr(t *testing.T) {
	cfg := config.RedisConnection{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	}

	cache, err := InitServer(context.Background(), cfg)
	assert.Nil(t, cache)
	assert.Error(t, err)
}
