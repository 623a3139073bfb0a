package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func testAccount() Account {
	return Account{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		AccountNumber: "123456789012",
		AccountTypeID: 1,
		Currency:      "USD",
		Balance:       1_000,
		Version:       3,
		IsActive:      true,
	}
}

func TestCacheFetchPopulatesAndServes(t *testing.T) {
	cache, _ := newTestCache(t)
	account := testAccount()
	loads := 0
	loader := func(ctx context.Context) (Account, error) {
		loads++
		return account, nil
	}

	got, err := cache.Fetch(context.Background(), account.ID, loader)
	require.NoError(t, err)
	assert.Equal(t, account.Balance, got.Balance)
	require.Equal(t, 1, loads)

	got, err = cache.Fetch(context.Background(), account.ID, loader)
	require.NoError(t, err)
	assert.Equal(t, account.Version, got.Version)
	assert.Equal(t, 1, loads, "second read must hit the cache")
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	cache, _ := newTestCache(t)
	account := testAccount()
	loads := 0
	loader := func(ctx context.Context) (Account, error) {
		loads++
		return account, nil
	}

	_, err := cache.Fetch(context.Background(), account.ID, loader)
	require.NoError(t, err)

	cache.Invalidate(context.Background(), account.ID)

	_, err = cache.Fetch(context.Background(), account.ID, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	account := testAccount()
	mr.Close()

	got, err := cache.Fetch(context.Background(), account.ID, func(ctx context.Context) (Account, error) {
		return account, nil
	})
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
}

func TestCacheNilClientIsPassthrough(t *testing.T) {
	var cache *Cache
	account := testAccount()

	got, err := cache.Fetch(context.Background(), account.ID, func(ctx context.Context) (Account, error) {
		return account, nil
	})
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	cache.Invalidate(context.Background(), account.ID)

	_, err = cache.Fetch(context.Background(), account.ID, func(ctx context.Context) (Account, error) {
		return Account{}, errors.New("store down")
	})
	require.Error(t, err)
}
