package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "key1", "value1", time.Minute))

	value, ok, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value1", value)
}

func TestMemoryStore_GetNonExistent(t *testing.T) {
	store := NewMemoryStore(10)
	defer store.Close()

	_, ok, err := store.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	fakeClock := testingclock.NewFakePassiveClock(time.Now())
	store := NewMemoryStore(10, WithClock(fakeClock))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "key1", "value1", time.Second))

	fakeClock.SetTime(fakeClock.Now().Add(999 * time.Millisecond))
	_, ok, _ := store.Get(ctx, "key1")
	assert.True(t, ok, "entry should live until its ttl elapses")

	fakeClock.SetTime(fakeClock.Now().Add(time.Millisecond))
	_, ok, _ = store.Get(ctx, "key1")
	assert.False(t, ok, "entry should expire at its ttl")
}

func TestMemoryStore_ZeroTTLSkipsPersistence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "key1", "value1", 0))

	_, ok, _ := store.Get(ctx, "key1")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_NegativeTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	fakeClock := testingclock.NewFakePassiveClock(time.Now())
	store := NewMemoryStore(10, WithClock(fakeClock))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "key1", "value1", -1))
	fakeClock.SetTime(fakeClock.Now().Add(24 * 365 * time.Hour))

	_, ok, _ := store.Get(ctx, "key1")
	assert.True(t, ok)
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	defer store.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprint(i), "v", time.Minute))
	}

	// Touch "0" so "1" becomes the oldest.
	_, _, _ = store.Get(ctx, "0")
	require.NoError(t, store.Set(ctx, "3", "v", time.Minute))

	_, ok, _ := store.Get(ctx, "1")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok, _ = store.Get(ctx, "0")
	assert.True(t, ok)
	assert.Equal(t, 3, store.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "key1", "value1", time.Minute))
	require.NoError(t, store.Delete(ctx, "key1"))
	require.NoError(t, store.Delete(ctx, "missing"))

	_, ok, _ := store.Get(ctx, "key1")
	assert.False(t, ok)
}

func TestMemoryStore_RemoveExpiredEntries(t *testing.T) {
	ctx := context.Background()
	fakeClock := testingclock.NewFakePassiveClock(time.Now())
	store := NewMemoryStore(10, WithClock(fakeClock))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "short", "v", time.Second))
	require.NoError(t, store.Set(ctx, "long", "v", time.Hour))

	fakeClock.SetTime(fakeClock.Now().Add(time.Minute))
	store.removeExpiredEntries()

	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore(10)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "key")
	assert.ErrorIs(t, err, context.Canceled)
}
