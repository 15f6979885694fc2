package rediskv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/feltlabs/beacon"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, opts...)
	require.NoError(t, err)

	return store
}

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.ErrorIs(t, err, ErrClientRequired)
}

func TestStorePushShift(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := beacon.RetryEntry{URL: "https://example.com/beacon", Body: []byte("payload")}
	require.NoError(t, store.Push(ctx, entry))

	got, ok, err := store.Shift(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.URL, got.URL)
	require.Equal(t, entry.Body, got.Body)

	_, ok, err = store.Shift(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreShiftPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "first"}))
	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "second"}))

	first, ok, err := store.Shift(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", first.URL)

	second, ok, err := store.Shift(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", second.URL)
}

func TestStorePushWipesSlotOnOverflow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithMaxNumber(2))

	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "a"}))
	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "b"}))
	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "c"}))

	entries, err := store.Peek(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStoreClearAdvancesTokenAndWipesEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "a"}))

	before, err := store.ClearToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "0", before)

	require.NoError(t, store.Clear(ctx))

	after, err := store.ClearToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", after)

	entries, err := store.Peek(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStorePushIfNotClearingRejectsStaleToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Clear(ctx))
	stale := "0"

	require.NoError(t, store.PushIfNotClearing(ctx, beacon.RetryEntry{URL: "a"}, stale))

	entries, err := store.Peek(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStorePushIfNotClearingAcceptsCurrentToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	token, err := store.ClearToken(ctx)
	require.NoError(t, err)

	require.NoError(t, store.PushIfNotClearing(ctx, beacon.RetryEntry{URL: "a"}, token))

	entries, err := store.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStorePushIfNotClearingPrependsRequeuedEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "newer", Timestamp: 2}))

	token, err := store.ClearToken(ctx)
	require.NoError(t, err)
	require.NoError(t, store.PushIfNotClearing(ctx, beacon.RetryEntry{URL: "requeued-older", Timestamp: 1}, token))

	entries, err := store.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "requeued-older", entries[0].URL, "a requeued entry must drain ahead of entries pushed concurrently")
	require.Equal(t, "newer", entries[1].URL)
}

func TestStorePeekAndPeekBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "a"}))
	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "b"}))
	require.NoError(t, store.Push(ctx, beacon.RetryEntry{URL: "c"}))

	front, err := store.Peek(ctx, 2)
	require.NoError(t, err)
	require.Len(t, front, 2)
	require.Equal(t, "a", front[0].URL)
	require.Equal(t, "b", front[1].URL)

	back, err := store.PeekBack(ctx, 2)
	require.NoError(t, err)
	require.Len(t, back, 2)
	require.Equal(t, "b", back[0].URL)
	require.Equal(t, "c", back[1].URL)
}
