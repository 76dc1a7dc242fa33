package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamweave/streamweave/internal/overlay/types"
	"github.com/streamweave/streamweave/internal/testutil"
)

func newTestStore(t *testing.T, expiry time.Duration) *Store {
	t.Helper()
	db := testutil.NewTestDB(t)
	return New(db.Conn(), expiry, zerolog.Nop())
}

func entry(title string, episodeIndex, commentCount int) Entry {
	comments := make([]types.Comment, commentCount)
	for i := range comments {
		comments[i] = types.Comment{CID: int64(i), P: "1.5,1,16777215", M: "text"}
	}
	return Entry{
		Title:        title,
		EpisodeIndex: episodeIndex,
		Comments:     comments,
		Provenance: types.Provenance{
			AnimeID:      42,
			EpisodeID:    420001,
			AnimeTitle:   title,
			CommentCount: commentCount,
		},
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "某动画|3", Key("某动画", 3))
	assert.Equal(t, "a|0", Key("a", 0))
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	store.Put(ctx, entry("某动画", 2, 5))

	got := store.Get(ctx, "某动画", 2)
	require.NotNil(t, got)
	assert.Equal(t, "某动画", got.Title)
	assert.Equal(t, 2, got.EpisodeIndex)
	assert.Len(t, got.Comments, 5)
	assert.Equal(t, int64(42), got.Provenance.AnimeID)
	assert.Equal(t, int64(420001), got.Provenance.EpisodeID)
	assert.False(t, got.InsertedAt.IsZero())
}

func TestStoreMiss(t *testing.T) {
	store := newTestStore(t, time.Hour)
	assert.Nil(t, store.Get(context.Background(), "unknown", 0))
}

func TestStoreReplace(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	store.Put(ctx, entry("某动画", 0, 3))
	store.Put(ctx, entry("某动画", 0, 7))

	got := store.Get(ctx, "某动画", 0)
	require.NotNil(t, got)
	assert.Len(t, got.Comments, 7)
}

func TestStoreExpiry(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, entry("某动画", 0, 3))

	store.now = func() time.Time { return now.Add(30 * time.Minute) }
	assert.NotNil(t, store.Get(ctx, "某动画", 0), "entry inside the window must hit")

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.Nil(t, store.Get(ctx, "某动画", 0), "expired entry must miss")
}

func TestStoreDisabled(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()

	store.Put(ctx, entry("某动画", 0, 3))
	assert.Nil(t, store.Get(ctx, "某动画", 0), "disabled cache must never hit")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries, "disabled cache must drop writes")
}

func TestStoreDisabledSweepAndStatsIgnoreLeftoverRows(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	// Rows written while the cache was enabled linger on disk when it is
	// later disabled. Sweeping and stats must both ignore them.
	enabled := New(db.Conn(), time.Hour, zerolog.Nop())
	enabled.Put(ctx, entry("某动画", 0, 3))

	disabled := New(db.Conn(), 0, zerolog.Nop())
	removed, err := disabled.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "disabled sweep is a no-op")
	assert.NotNil(t, enabled.Get(ctx, "某动画", 0), "leftover rows must survive a disabled sweep")

	stats, err := disabled.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats, "disabled stats report empty")
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	store.Put(ctx, entry("甲", 0, 1))
	store.Put(ctx, entry("甲", 1, 1))
	store.Put(ctx, entry("乙", 0, 1))

	require.NoError(t, store.Clear(ctx, "甲", 0))
	assert.Nil(t, store.Get(ctx, "甲", 0))
	assert.NotNil(t, store.Get(ctx, "甲", 1))

	require.NoError(t, store.ClearTitle(ctx, "甲"))
	assert.Nil(t, store.Get(ctx, "甲", 1))
	assert.NotNil(t, store.Get(ctx, "乙", 0))

	require.NoError(t, store.ClearAll(ctx))
	assert.Nil(t, store.Get(ctx, "乙", 0))
}

func TestStoreSweep(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, entry("old", 0, 1))

	store.now = func() time.Time { return now.Add(90 * time.Minute) }
	store.Put(ctx, entry("fresh", 0, 1))

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.Nil(t, store.Get(ctx, "old", 0))
	assert.NotNil(t, store.Get(ctx, "fresh", 0))
}

func TestStoreStats(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
	assert.True(t, stats.OldestEntry.IsZero())

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, entry("甲", 0, 3))

	store.now = func() time.Time { return now.Add(90 * time.Minute) }
	store.Put(ctx, entry("乙", 0, 4))

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.Expired, "the entry past the window counts as expired")
	assert.Equal(t, 7, stats.Comments)
	assert.Equal(t, 60, stats.ExpiryMinutes)
	assert.False(t, stats.NewestEntry.IsZero())
}
