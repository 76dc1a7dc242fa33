package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamweave/streamweave/internal/overlay/cache"
	"github.com/streamweave/streamweave/internal/overlay/filter"
	"github.com/streamweave/streamweave/internal/overlay/types"
	"github.com/streamweave/streamweave/internal/session"
	"github.com/streamweave/streamweave/internal/testutil"
)

type serviceFixture struct {
	service  *Service
	upstream *fakeUpstream
	memory   *session.Memory
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	upstream := newFakeUpstream()
	memory := session.New()
	logger := zerolog.Nop()

	service := NewService(
		NewResolver(upstream, memory, logger),
		cache.New(db.Conn(), time.Hour, logger),
		filter.NewEngine(logger),
		db,
		memory,
		nil,
		0,
		logger,
	)
	return &serviceFixture{service: service, upstream: upstream, memory: memory}
}

func (f *serviceFixture) seedShow(title string, commentCount int) {
	f.upstream.animes[title] = []types.Anime{{AnimeID: 42, AnimeTitle: title}}
	f.upstream.episodes[42] = []types.Episode{{EpisodeID: 420001, EpisodeTitle: "第1话"}}
	f.upstream.comments[420001] = fakeComments(commentCount)
}

func TestServiceResolveCachesResult(t *testing.T) {
	f := newServiceFixture(t)
	f.seedShow("某动画", 5)
	ctx := context.Background()

	first, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.Equal(t, types.StateLoaded, first.State)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Comments, 5)

	searchesAfterFirst := len(f.upstream.searchCalls)

	second, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Len(t, second.Comments, 5)
	assert.Len(t, f.upstream.searchCalls, searchesAfterFirst, "cached resolve must not touch upstream")
}

func TestServiceResolveRequiresTitle(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Resolve(context.Background(), Request{})
	assert.Error(t, err)
}

func TestServiceStaleTokenDiscarded(t *testing.T) {
	f := newServiceFixture(t)
	f.seedShow("某动画", 3)
	ctx := context.Background()

	// Playback moves on mid-resolve: the upstream wrapper bumps the
	// generation during the search, so the result commits under a stale
	// token and must be discarded without caching.
	f.service.resolver = NewResolver(&invalidatingUpstream{
		fakeUpstream: f.upstream,
		service:      f.service,
	}, f.memory, zerolog.Nop())

	stale, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, stale.State)

	stats, err := f.service.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries, "stale resolution must not be cached")
}

// invalidatingUpstream bumps the playback generation mid-resolve.
type invalidatingUpstream struct {
	*fakeUpstream
	service *Service
}

func (u *invalidatingUpstream) SearchAnime(ctx context.Context, keyword string) ([]types.Anime, error) {
	u.service.BeginPlayback()
	return u.fakeUpstream.SearchAnime(ctx, keyword)
}

func TestServiceUpload(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.service.Upload(ctx, Request{Title: "某动画", EpisodeIndex: 1}, fakeComments(4))
	require.NoError(t, err)
	assert.Equal(t, types.StateLoaded, res.State)
	require.NotNil(t, res.Provenance)
	assert.Equal(t, 4, res.Provenance.CommentCount)
	assert.Zero(t, res.Provenance.AnimeID, "uploaded comments have no confirmed mapping")

	cached, err := f.service.Resolve(ctx, Request{Title: "某动画", EpisodeIndex: 1})
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Len(t, cached.Comments, 4)
}

func TestServiceUploadEmpty(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Upload(context.Background(), Request{Title: "某动画"}, nil)
	assert.Error(t, err)
}

func TestServiceFilterRulesRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	rules, err := f.service.FilterRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	saved, err := f.service.SaveFilterRules(ctx, []filter.RuleInput{
		{Keyword: "spoiler"},
		{Keyword: ""},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.NotEmpty(t, saved[0].ID)
	assert.True(t, saved[0].Enabled)

	loaded, err := f.service.FilterRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestServiceResolveAppliesFilters(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	comments := fakeComments(3)
	comments[1].M = "blocked spoiler"
	f.upstream.animes["某动画"] = []types.Anime{{AnimeID: 42}}
	f.upstream.episodes[42] = []types.Episode{{EpisodeID: 420001}}
	f.upstream.comments[420001] = comments

	_, err := f.service.SaveFilterRules(ctx, []filter.RuleInput{{Keyword: "spoiler"}})
	require.NoError(t, err)

	res, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.Len(t, res.Comments, 2)
	assert.Equal(t, 3, res.OriginalCount)

	// Cached reads must re-apply the rules to the raw set.
	cached, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Len(t, cached.Comments, 2)
	assert.Equal(t, 3, cached.OriginalCount)
}

func TestServiceResolveEpisodeReplacesCache(t *testing.T) {
	f := newServiceFixture(t)
	f.seedShow("某动画", 2)
	f.upstream.episodes[42] = append(f.upstream.episodes[42], types.Episode{EpisodeID: 420002})
	f.upstream.comments[420002] = fakeComments(6)
	ctx := context.Background()

	first, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.Len(t, first.Comments, 2)

	pinned, err := f.service.ResolveEpisode(ctx, Request{Title: "某动画"}, 420002)
	require.NoError(t, err)
	assert.Len(t, pinned.Comments, 6)

	cached, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Len(t, cached.Comments, 6, "pin must replace the cached entry")
}

func TestServiceClearCacheForgetsTitle(t *testing.T) {
	f := newServiceFixture(t)
	f.seedShow("某动画", 2)
	ctx := context.Background()

	_, err := f.service.Resolve(ctx, Request{Title: "某动画"})
	require.NoError(t, err)
	require.NoError(t, f.service.ClearCache(ctx, "某动画"))

	if _, ok := f.memory.AnimeID("某动画"); ok {
		t.Error("clearing a title should drop its session memory")
	}

	stats, err := f.service.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}
