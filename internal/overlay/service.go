package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/database"
	"github.com/streamweave/streamweave/internal/overlay/cache"
	"github.com/streamweave/streamweave/internal/overlay/filter"
	"github.com/streamweave/streamweave/internal/overlay/types"
	"github.com/streamweave/streamweave/internal/session"
)

// filterRulesKey is the settings key the block rules persist under.
const filterRulesKey = "overlay.filter_rules"

// Broadcaster pushes overlay events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Service orchestrates overlay resolution: durable cache in front of the
// resolver chain, block-rule filtering and downsampling on the way out,
// and stale-request suppression when playback moves on mid-resolve.
type Service struct {
	resolver    *Resolver
	cache       *cache.Store
	filters     *filter.Engine
	db          *database.DB
	memory      *session.Memory
	broadcaster Broadcaster
	logger      zerolog.Logger
	maxComments int

	// token identifies the current playback generation. Resolutions
	// started under an older token are discarded at commit time.
	token atomic.Int64

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewService creates the overlay service.
func NewService(
	resolver *Resolver,
	cacheStore *cache.Store,
	filters *filter.Engine,
	db *database.DB,
	memory *session.Memory,
	broadcaster Broadcaster,
	maxComments int,
	logger zerolog.Logger,
) *Service {
	return &Service{
		resolver:    resolver,
		cache:       cacheStore,
		filters:     filters,
		db:          db,
		memory:      memory,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "overlay").Logger(),
		maxComments: maxComments,
		inflight:    make(map[string]chan struct{}),
	}
}

// BeginPlayback marks a new playback generation and returns its token.
// Resolutions still running for the previous generation will complete but
// their results are not committed.
func (s *Service) BeginPlayback() int64 {
	return s.token.Add(1)
}

// Resolve returns the overlay for one episode, reading through the cache.
// Concurrent resolves for the same episode coalesce: one caller does the
// work while the rest wait and re-read the cache.
func (s *Service) Resolve(ctx context.Context, req Request) (types.Resolution, error) {
	if req.Title == "" {
		return types.Resolution{}, errors.New("title is required")
	}
	startToken := s.token.Load()

	if entry := s.cache.Get(ctx, req.Title, req.EpisodeIndex); entry != nil {
		res := s.present(ctx, types.Resolution{
			State:      types.StateLoaded,
			Comments:   entry.Comments,
			Provenance: &entry.Provenance,
			FromCache:  true,
		})
		return res, nil
	}

	release, err := s.acquire(ctx, cache.Key(req.Title, req.EpisodeIndex))
	if err != nil {
		return types.Resolution{}, err
	}
	defer release()

	// Another caller may have resolved this episode while we waited.
	if entry := s.cache.Get(ctx, req.Title, req.EpisodeIndex); entry != nil {
		res := s.present(ctx, types.Resolution{
			State:      types.StateLoaded,
			Comments:   entry.Comments,
			Provenance: &entry.Provenance,
			FromCache:  true,
		})
		return res, nil
	}

	res := s.resolver.Resolve(ctx, req)
	return s.commit(ctx, req, res, startToken), nil
}

// ResolveAnime resolves against a viewer-chosen show id.
func (s *Service) ResolveAnime(ctx context.Context, req Request, animeID int64) (types.Resolution, error) {
	startToken := s.token.Load()
	res := s.resolver.ResolveAnime(ctx, req, animeID)
	return s.commit(ctx, req, res, startToken), nil
}

// ResolveEpisode resolves against a viewer-pinned episode id.
func (s *Service) ResolveEpisode(ctx context.Context, req Request, episodeID int64) (types.Resolution, error) {
	startToken := s.token.Load()
	// A manual pin replaces whatever was cached for this slot.
	if err := s.cache.Clear(ctx, req.Title, req.EpisodeIndex); err != nil {
		s.logger.Warn().Err(err).Str("title", req.Title).Msg("clearing cached entry failed")
	}
	res := s.resolver.ResolveEpisode(ctx, req, episodeID)
	return s.commit(ctx, req, res, startToken), nil
}

// Upload stores viewer-supplied comments for an episode, bypassing the
// resolver. Provenance is blank apart from the count: the mapping was never
// confirmed against the upstream service.
func (s *Service) Upload(ctx context.Context, req Request, comments []types.Comment) (types.Resolution, error) {
	if len(comments) == 0 {
		return types.Resolution{}, errors.New("no comments supplied")
	}

	s.cache.Put(ctx, cache.Entry{
		Title:        req.Title,
		EpisodeIndex: req.EpisodeIndex,
		Comments:     comments,
		Provenance:   types.Provenance{CommentCount: len(comments)},
	})

	res := s.present(ctx, types.Resolution{
		State:      types.StateLoaded,
		Comments:   comments,
		Provenance: &types.Provenance{CommentCount: len(comments)},
	})
	s.broadcast("overlay.loaded", req, &res)
	return res, nil
}

// Search exposes the upstream show search for manual disambiguation flows.
func (s *Service) Search(ctx context.Context, keyword string) ([]types.Anime, error) {
	return s.resolver.upstream.SearchAnime(ctx, keyword)
}

// Episodes exposes the upstream episode listing for manual pin flows.
func (s *Service) Episodes(ctx context.Context, animeID int64) ([]types.Episode, error) {
	return s.resolver.episodesWithFallback(ctx, animeID)
}

// ClearCache clears cached overlays, either for one title or entirely.
func (s *Service) ClearCache(ctx context.Context, title string) error {
	if title == "" {
		return s.cache.ClearAll(ctx)
	}
	s.memory.ClearTitle(title)
	return s.cache.ClearTitle(ctx, title)
}

// CacheStats reports cache contents.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.cache.Stats(ctx)
}

// SweepCache deletes expired cache entries. Run on a schedule.
func (s *Service) SweepCache(ctx context.Context) error {
	removed, err := s.cache.Sweep(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("swept expired overlay cache entries")
	}
	return nil
}

// FilterRules returns the persisted block rules.
func (s *Service) FilterRules(ctx context.Context) ([]filter.Rule, error) {
	value, err := s.db.GetSetting(ctx, filterRulesKey)
	if errors.Is(err, database.ErrSettingNotFound) {
		return []filter.Rule{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load filter rules: %w", err)
	}

	var rules []filter.Rule
	if err := json.Unmarshal([]byte(value), &rules); err != nil {
		s.logger.Error().Err(err).Msg("stored filter rules are corrupt, resetting")
		return []filter.Rule{}, nil
	}
	return rules, nil
}

// SaveFilterRules normalizes and persists block rules, returning the
// normalized set.
func (s *Service) SaveFilterRules(ctx context.Context, inputs []filter.RuleInput) ([]filter.Rule, error) {
	rules := filter.Normalize(inputs)
	encoded, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("encode filter rules: %w", err)
	}
	if err := s.db.SetSetting(ctx, filterRulesKey, string(encoded)); err != nil {
		return nil, fmt.Errorf("save filter rules: %w", err)
	}
	return rules, nil
}

// commit finalizes a resolution: caches loaded results, but only when the
// playback generation that started the resolve is still current, and
// applies the outbound filter pass.
func (s *Service) commit(ctx context.Context, req Request, res types.Resolution, startToken int64) types.Resolution {
	if s.token.Load() != startToken {
		s.logger.Debug().Str("title", req.Title).Msg("discarding stale resolution")
		return types.Resolution{State: types.StateFailed}
	}

	if res.State == types.StateLoaded && res.Provenance != nil {
		s.cache.Put(ctx, cache.Entry{
			Title:        req.Title,
			EpisodeIndex: req.EpisodeIndex,
			Comments:     res.Comments,
			Provenance:   *res.Provenance,
		})
	}

	out := s.present(ctx, res)
	s.broadcast("overlay."+string(out.State), req, &out)
	return out
}

// present applies block rules and downsampling to an outbound resolution.
// The cache always holds the raw comment set; filtering happens on the way
// out so rule changes take effect without refetching.
func (s *Service) present(ctx context.Context, res types.Resolution) types.Resolution {
	if res.State != types.StateLoaded {
		return res
	}

	rules, err := s.FilterRules(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("loading filter rules failed, serving unfiltered")
		rules = nil
	}

	filtered, originalCount := s.filters.Apply(res.Comments, rules)
	res.Comments = filter.Downsample(filtered, s.maxComments)
	res.OriginalCount = originalCount
	if len(res.Comments) == 0 {
		res.State = types.StateEmpty
	}
	return res
}

func (s *Service) broadcast(event string, req Request, res *types.Resolution) {
	if s.broadcaster == nil {
		return
	}
	count := 0
	if res != nil {
		count = len(res.Comments)
	}
	s.broadcaster.Broadcast(event, map[string]interface{}{
		"title":        req.Title,
		"episodeIndex": req.EpisodeIndex,
		"count":        count,
	})
}

// acquire takes the in-flight slot for a cache key, waiting for any
// resolve already running for the same key.
func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	for {
		s.mu.Lock()
		waiting, busy := s.inflight[key]
		if !busy {
			done := make(chan struct{})
			s.inflight[key] = done
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.inflight, key)
				s.mu.Unlock()
				close(done)
			}, nil
		}
		s.mu.Unlock()

		select {
		case <-waiting:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ConvertForPlayer maps wire comments onto the renderer's shape. The packed
// p attribute reads "time,mode,color[,...]": mode 4 is bottom, 5 is top,
// anything else scrolls. Color is a decimal RGB integer.
func ConvertForPlayer(comments []types.Comment) []types.PlayerComment {
	converted := make([]types.PlayerComment, 0, len(comments))
	for _, comment := range comments {
		parts := strings.Split(comment.P, ",")

		timeSec := 0.0
		if len(parts) > 0 {
			timeSec, _ = strconv.ParseFloat(parts[0], 64)
		}

		mode := "rtl"
		if len(parts) > 1 {
			switch parts[1] {
			case "4":
				mode = "bottom"
			case "5":
				mode = "top"
			}
		}

		color := "#FFFFFF"
		if len(parts) > 2 {
			if rgb, err := strconv.ParseInt(parts[2], 10, 32); err == nil && rgb >= 0 {
				color = fmt.Sprintf("#%06X", rgb&0xFFFFFF)
			}
		}

		converted = append(converted, types.PlayerComment{
			Text:  comment.M,
			Time:  timeSec,
			Mode:  mode,
			Color: color,
		})
	}
	return converted
}
