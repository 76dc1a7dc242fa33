// Package overlay resolves synchronized comment overlays for playback:
// it maps a local title and episode onto an upstream comment episode and
// fetches that episode's comments, remembering confirmed choices.
package overlay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/overlay/types"
	"github.com/streamweave/streamweave/internal/session"
	"github.com/streamweave/streamweave/internal/titles"
)

// Request asks for the overlay of one episode of a title.
type Request struct {
	Title        string
	EpisodeIndex int
	// Keyword overrides the search keyword for this call. When set it is
	// also remembered for the title.
	Keyword string
	// ChoiceIndex is the position the viewer picked from a reported choice
	// list, set on resolve-by-show-id calls that follow a disambiguation.
	// The position is remembered so later searches for the title skip the
	// disambiguation step.
	ChoiceIndex *int
}

// Resolver walks the resolution fallback chain. Each step is tried in
// order and a step that errors falls through to the next; only when every
// step is exhausted does the resolution fail.
type Resolver struct {
	upstream Upstream
	memory   *session.Memory
	logger   zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(upstream Upstream, memory *session.Memory, logger zerolog.Logger) *Resolver {
	return &Resolver{
		upstream: upstream,
		memory:   memory,
		logger:   logger.With().Str("component", "overlay-resolver").Logger(),
	}
}

// Resolve maps a title and episode onto upstream comments.
//
// The chain, in order: a manually pinned episode id, a remembered show id,
// an exact filename match, a remembered search keyword, and finally a title
// search. A search returning several shows auto-accepts the position the
// viewer picked for this title before; otherwise the shows are reported for
// the caller to disambiguate. A single result is accepted outright.
func (r *Resolver) Resolve(ctx context.Context, req Request) types.Resolution {
	if req.Keyword != "" {
		r.memory.SaveKeyword(req.Title, req.Keyword)
	}

	if res, ok := r.fromManualPin(ctx, req); ok {
		return res
	}
	if res, ok := r.fromRememberedAnime(ctx, req); ok {
		return res
	}
	if res, ok := r.fromExactMatch(ctx, req); ok {
		return res
	}

	keyword, remembered := r.memory.Keyword(req.Title)
	if remembered {
		if res, ok := r.fromSearch(ctx, req, keyword); ok {
			return res
		}
	}
	if res, ok := r.fromSearch(ctx, req, req.Title); ok {
		return res
	}

	return types.Resolution{State: types.StateFailed}
}

// ResolveAnime resolves against a known upstream show id, as used after a
// viewer picks one of several ambiguous matches. The choice is remembered.
func (r *Resolver) ResolveAnime(ctx context.Context, req Request, animeID int64) types.Resolution {
	res, err := r.loadAnime(ctx, req, animeID, "")
	if err != nil {
		r.logger.Warn().Err(err).Int64("anime_id", animeID).Msg("resolve by show id failed")
		return types.Resolution{State: types.StateFailed}
	}
	r.memory.SaveAnimeID(req.Title, animeID)
	if req.ChoiceIndex != nil {
		r.memory.SaveSearchIndex(req.Title, *req.ChoiceIndex)
	}
	return res
}

// ResolveEpisode resolves against a known upstream episode id, as used when
// a viewer manually pins an episode. The pin is remembered for the title
// and episode.
func (r *Resolver) ResolveEpisode(ctx context.Context, req Request, episodeID int64) types.Resolution {
	res, err := r.loadEpisode(ctx, episodeID, types.Provenance{EpisodeID: episodeID})
	if err != nil {
		r.logger.Warn().Err(err).Int64("episode_id", episodeID).Msg("resolve by episode id failed")
		return types.Resolution{State: types.StateFailed}
	}
	r.memory.SaveManualEpisode(req.Title, req.EpisodeIndex, episodeID)
	return res
}

func (r *Resolver) fromManualPin(ctx context.Context, req Request) (types.Resolution, bool) {
	episodeID, ok := r.memory.ManualEpisode(req.Title, req.EpisodeIndex)
	if !ok {
		return types.Resolution{}, false
	}
	res, err := r.loadEpisode(ctx, episodeID, types.Provenance{EpisodeID: episodeID})
	if err != nil {
		r.logger.Warn().Err(err).Int64("episode_id", episodeID).Msg("pinned episode failed, falling through")
		return types.Resolution{}, false
	}
	return res, true
}

func (r *Resolver) fromRememberedAnime(ctx context.Context, req Request) (types.Resolution, bool) {
	animeID, ok := r.memory.AnimeID(req.Title)
	if !ok {
		return types.Resolution{}, false
	}
	res, err := r.loadAnime(ctx, req, animeID, "")
	if err != nil {
		r.logger.Warn().Err(err).Int64("anime_id", animeID).Msg("remembered show failed, falling through")
		return types.Resolution{}, false
	}
	return res, true
}

// fromExactMatch tries the upstream filename matcher with a set of likely
// file names for the episode. The first name producing exactly one match
// wins; several matches for a name are too uncertain to auto-accept.
func (r *Resolver) fromExactMatch(ctx context.Context, req Request) (types.Resolution, bool) {
	for _, fileName := range titles.BuildMatchFilenames(req.Title, req.EpisodeIndex) {
		matches, err := r.upstream.MatchFileName(ctx, fileName)
		if err != nil {
			r.logger.Debug().Err(err).Str("file_name", fileName).Msg("filename match failed")
			continue
		}
		if len(matches) != 1 {
			continue
		}

		match := matches[0]
		res, err := r.loadEpisode(ctx, match.EpisodeID, types.Provenance{
			AnimeID:      match.AnimeID,
			EpisodeID:    match.EpisodeID,
			AnimeTitle:   match.AnimeTitle,
			EpisodeTitle: match.EpisodeTitle,
		})
		if err != nil {
			r.logger.Debug().Err(err).Int64("episode_id", match.EpisodeID).Msg("matched episode failed")
			continue
		}
		r.memory.SaveAnimeID(req.Title, match.AnimeID)
		return res, true
	}
	return types.Resolution{}, false
}

func (r *Resolver) fromSearch(ctx context.Context, req Request, keyword string) (types.Resolution, bool) {
	animes, err := r.upstream.SearchAnime(ctx, keyword)
	if err != nil {
		r.logger.Warn().Err(err).Str("keyword", keyword).Msg("search failed, falling through")
		return types.Resolution{}, false
	}

	switch len(animes) {
	case 0:
		return types.Resolution{}, false
	case 1:
		// Accepted for this call only. The show id is persisted on viewer
		// confirmation, not on an unverified auto-match.
		res, err := r.loadAnime(ctx, req, animes[0].AnimeID, keyword)
		if err != nil {
			r.logger.Warn().Err(err).Int64("anime_id", animes[0].AnimeID).Msg("single search result failed")
			return types.Resolution{}, false
		}
		return res, true
	default:
		if index, ok := r.memory.SearchIndex(req.Title); ok && index >= 0 && index < len(animes) {
			res, err := r.loadAnime(ctx, req, animes[index].AnimeID, keyword)
			if err == nil {
				return res, true
			}
			r.logger.Warn().Err(err).Int("index", index).Msg("remembered search position failed, re-asking")
		}
		return types.Resolution{State: types.StateAmbiguous, Choices: animes}, true
	}
}

// loadAnime lists a show's episodes, clamps the requested episode index
// into range, and fetches that episode's comments.
func (r *Resolver) loadAnime(ctx context.Context, req Request, animeID int64, keyword string) (types.Resolution, error) {
	episodes, err := r.episodesWithFallback(ctx, animeID)
	if err != nil {
		return types.Resolution{}, err
	}
	if len(episodes) == 0 {
		return types.Resolution{}, fmt.Errorf("show %d has no episodes", animeID)
	}

	index := req.EpisodeIndex
	if index < 0 {
		index = 0
	}
	if index >= len(episodes) {
		index = len(episodes) - 1
	}
	episode := episodes[index]

	return r.loadEpisode(ctx, episode.EpisodeID, types.Provenance{
		AnimeID:       animeID,
		EpisodeID:     episode.EpisodeID,
		EpisodeTitle:  episode.EpisodeTitle,
		SearchKeyword: keyword,
	})
}

// episodesWithFallback lists episodes, retrying once with the alternate
// show id encoding some upstream deployments use when the primary id
// yields nothing.
func (r *Resolver) episodesWithFallback(ctx context.Context, animeID int64) ([]types.Episode, error) {
	episodes, err := r.upstream.Episodes(ctx, animeID)
	if err == nil && len(episodes) > 0 {
		return episodes, nil
	}

	altID := animeID % 1000000
	if altID == animeID || altID <= 0 {
		return episodes, err
	}
	altEpisodes, altErr := r.upstream.Episodes(ctx, altID)
	if altErr == nil && len(altEpisodes) > 0 {
		return altEpisodes, nil
	}
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

func (r *Resolver) loadEpisode(ctx context.Context, episodeID int64, prov types.Provenance) (types.Resolution, error) {
	comments, err := r.upstream.Comments(ctx, episodeID)
	if err != nil {
		return types.Resolution{}, err
	}

	prov.CommentCount = len(comments)
	if len(comments) == 0 {
		return types.Resolution{State: types.StateEmpty, Provenance: &prov}, nil
	}
	return types.Resolution{
		State:      types.StateLoaded,
		Comments:   comments,
		Provenance: &prov,
	}, nil
}
