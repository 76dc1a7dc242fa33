// Package source finds playable sources for a title across configured
// providers, verifies their real quality by probing, and picks the best one.
package source

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/session"
	"github.com/streamweave/streamweave/internal/source/matcher"
	"github.com/streamweave/streamweave/internal/source/probe"
	"github.com/streamweave/streamweave/internal/source/provider"
	"github.com/streamweave/streamweave/internal/source/selector"
	"github.com/streamweave/streamweave/internal/source/types"
	"github.com/streamweave/streamweave/internal/titles"
)

// ErrNoSources is returned when no provider produced a plausible candidate.
var ErrNoSources = errors.New("no sources found")

// Broadcaster pushes source events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// SearchRequest describes the title to find sources for.
type SearchRequest struct {
	Title     string          `json:"title"`
	Year      string          `json:"year,omitempty"`
	MediaType types.MediaType `json:"mediaType,omitempty"`
	// SeasonHint carries extra text scanned for season markers when the
	// title itself has none, such as the original release title.
	SeasonHint string `json:"seasonHint,omitempty"`
}

// Selection is the outcome of resolving a title to its best source.
type Selection struct {
	Best       types.Candidate         `json:"best"`
	BestIndex  int                     `json:"bestIndex"`
	Candidates []types.Candidate       `json:"candidates"`
	Scored     []types.ScoredCandidate `json:"scored,omitempty"`
	// Remembered reports that a previously chosen source was reused
	// instead of probing.
	Remembered bool `json:"remembered"`
	// Probed reports whether candidates were actually measured.
	Probed bool `json:"probed"`
}

// Service coordinates provider search, matching, probing, and selection.
type Service struct {
	providers   *provider.Repository
	prober      *probe.Prober
	memory      *session.Memory
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewService creates the source service.
func NewService(
	providers *provider.Repository,
	prober *probe.Prober,
	memory *session.Memory,
	broadcaster Broadcaster,
	logger zerolog.Logger,
) *Service {
	return &Service{
		providers:   providers,
		prober:      prober,
		memory:      memory,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "source").Logger(),
	}
}

// Search fans out across every provider concurrently and returns the
// plausible candidates in provider definition order. Within a provider the
// query variants run in sequence and the first variant with matches wins:
// later, looser variants exist only as fallbacks, not as additions.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]types.Candidate, error) {
	if req.Title == "" {
		return nil, errors.New("title is required")
	}

	queries := titles.BuildSeriesQueries(req.Title, req.SeasonHint)
	if len(queries) == 0 {
		return nil, errors.New("title produced no searchable queries")
	}

	expected := matcher.Expected{
		Title:          req.Title,
		Year:           req.Year,
		MediaType:      req.MediaType,
		SeasonHintText: req.SeasonHint,
	}

	clients := s.providers.Clients()
	perProvider := make([][]types.Candidate, len(clients))

	done := make(chan int, len(clients))
	for i, client := range clients {
		go func(slot int, client provider.Client) {
			defer func() { done <- slot }()
			perProvider[slot] = s.searchProvider(ctx, client, queries, expected)
		}(i, client)
	}
	for range clients {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var candidates []types.Candidate
	for _, matched := range perProvider {
		candidates = append(candidates, matched...)
	}

	s.logger.Debug().
		Str("title", req.Title).
		Int("providers", len(clients)).
		Int("candidates", len(candidates)).
		Msg("source search complete")
	return candidates, nil
}

// searchProvider runs the query ladder against one provider.
func (s *Service) searchProvider(ctx context.Context, client provider.Client, queries []string, expected matcher.Expected) []types.Candidate {
	id := client.Definition().ID
	for _, query := range queries {
		if ctx.Err() != nil {
			return nil
		}
		results, err := client.Search(ctx, query)
		if err != nil {
			s.logger.Debug().Err(err).Str("provider", id).Str("query", query).Msg("provider search failed")
			continue
		}
		if matched := matcher.Filter(results, expected); len(matched) > 0 {
			return matched
		}
	}
	return nil
}

// Resolve finds the best source for a title. A remembered viewer choice
// short-circuits probing, as does a single-candidate result: probing exists
// to break ties, not to gate playback.
func (s *Service) Resolve(ctx context.Context, req SearchRequest) (*Selection, error) {
	candidates, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoSources
	}

	if index, ok := s.memory.SourceIndex(req.Title); ok && index >= 0 && index < len(candidates) {
		return s.finish(req, &Selection{
			Best:       candidates[index],
			BestIndex:  index,
			Candidates: candidates,
			Remembered: true,
		}), nil
	}

	if len(candidates) == 1 {
		return s.finish(req, &Selection{
			Best:       candidates[0],
			Candidates: candidates,
		}), nil
	}

	results := s.prober.ProbeAll(ctx, candidates)
	best, scored := selector.PickBest(results)

	bestIndex := 0
	for i, candidate := range candidates {
		if candidate.Key() == best.Key() {
			bestIndex = i
			break
		}
	}

	return s.finish(req, &Selection{
		Best:       best,
		BestIndex:  bestIndex,
		Candidates: candidates,
		Scored:     scored,
		Probed:     true,
	}), nil
}

// Remember records the viewer's source choice for a title so later
// resolves reuse it without probing.
func (s *Service) Remember(title string, index int) {
	s.memory.SaveSourceIndex(title, index)
}

// Forget drops every remembered choice for a title.
func (s *Service) Forget(title string) {
	s.memory.ClearTitle(title)
}

// Providers lists the loaded provider definitions.
func (s *Service) Providers() []provider.Definition {
	return s.providers.Definitions()
}

func (s *Service) finish(req SearchRequest, selection *Selection) *Selection {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("source.selected", map[string]interface{}{
			"title":      req.Title,
			"provider":   selection.Best.ProviderName,
			"candidates": len(selection.Candidates),
			"probed":     selection.Probed,
			"remembered": selection.Remembered,
		})
	}
	return selection
}
