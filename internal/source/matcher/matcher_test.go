package matcher

import (
	"testing"

	"github.com/streamweave/streamweave/internal/source/types"
)

func candidate(title, year string, episodes int) types.Candidate {
	eps := make([]string, episodes)
	for i := range eps {
		eps[i] = "http://example.com/ep"
	}
	return types.Candidate{
		ProviderID: "p1",
		ExternalID: title,
		Title:      title,
		Year:       year,
		Episodes:   eps,
	}
}

func TestFilterExactMatch(t *testing.T) {
	items := []types.Candidate{
		candidate("进击的巨人", "2013", 25),
		candidate("进击的巨人 总集篇", "2020", 4),
	}

	got := Filter(items, Expected{Title: "进击的巨人"})
	if len(got) != 1 || got[0].Title != "进击的巨人" {
		t.Fatalf("expected exact match only, got %v", got)
	}
}

func TestFilterExactMatchIgnoresPunctuation(t *testing.T) {
	items := []types.Candidate{
		candidate("Fate:Zero", "2011", 13),
	}

	got := Filter(items, Expected{Title: "Fate: Zero"})
	if len(got) != 1 {
		t.Fatalf("normalized comparison should match, got %v", got)
	}
}

func TestFilterYearStrictPoolWins(t *testing.T) {
	items := []types.Candidate{
		candidate("某部电影", "2019", 1),
		candidate("某部电影", "2021", 1),
	}

	got := Filter(items, Expected{Title: "某部电影", Year: "2021"})
	if len(got) != 1 || got[0].Year != "2021" {
		t.Fatalf("year-strict pool must win, got %v", got)
	}
}

func TestFilterRelaxedPoolFallback(t *testing.T) {
	// No candidate carries the expected year; the relaxed pool must still
	// surface the exact title match rather than returning nothing.
	items := []types.Candidate{
		candidate("某部电影", "2019", 1),
	}

	got := Filter(items, Expected{Title: "某部电影", Year: "2021"})
	if len(got) != 1 || got[0].Year != "2019" {
		t.Fatalf("relaxed pool fallback failed, got %v", got)
	}
}

func TestFilterSeriesFuzzySeasonHint(t *testing.T) {
	items := []types.Candidate{
		candidate("EXAMPLE SHOW S2", "", 12),
		candidate("EXAMPLE SHOW S3", "", 12),
	}

	got := Filter(items, Expected{
		Title:     "example show 第2季",
		MediaType: types.MediaTypeSeries,
	})
	if len(got) != 1 || got[0].Title != "EXAMPLE SHOW S2" {
		t.Fatalf("season hint should pick S2 only, got %v", got)
	}
}

func TestFilterSeriesFuzzyWithoutHints(t *testing.T) {
	items := []types.Candidate{
		candidate("某动画 剧场版", "", 2),
		candidate("某动画", "", 24),
	}

	got := Filter(items, Expected{
		Title:     "某动画",
		MediaType: types.MediaTypeSeries,
	})
	// The exact match wins before fuzzy containment is consulted.
	if len(got) != 1 || got[0].Title != "某动画" {
		t.Fatalf("expected exact match, got %v", got)
	}
}

func TestFilterMediaTypeGate(t *testing.T) {
	items := []types.Candidate{
		candidate("某标题", "", 1),
		candidate("某标题", "", 24),
	}

	movies := Filter(items, Expected{Title: "某标题", MediaType: types.MediaTypeMovie})
	if len(movies) != 1 || len(movies[0].Episodes) != 1 {
		t.Fatalf("movie gate failed, got %v", movies)
	}

	series := Filter(items, Expected{Title: "某标题", MediaType: types.MediaTypeSeries})
	if len(series) != 1 || len(series[0].Episodes) != 24 {
		t.Fatalf("series gate failed, got %v", series)
	}
}

func TestFilterNothingPlausible(t *testing.T) {
	items := []types.Candidate{
		candidate("完全不相关的标题", "", 12),
	}

	got := Filter(items, Expected{Title: "进击的巨人", MediaType: types.MediaTypeSeries})
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestFilterEmptyInput(t *testing.T) {
	if got := Filter(nil, Expected{Title: "anything"}); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
