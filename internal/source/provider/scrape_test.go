package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const searchPage = `<!DOCTYPE html>
<html><body>
<div class="module-item">
  <a class="module-item-title" href="/detail/101">某动画</a>
  <span class="module-item-caption">2023 / 连载中</span>
  <div class="play-list">
    <a href="https://cdn.example.com/1.m3u8">第1集</a>
    <a href="https://cdn.example.com/2.m3u8">第2集</a>
  </div>
</div>
<div class="module-item">
  <a class="module-item-title" href="/detail/102"></a>
</div>
</body></html>`

func TestScrapeClientSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	}))
	defer server.Close()

	def := Definition{
		ID:        "testscrape",
		Kind:      KindScrape,
		SearchURL: server.URL + "/search?q={query}",
		Selectors: ScrapeSelectors{
			Item:     ".module-item",
			Title:    ".module-item-title",
			Year:     ".module-item-caption",
			Link:     ".module-item-title",
			Episodes: ".play-list a",
		},
	}
	client := NewClient(def, server.Client())

	candidates, err := client.Search(context.Background(), "某动画")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 (titleless items dropped)", len(candidates))
	}

	c := candidates[0]
	if c.Title != "某动画" || c.Year != "2023" || c.ExternalID != "/detail/101" {
		t.Errorf("candidate = %+v", c)
	}
	if len(c.Episodes) != 2 || c.Episodes[0] != "https://cdn.example.com/1.m3u8" {
		t.Errorf("episodes = %v", c.Episodes)
	}
}
