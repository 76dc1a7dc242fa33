package overlay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/overlay/types"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<i>
  <d p="12.5,1,25,16777215,1700000000,0,abc123,555001">前排</d>
  <d p="30.2,5,25,16711680,1700000001,0,def456,555002">高能预警</d>
  <d p="45.0,1,25">no id comment</d>
</i>`

func TestParseCommentXML(t *testing.T) {
	comments, err := ParseCommentXML([]byte(sampleXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("got %d comments, want 3", len(comments))
	}

	if comments[0].CID != 555001 || comments[0].M != "前排" {
		t.Errorf("comment 0 = %+v", comments[0])
	}
	// The packed attribute is repacked as "time,mode,color,user".
	if comments[0].P != "12.5,1,16777215,abc123" {
		t.Errorf("comment 0 p = %q", comments[0].P)
	}
	if comments[1].CID != 555002 {
		t.Errorf("comment 1 cid = %d, want 555002", comments[1].CID)
	}
	// A short p attribute falls back to the list index as id.
	if comments[2].CID != 2 {
		t.Errorf("comment 2 cid = %d, want 2", comments[2].CID)
	}
}

func TestParseCommentXMLInvalid(t *testing.T) {
	if _, err := ParseCommentXML([]byte("not xml at all <<<")); err == nil {
		t.Fatal("expected error for invalid xml")
	}
}

func TestClientSearchAnime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/search/anime" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("keyword") != "某动画" {
			t.Errorf("unexpected keyword %q", r.URL.Query().Get("keyword"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errorCode":0,"success":true,"animes":[{"animeId":42,"animeTitle":"某动画","episodeCount":12}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zerolog.Nop())
	animes, err := client.SearchAnime(context.Background(), "某动画")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(animes) != 1 || animes[0].AnimeID != 42 {
		t.Fatalf("animes = %v", animes)
	}
}

func TestClientUpstreamErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errorCode":404,"success":false,"errorMessage":"anime not found"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := client.SearchAnime(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "anime not found") {
		t.Fatalf("error should carry the upstream message, got %v", err)
	}
}

func TestClientTokenPath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"errorCode":0,"success":true,"animes":[]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Token: "secret"}, zerolog.Nop())
	if _, err := client.SearchAnime(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/secret/api/v2/search/anime" {
		t.Errorf("path = %q, want token segment", path)
	}
}

func TestClientMatchFileName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v2/match" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"errorCode":0,"success":true,"isMatched":true,"matches":[{"animeId":42,"episodeId":420001,"animeTitle":"某动画","episodeTitle":"第1话"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zerolog.Nop())
	matches, err := client.MatchFileName(context.Background(), "某动画 第1集")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].EpisodeID != 420001 {
		t.Fatalf("matches = %v", matches)
	}
}

func TestClientMatchFileNameUnmatched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errorCode":0,"success":true,"isMatched":false,"matches":[]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zerolog.Nop())
	matches, err := client.MatchFileName(context.Background(), "unknown.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches != nil {
		t.Fatalf("unmatched file should yield nil, got %v", matches)
	}
}

func TestClientComments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/comment/420001" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sampleXML))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zerolog.Nop())
	comments, err := client.Comments(context.Background(), 420001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("got %d comments, want 3", len(comments))
	}
}

func TestConvertForPlayer(t *testing.T) {
	comments, err := ParseCommentXML([]byte(sampleXML))
	if err != nil {
		t.Fatal(err)
	}

	converted := ConvertForPlayer(comments)
	if len(converted) != 3 {
		t.Fatalf("got %d converted, want 3", len(converted))
	}

	if converted[0].Time != 12.5 || converted[0].Mode != "rtl" || converted[0].Color != "#FFFFFF" {
		t.Errorf("comment 0 = %+v", converted[0])
	}
	if converted[1].Mode != "top" {
		t.Errorf("mode 5 should render top, got %q", converted[1].Mode)
	}
	if converted[0].Text != "前排" {
		t.Errorf("text = %q", converted[0].Text)
	}
}

func TestConvertForPlayerColor(t *testing.T) {
	comments := []types.Comment{
		{P: "1.0,1,16777215", M: "white"},
		{P: "2.0,4,16711680", M: "red bottom"},
		{P: "", M: "degenerate"},
	}

	converted := ConvertForPlayer(comments)
	if converted[0].Color != "#FFFFFF" {
		t.Errorf("color = %q, want #FFFFFF", converted[0].Color)
	}
	if converted[1].Color != "#FF0000" || converted[1].Mode != "bottom" {
		t.Errorf("comment 1 = %+v", converted[1])
	}
	if converted[2].Color != "#FFFFFF" || converted[2].Mode != "rtl" || converted[2].Time != 0 {
		t.Errorf("degenerate comment should get defaults, got %+v", converted[2])
	}
}
