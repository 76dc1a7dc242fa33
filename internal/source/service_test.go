package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/session"
	"github.com/streamweave/streamweave/internal/source/probe"
	"github.com/streamweave/streamweave/internal/source/provider"
)

// newStreamServer serves a minimal HLS stream for probing.
func newStreamServer(t *testing.T, height int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "#EXTM3U\n#EXT-X-STREAM-INF:RESOLUTION=1920x%d\n%s/media.m3u8\n", height, server.URL)
	})
	mux.HandleFunc("/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:10,\nseg.ts\n")
	})
	mux.HandleFunc("/seg.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 32*1024))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// newAPIProvider serves a vod search API with the given play URLs and
// returns a provider directory containing its definition.
func newAPIProvider(t *testing.T, id string, items ...string) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"list":[%s]}`, joinItems(items))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	def := fmt.Sprintf("id: %s\nkind: api\nsearch_url: %s/api?wd={query}\n", id, server.URL)
	if err := os.WriteFile(filepath.Join(dir, id+".yml"), []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func joinItems(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}

func vodItem(id int, name, playURL string) string {
	return fmt.Sprintf(`{"vod_id":%d,"vod_name":"%s","vod_year":"2023","type_name":"动漫","vod_play_url":"%s"}`, id, name, playURL)
}

func newTestService(t *testing.T, providerDir string) (*Service, *session.Memory) {
	t.Helper()

	repo, err := provider.NewRepository(providerDir, 5*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	memory := session.New()
	prober := probe.New(probe.Config{MaxBytes: 32 * 1024, Timeout: 5 * time.Second}, zerolog.Nop())
	return NewService(repo, prober, memory, nil, zerolog.Nop()), memory
}

func TestSearchFiltersImplausibleResults(t *testing.T) {
	stream := newStreamServer(t, 1080)
	play := fmt.Sprintf("1$%s/index.m3u8#2$%s/index.m3u8", stream.URL, stream.URL)

	dir := newAPIProvider(t, "alpha",
		vodItem(1, "某动画", play),
		vodItem(2, "完全无关的标题", play),
	)
	service, _ := newTestService(t, dir)

	candidates, err := service.Search(context.Background(), SearchRequest{Title: "某动画"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Title != "某动画" {
		t.Fatalf("candidates = %v", candidates)
	}
}

func TestSearchRequiresTitle(t *testing.T) {
	service, _ := newTestService(t, t.TempDir())
	if _, err := service.Search(context.Background(), SearchRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveSingleCandidateSkipsProbe(t *testing.T) {
	dir := newAPIProvider(t, "alpha",
		vodItem(1, "某动画", "1$https://unreachable.invalid/1.m3u8"),
	)
	service, _ := newTestService(t, dir)

	selection, err := service.Resolve(context.Background(), SearchRequest{Title: "某动画"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selection.Probed {
		t.Error("single candidate must not be probed")
	}
	if selection.Best.ExternalID != "1" {
		t.Errorf("best = %+v", selection.Best)
	}
}

func TestResolveRememberedChoiceSkipsProbe(t *testing.T) {
	stream := newStreamServer(t, 1080)
	play := fmt.Sprintf("1$%s/index.m3u8", stream.URL)

	dir := newAPIProvider(t, "alpha",
		vodItem(1, "某动画", play),
		vodItem(2, "某动画", play),
	)
	service, _ := newTestService(t, dir)
	service.Remember("某动画", 1)

	selection, err := service.Resolve(context.Background(), SearchRequest{Title: "某动画"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !selection.Remembered || selection.Probed {
		t.Errorf("selection = %+v, want remembered without probing", selection)
	}
	if selection.BestIndex != 1 {
		t.Errorf("best index = %d, want 1", selection.BestIndex)
	}
}

func TestResolveProbesAndPicks(t *testing.T) {
	goodStream := newStreamServer(t, 1080)
	poorStream := newStreamServer(t, 480)

	goodPlay := fmt.Sprintf("1$%s/index.m3u8#2$%s/index.m3u8", goodStream.URL, goodStream.URL)
	poorPlay := fmt.Sprintf("1$%s/index.m3u8#2$%s/index.m3u8", poorStream.URL, poorStream.URL)

	dir := newAPIProvider(t, "alpha",
		vodItem(1, "某动画", poorPlay),
		vodItem(2, "某动画", goodPlay),
	)
	service, _ := newTestService(t, dir)

	selection, err := service.Resolve(context.Background(), SearchRequest{Title: "某动画"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !selection.Probed {
		t.Fatal("multiple candidates must be probed")
	}
	if selection.Best.ExternalID != "2" {
		t.Errorf("best = %s, want the 1080p source", selection.Best.ExternalID)
	}
	if len(selection.Scored) != 2 {
		t.Errorf("scored = %d entries, want 2", len(selection.Scored))
	}
}

func TestResolveNoSources(t *testing.T) {
	dir := newAPIProvider(t, "alpha", vodItem(1, "别的东西", "1$https://x.invalid/1.m3u8"))
	service, _ := newTestService(t, dir)

	_, err := service.Resolve(context.Background(), SearchRequest{Title: "某动画"})
	if err != ErrNoSources {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}
}

func TestForgetClearsMemory(t *testing.T) {
	service, memory := newTestService(t, t.TempDir())
	service.Remember("某动画", 2)
	service.Forget("某动画")

	if _, ok := memory.SourceIndex("某动画"); ok {
		t.Error("forgotten title should have no remembered index")
	}
}
