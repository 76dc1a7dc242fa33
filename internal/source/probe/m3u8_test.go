package probe

import (
	"net/url"
	"testing"

	"github.com/streamweave/streamweave/internal/source/types"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x480
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1920x1080,CODECS="avc1.4d401f,mp4a.40.2"
high/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXTINF:9.8,
segment0.ts
#EXTINF:9.8,
segment1.ts
#EXT-X-ENDLIST
`

func TestParsePlaylistMaster(t *testing.T) {
	pl := parsePlaylist(masterPlaylist)
	if !pl.isMaster() {
		t.Fatal("expected master playlist")
	}
	if got := pl.maxHeight(); got != 1080 {
		t.Errorf("maxHeight = %d, want 1080", got)
	}
	if got := pl.bestVariant(); got != "high/index.m3u8" {
		t.Errorf("bestVariant = %q, want high/index.m3u8", got)
	}
}

func TestParsePlaylistMedia(t *testing.T) {
	pl := parsePlaylist(mediaPlaylist)
	if pl.isMaster() {
		t.Fatal("expected media playlist")
	}
	if len(pl.segments) != 2 || pl.segments[0] != "segment0.ts" {
		t.Errorf("segments = %v", pl.segments)
	}
}

func TestParseResolutionHeight(t *testing.T) {
	tests := []struct {
		name string
		line string
		want int
	}{
		{"plain", "#EXT-X-STREAM-INF:RESOLUTION=1280x720", 720},
		{"quoted codecs with comma", `#EXT-X-STREAM-INF:CODECS="avc1,mp4a",RESOLUTION=1920x1080`, 1080},
		{"missing resolution", "#EXT-X-STREAM-INF:BANDWIDTH=800000", 0},
		{"malformed resolution", "#EXT-X-STREAM-INF:RESOLUTION=broken", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseResolutionHeight(tt.line); got != tt.want {
				t.Errorf("parseResolutionHeight(%q) = %d, want %d", tt.line, got, tt.want)
			}
		})
	}
}

func TestResolveReference(t *testing.T) {
	base, _ := url.Parse("https://cdn.example.com/vod/show/index.m3u8")

	tests := []struct {
		ref  string
		want string
	}{
		{"segment0.ts", "https://cdn.example.com/vod/show/segment0.ts"},
		{"/abs/segment0.ts", "https://cdn.example.com/abs/segment0.ts"},
		{"https://other.example.com/a.ts", "https://other.example.com/a.ts"},
	}
	for _, tt := range tests {
		if got := resolveReference(base, tt.ref); got != tt.want {
			t.Errorf("resolveReference(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestTierForHeight(t *testing.T) {
	tests := []struct {
		height int
		want   types.QualityTier
	}{
		{2160, types.Quality4K},
		{1440, types.Quality2K},
		{1080, types.Quality1080p},
		{720, types.Quality720p},
		{480, types.Quality480p},
		{360, types.QualitySD},
		{0, types.QualityUnknown},
	}
	for _, tt := range tests {
		if got := tierForHeight(tt.height); got != tt.want {
			t.Errorf("tierForHeight(%d) = %v, want %v", tt.height, got, tt.want)
		}
	}
}
