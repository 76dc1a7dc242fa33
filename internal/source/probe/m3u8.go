package probe

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/streamweave/streamweave/internal/source/types"
)

// playlist is the subset of an HLS playlist the prober cares about:
// variant streams with their advertised resolution, and media segments.
type playlist struct {
	variants []variant
	segments []string
}

type variant struct {
	uri    string
	height int
}

// isMaster reports whether the playlist declares variant streams.
func (p *playlist) isMaster() bool {
	return len(p.variants) > 0
}

// maxHeight returns the largest advertised variant height, or 0.
func (p *playlist) maxHeight() int {
	best := 0
	for _, v := range p.variants {
		if v.height > best {
			best = v.height
		}
	}
	return best
}

// bestVariant returns the URI of the highest-resolution variant.
func (p *playlist) bestVariant() string {
	best := ""
	bestHeight := -1
	for _, v := range p.variants {
		if v.height > bestHeight {
			bestHeight = v.height
			best = v.uri
		}
	}
	return best
}

func parsePlaylist(body string) *playlist {
	p := &playlist{}
	pendingHeight := -1

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			pendingHeight = parseResolutionHeight(line)
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		if pendingHeight >= 0 {
			p.variants = append(p.variants, variant{uri: line, height: pendingHeight})
			pendingHeight = -1
		} else {
			p.segments = append(p.segments, line)
		}
	}

	return p
}

// parseResolutionHeight extracts the height from a RESOLUTION=WxH attribute.
func parseResolutionHeight(line string) int {
	attrs := strings.TrimPrefix(line, "#EXT-X-STREAM-INF:")
	for _, attr := range splitAttributes(attrs) {
		key, value, found := strings.Cut(attr, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "RESOLUTION") {
			continue
		}
		_, heightText, found := strings.Cut(strings.TrimSpace(value), "x")
		if !found {
			continue
		}
		if height, err := strconv.Atoi(heightText); err == nil {
			return height
		}
	}
	return 0
}

// splitAttributes splits an attribute list on commas outside quotes.
func splitAttributes(attrs string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	for _, r := range attrs {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// resolveReference resolves a possibly-relative playlist reference against
// the playlist URL it came from.
func resolveReference(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// tierForHeight buckets a stream height into a quality tier.
func tierForHeight(height int) types.QualityTier {
	switch {
	case height >= 2160:
		return types.Quality4K
	case height >= 1440:
		return types.Quality2K
	case height >= 1080:
		return types.Quality1080p
	case height >= 720:
		return types.Quality720p
	case height >= 480:
		return types.Quality480p
	case height > 0:
		return types.QualitySD
	default:
		return types.QualityUnknown
	}
}
