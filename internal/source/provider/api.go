package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/streamweave/streamweave/internal/source/types"
)

// apiClient searches providers that expose a vod-style JSON search API.
type apiClient struct {
	def  Definition
	http *http.Client
}

// apiSearchResponse is the common vod API envelope. Only the fields the
// matcher needs are decoded.
type apiSearchResponse struct {
	List []apiSearchItem `json:"list"`
}

type apiSearchItem struct {
	ID       json.Number `json:"vod_id"`
	Name     string      `json:"vod_name"`
	Year     string      `json:"vod_year"`
	TypeName string      `json:"type_name"`
	Remarks  string      `json:"vod_remarks"`
	PlayURL  string      `json:"vod_play_url"`
}

func (c *apiClient) Definition() Definition { return c.def }

func (c *apiClient) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.def.searchURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.def.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s: unexpected status %d", c.def.ID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var decoded apiSearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	candidates := make([]types.Candidate, 0, len(decoded.List))
	for _, item := range decoded.List {
		if item.Name == "" {
			continue
		}
		candidates = append(candidates, types.Candidate{
			ProviderID:   c.def.ID,
			ProviderName: c.def.DisplayName(),
			ExternalID:   item.ID.String(),
			Title:        strings.TrimSpace(item.Name),
			Year:         strings.TrimSpace(item.Year),
			MediaType:    mediaTypeFromTypeName(item.TypeName),
			Episodes:     parsePlayURL(item.PlayURL),
		})
	}
	return candidates, nil
}

// parsePlayURL splits a vod play URL field into per-episode stream URLs.
// The field packs episodes as "name$url" pairs joined by "#", sometimes
// with multiple play groups joined by "$$$"; only the first group is used.
func parsePlayURL(playURL string) []string {
	if playURL == "" {
		return nil
	}
	if group, _, found := strings.Cut(playURL, "$$$"); found {
		playURL = group
	}

	var episodes []string
	for _, entry := range strings.Split(playURL, "#") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		streamURL := entry
		if _, after, found := strings.Cut(entry, "$"); found {
			streamURL = after
		}
		if strings.HasPrefix(streamURL, "http://") || strings.HasPrefix(streamURL, "https://") {
			episodes = append(episodes, streamURL)
		}
	}
	return episodes
}

// mediaTypeFromTypeName infers the media type from a vod category name.
func mediaTypeFromTypeName(typeName string) types.MediaType {
	switch {
	case typeName == "":
		return types.MediaTypeUnknown
	case strings.Contains(typeName, "电影") || strings.Contains(strings.ToLower(typeName), "movie"):
		return types.MediaTypeMovie
	case strings.Contains(typeName, "剧") || strings.Contains(typeName, "动漫") ||
		strings.Contains(typeName, "综艺") || strings.Contains(strings.ToLower(typeName), "series"):
		return types.MediaTypeSeries
	default:
		return types.MediaTypeUnknown
	}
}
