package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/overlay/types"
)

// Upstream is the comment service surface the resolver depends on. It is an
// interface so tests can drive the resolver with a scripted fake.
type Upstream interface {
	SearchAnime(ctx context.Context, keyword string) ([]types.Anime, error)
	MatchFileName(ctx context.Context, fileName string) ([]types.Match, error)
	Episodes(ctx context.Context, animeID int64) ([]types.Episode, error)
	Comments(ctx context.Context, episodeID int64) ([]types.Comment, error)
}

// Client talks to a danmaku-style comment API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// ClientConfig holds upstream client configuration.
type ClientConfig struct {
	BaseURL string
	// Token, when set, is an access token segment inserted into the
	// request path, as self-hosted comment services expect.
	Token   string
	Timeout time.Duration
}

// NewClient creates an upstream comment client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Token != "" {
		baseURL += "/" + strings.Trim(cfg.Token, "/")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "overlay-upstream").Logger(),
	}
}

// envelope is the common upstream response wrapper. Payload fields are
// decoded by the caller from the same body.
type envelope struct {
	ErrorCode    int    `json:"errorCode"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage"`
}

type searchResponse struct {
	envelope
	Animes []types.Anime `json:"animes"`
}

type matchResponse struct {
	envelope
	IsMatched bool          `json:"isMatched"`
	Matches   []types.Match `json:"matches"`
}

type bangumiResponse struct {
	envelope
	Bangumi struct {
		Episodes []types.Episode `json:"episodes"`
	} `json:"bangumi"`
}

// SearchAnime searches the upstream service for shows by keyword.
func (c *Client) SearchAnime(ctx context.Context, keyword string) ([]types.Anime, error) {
	endpoint := c.baseURL + "/api/v2/search/anime?keyword=" + url.QueryEscape(keyword)
	var decoded searchResponse
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}
	return decoded.Animes, nil
}

// MatchFileName asks the upstream service to match an episode file name.
func (c *Client) MatchFileName(ctx context.Context, fileName string) ([]types.Match, error) {
	payload, err := json.Marshal(map[string]string{"fileName": fileName})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/match", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var decoded matchResponse
	if err := c.doJSON(req, &decoded); err != nil {
		return nil, err
	}
	if !decoded.IsMatched {
		return nil, nil
	}
	return decoded.Matches, nil
}

// Episodes lists the episodes of one upstream show.
func (c *Client) Episodes(ctx context.Context, animeID int64) ([]types.Episode, error) {
	endpoint := fmt.Sprintf("%s/api/v2/bangumi/%d", c.baseURL, animeID)
	var decoded bangumiResponse
	if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}
	return decoded.Bangumi.Episodes, nil
}

// Comments fetches the full comment set for an upstream episode.
func (c *Client) Comments(ctx context.Context, episodeID int64) ([]types.Comment, error) {
	endpoint := fmt.Sprintf("%s/api/v2/comment/%d?withRelated=true&format=xml", c.baseURL, episodeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch comments: %s", upstreamError(resp.StatusCode, body))
	}

	return ParseCommentXML(body)
}

// commentDocument is the danmaku XML comment feed.
type commentDocument struct {
	XMLName xml.Name   `xml:"i"`
	Entries []xmlEntry `xml:"d"`
}

type xmlEntry struct {
	P string `xml:"p,attr"`
	M string `xml:",chardata"`
}

// ParseCommentXML decodes a danmaku XML feed into comments. The XML p
// attribute packs "time,mode,fontsize,color,timestamp,pool,user,rowid";
// it is repacked into the compact "time,mode,color,user" form the rest of
// the pipeline consumes, with the rowid as comment id. Entries with a
// short attribute keep it as is and get their list index as id.
func ParseCommentXML(data []byte) ([]types.Comment, error) {
	var doc commentDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode comment xml: %w", err)
	}

	comments := make([]types.Comment, 0, len(doc.Entries))
	for i, entry := range doc.Entries {
		cid := int64(i)
		p := entry.P
		if parts := strings.Split(entry.P, ","); len(parts) >= 8 {
			if parsed, err := strconv.ParseInt(parts[7], 10, 64); err == nil {
				cid = parsed
			}
			p = strings.Join([]string{parts[0], parts[1], parts[3], parts[6]}, ",")
		}
		comments = append(comments, types.Comment{
			CID: cid,
			P:   p,
			M:   entry.M,
		})
	}
	return comments, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

// doJSON executes a request and decodes the enveloped JSON response,
// surfacing upstream error bodies instead of bare status codes.
func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream request: %s", upstreamError(resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}

	if env := extractEnvelope(out); env != nil && env.ErrorCode != 0 {
		message := env.ErrorMessage
		if message == "" {
			message = fmt.Sprintf("error code %d", env.ErrorCode)
		}
		return fmt.Errorf("upstream error: %s", message)
	}
	return nil
}

func extractEnvelope(out interface{}) *envelope {
	switch v := out.(type) {
	case *searchResponse:
		return &v.envelope
	case *matchResponse:
		return &v.envelope
	case *bangumiResponse:
		return &v.envelope
	default:
		return nil
	}
}

// upstreamError prefers the error message carried in an upstream error body
// over the raw HTTP status.
func upstreamError(status int, body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.ErrorMessage != "" {
		return fmt.Sprintf("status %d: %s", status, env.ErrorMessage)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" && len(trimmed) <= 200 && !strings.HasPrefix(trimmed, "<") {
		return fmt.Sprintf("status %d: %s", status, trimmed)
	}
	return fmt.Sprintf("status %d", status)
}
