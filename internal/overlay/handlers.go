package overlay

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/streamweave/streamweave/internal/overlay/filter"
	"github.com/streamweave/streamweave/internal/overlay/types"
)

// Handlers provides HTTP handlers for overlay operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new overlay handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the overlay routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/resolve", h.Resolve)
	g.POST("/upload", h.Upload)
	g.GET("/search", h.Search)
	g.GET("/episodes/:animeId", h.GetEpisodes)
	g.GET("/cache/stats", h.GetCacheStats)
	g.DELETE("/cache", h.ClearCache)
	g.GET("/filters", h.GetFilters)
	g.PUT("/filters", h.PutFilters)
}

// resolveRequest is the wire form of an overlay resolve call. AnimeID or
// EpisodeID, when set, bypass the automatic chain.
type resolveRequest struct {
	Title        string `json:"title"`
	EpisodeIndex int    `json:"episodeIndex"`
	Keyword      string `json:"keyword,omitempty"`
	AnimeID      int64  `json:"animeId,omitempty"`
	EpisodeID    int64  `json:"episodeId,omitempty"`
	// ChoiceIndex is the position of AnimeID in the choice list the viewer
	// picked from, when this call resolves an ambiguous search.
	ChoiceIndex *int `json:"choiceIndex,omitempty"`
	// ForPlayer converts comments into the renderer shape.
	ForPlayer bool `json:"forPlayer,omitempty"`
}

type resolveResponse struct {
	types.Resolution
	PlayerComments []types.PlayerComment `json:"playerComments,omitempty"`
}

// Resolve returns the overlay comments for one episode of a title.
// POST /api/v1/overlay/resolve
func (h *Handlers) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	ctx := c.Request().Context()
	overlayReq := Request{
		Title:        req.Title,
		EpisodeIndex: req.EpisodeIndex,
		Keyword:      req.Keyword,
		ChoiceIndex:  req.ChoiceIndex,
	}

	var res types.Resolution
	var err error
	switch {
	case req.EpisodeID > 0:
		res, err = h.service.ResolveEpisode(ctx, overlayReq, req.EpisodeID)
	case req.AnimeID > 0:
		res, err = h.service.ResolveAnime(ctx, overlayReq, req.AnimeID)
	default:
		res, err = h.service.Resolve(ctx, overlayReq)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	response := resolveResponse{Resolution: res}
	if req.ForPlayer && len(res.Comments) > 0 {
		response.PlayerComments = ConvertForPlayer(res.Comments)
	}
	return c.JSON(http.StatusOK, response)
}

type uploadRequest struct {
	Title        string          `json:"title"`
	EpisodeIndex int             `json:"episodeIndex"`
	Comments     []types.Comment `json:"comments,omitempty"`
	// XML carries a raw danmaku XML document as an alternative to the
	// structured comment list.
	XML string `json:"xml,omitempty"`
}

// Upload stores viewer-supplied comments for an episode.
// POST /api/v1/overlay/upload
func (h *Handlers) Upload(c echo.Context) error {
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	comments := req.Comments
	if len(comments) == 0 && req.XML != "" {
		parsed, err := ParseCommentXML([]byte(req.XML))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid comment xml")
		}
		comments = parsed
	}

	res, err := h.service.Upload(c.Request().Context(), Request{
		Title:        req.Title,
		EpisodeIndex: req.EpisodeIndex,
	}, comments)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// Search searches the upstream comment service for shows.
// GET /api/v1/overlay/search?keyword=...
func (h *Handlers) Search(c echo.Context) error {
	keyword := c.QueryParam("keyword")
	if keyword == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "keyword is required")
	}

	animes, err := h.service.Search(c.Request().Context(), keyword)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, animes)
}

// GetEpisodes lists the episodes of an upstream show.
// GET /api/v1/overlay/episodes/:animeId
func (h *Handlers) GetEpisodes(c echo.Context) error {
	animeID, err := strconv.ParseInt(c.Param("animeId"), 10, 64)
	if err != nil || animeID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid show id")
	}

	episodes, err := h.service.Episodes(c.Request().Context(), animeID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, episodes)
}

// GetCacheStats reports overlay cache contents.
// GET /api/v1/overlay/cache/stats
func (h *Handlers) GetCacheStats(c echo.Context) error {
	stats, err := h.service.CacheStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// ClearCache clears cached overlays, for one title when ?title= is given.
// DELETE /api/v1/overlay/cache
func (h *Handlers) ClearCache(c echo.Context) error {
	if err := h.service.ClearCache(c.Request().Context(), c.QueryParam("title")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// GetFilters returns the persisted block rules.
// GET /api/v1/overlay/filters
func (h *Handlers) GetFilters(c echo.Context) error {
	rules, err := h.service.FilterRules(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rules)
}

// PutFilters replaces the block rules with a normalized set.
// PUT /api/v1/overlay/filters
func (h *Handlers) PutFilters(c echo.Context) error {
	var inputs []filter.RuleInput
	if err := c.Bind(&inputs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rules, err := h.service.SaveFilterRules(c.Request().Context(), inputs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rules)
}
