package source

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for source operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new source handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the source routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/providers", h.GetProviders)
	g.POST("/search", h.Search)
	g.POST("/resolve", h.Resolve)
	g.POST("/select", h.Select)
	g.DELETE("/memory/:title", h.Forget)
}

// GetProviders lists the loaded provider definitions.
// GET /api/v1/source/providers
func (h *Handlers) GetProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Providers())
}

// Search returns the plausible candidates for a title across providers.
// POST /api/v1/source/search
func (h *Handlers) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	candidates, err := h.service.Search(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, candidates)
}

// Resolve returns the best source for a title.
// POST /api/v1/source/resolve
func (h *Handlers) Resolve(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	selection, err := h.service.Resolve(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrNoSources) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, selection)
}

type selectRequest struct {
	Title string `json:"title"`
	Index int    `json:"index"`
}

// Select records the viewer's source choice for a title.
// POST /api/v1/source/select
func (h *Handlers) Select(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if req.Index < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "index must not be negative")
	}

	h.service.Remember(req.Title, req.Index)
	return c.NoContent(http.StatusNoContent)
}

// Forget drops the remembered choices for a title.
// DELETE /api/v1/source/memory/:title
func (h *Handlers) Forget(c echo.Context) error {
	title := c.Param("title")
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	h.service.Forget(title)
	return c.NoContent(http.StatusNoContent)
}
