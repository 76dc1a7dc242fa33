package health

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for health status.
type Handlers struct {
	service *Service
}

// NewHandlers creates health handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers health routes on the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.getHealth)
	g.GET("/items", h.getItems)
}

func (h *Handlers) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": h.service.Overall(),
	})
}

func (h *Handlers) getItems(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Items())
}
