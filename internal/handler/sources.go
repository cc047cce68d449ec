package handler

import (
	"net/http"

	"marketglass/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetSources godoc
// @Summary      List data sources
// @Description  Returns every known source with its enablement and supported categories
// @Tags         sources
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/sources [get]
func (h *Handler) GetSources(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-sources")
	defer span.End()

	c.JSON(http.StatusOK, gin.H{"sources": h.markets.SourcesStatus()})
}

// GetSource godoc
// @Summary      Get one data source
// @Description  Returns a single source's enablement and supported categories
// @Tags         sources
// @Produce      json
// @Param        source  path  string  true  "Source id (finviz, yahoo, tradingview)"
// @Success      200  {object}  service.SourceStatus
// @Failure      404  {object}  map[string]string
// @Router       /api/sources/{source} [get]
func (h *Handler) GetSource(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-source")
	defer span.End()

	id := domain.SourceID(c.Param("source"))
	span.SetAttributes(attribute.String("source", string(id)))

	for _, status := range h.markets.SourcesStatus() {
		if status.ID == id {
			c.JSON(http.StatusOK, status)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + string(id)})
}
