package handler

import (
	"errors"
	"net/http"
	"strings"

	"marketglass/internal/domain"
	"marketglass/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	tracer  trace.Tracer
	markets *service.MarketService
}

func New(tracer trace.Tracer, markets *service.MarketService) *Handler {
	return &Handler{
		tracer:  tracer,
		markets: markets,
	}
}

// RegisterRoutes wires all endpoints. The health probe stays outside the
// authenticated group so orchestrators can hit it without a key.
func (h *Handler) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	if auth != nil {
		api.Use(auth)
	}
	api.GET("/markets", h.GetMarkets)
	api.GET("/markets/summary", h.GetMarketsSummary)
	api.GET("/markets/:category", h.GetMarketCategory)
	api.GET("/sources", h.GetSources)
	api.GET("/sources/:source", h.GetSource)
	api.POST("/scrape", h.TriggerScrape)
}

// fetchRequest builds the normalized request from query parameters. The
// client IP keys the rate limiter.
func fetchRequest(c *gin.Context) service.FetchRequest {
	req := service.FetchRequest{
		CallerIdentity: c.ClientIP(),
		ForceRefresh:   c.Query("nocache") == "1",
	}
	for _, s := range splitCSV(c.Query("sources")) {
		req.Sources = append(req.Sources, domain.SourceID(s))
	}
	for _, cat := range splitCSV(c.Query("categories")) {
		req.Categories = append(req.Categories, domain.Category(cat))
	}
	return req
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAllSourcesFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
