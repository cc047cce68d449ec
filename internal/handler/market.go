package handler

import (
	"net/http"

	"marketglass/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetMarkets godoc
// @Summary      Get merged market data
// @Description  Returns the merged document across all enabled sources, served from cache when fresh
// @Tags         markets
// @Produce      json
// @Param        sources     query  string  false  "Comma-separated source ids (finviz, yahoo, tradingview)"
// @Param        categories  query  string  false  "Comma-separated categories (index, equity, crypto, forex, etf, commodity)"
// @Param        nocache     query  string  false  "Set to 1 to bypass the cache"
// @Success      200  {object}  domain.Document
// @Failure      429  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/markets [get]
func (h *Handler) GetMarkets(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-markets")
	defer span.End()

	req := fetchRequest(c)
	span.SetAttributes(attribute.Bool("nocache", req.ForceRefresh))

	doc, err := h.markets.GetMarketData(ctx, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// GetMarketsSummary godoc
// @Summary      Get per-category record counts
// @Description  Returns record counts and contributing sources per category, derived from the same cached document as /api/markets
// @Tags         markets
// @Produce      json
// @Success      200  {object}  service.Summary
// @Failure      429  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/markets/summary [get]
func (h *Handler) GetMarketsSummary(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-markets-summary")
	defer span.End()

	summary, err := h.markets.GetSummary(ctx, fetchRequest(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetMarketCategory godoc
// @Summary      Get market data for one category
// @Description  Returns the by-category records for a single category
// @Tags         markets
// @Produce      json
// @Param        category  path   string  true   "Category (index, equity, crypto, forex, etf, commodity)"
// @Param        sources   query  string  false  "Comma-separated source ids"
// @Param        nocache   query  string  false  "Set to 1 to bypass the cache"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      429  {object}  map[string]string
// @Router       /api/markets/{category} [get]
func (h *Handler) GetMarketCategory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-market-category")
	defer span.End()

	category := domain.Category(c.Param("category"))
	span.SetAttributes(attribute.String("category", string(category)))

	if !category.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":                "unsupported category: " + string(category),
			"supported_categories": domain.Categories,
		})
		return
	}

	req := fetchRequest(c)
	req.Categories = []domain.Category{category}

	doc, err := h.markets.GetMarketData(ctx, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	records := doc.ByCategory[category]
	if records == nil {
		records = []domain.SourcedQuote{}
	}
	c.JSON(http.StatusOK, gin.H{
		"category":     category,
		"records":      records,
		"generated_at": doc.GeneratedAt,
	})
}

// TriggerScrape godoc
// @Summary      Force a scrape cycle
// @Description  Bypasses cache freshness, runs a full fetch cycle, and stores the result
// @Tags         scrape
// @Produce      json
// @Param        sources  query  string  false  "Comma-separated source ids to scrape"
// @Success      200  {object}  map[string]interface{}
// @Failure      429  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/scrape [post]
func (h *Handler) TriggerScrape(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-scrape")
	defer span.End()

	req := fetchRequest(c)
	req.ForceRefresh = true

	doc, err := h.markets.GetMarketData(ctx, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	records := 0
	for _, bucket := range doc.BySource {
		records += bucket.Records()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "completed",
		"sources":      len(doc.BySource),
		"records":      records,
		"generated_at": doc.GeneratedAt,
	})
}
