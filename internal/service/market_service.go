package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"marketglass/internal/cache"
	"marketglass/internal/domain"
	"marketglass/internal/provider"
	"marketglass/internal/scrape"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrRateLimited means the caller exhausted its request budget; no
	// fetch was attempted. Retrying is the caller's responsibility.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAllSourcesFailed means zero sources produced data in a fetch
	// cycle. Distinct from an empty-but-successful result.
	ErrAllSourcesFailed = errors.New("no source returned data")
)

// Fetcher runs one concurrent fetch cycle across sources.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []domain.SourceID, categories []domain.Category) []domain.Outcome
}

// Admitter gates requests per caller identity.
type Admitter interface {
	Admit(identity string) bool
}

// DocumentCache fronts the fetch pipeline.
type DocumentCache interface {
	GetOrFetch(ctx context.Context, key string, loader cache.Loader, opts cache.Options) (*domain.Document, bool, error)
	Len() int
}

// FetchRequest is the normalized inbound request handed to the core by the
// HTTP layer.
type FetchRequest struct {
	Sources        []domain.SourceID
	Categories     []domain.Category
	ForceRefresh   bool
	CallerIdentity string
}

// CategorySummary condenses one category of the document.
type CategorySummary struct {
	Records int               `json:"records"`
	Sources []domain.SourceID `json:"sources"`
}

// Summary is the compact per-category view served by /api/markets/summary.
type Summary struct {
	Categories   map[domain.Category]CategorySummary `json:"categories"`
	TotalRecords int                                 `json:"total_records"`
	GeneratedAt  time.Time                           `json:"generated_at"`
}

// SourceStatus describes one configured source.
type SourceStatus struct {
	ID         domain.SourceID   `json:"id"`
	Name       string            `json:"name"`
	Enabled    bool              `json:"enabled"`
	Categories []domain.Category `json:"categories"`
}

var displayNames = map[domain.SourceID]string{
	domain.SourceFinviz:      "Finviz",
	domain.SourceYahoo:       "Yahoo Finance",
	domain.SourceTradingView: "TradingView",
}

// MarketService orchestrates the read path: rate limiter, then cache, then
// the coordinated scrape pipeline on a miss.
type MarketService struct {
	tracer     trace.Tracer
	fetcher    Fetcher
	cache      DocumentCache
	limiter    Admitter
	scrapers   []provider.Scraper
	enabled    []domain.SourceID
	allowStale bool
}

func NewMarketService(
	tracer trace.Tracer,
	fetcher Fetcher,
	documentCache DocumentCache,
	limiter Admitter,
	scrapers []provider.Scraper,
	enabled []domain.SourceID,
	allowStale bool,
) *MarketService {
	return &MarketService{
		tracer:     tracer,
		fetcher:    fetcher,
		cache:      documentCache,
		limiter:    limiter,
		scrapers:   scrapers,
		enabled:    enabled,
		allowStale: allowStale,
	}
}

// GetMarketData serves the canonical document for the requested sources and
// categories, from cache when fresh. ForceRefresh bypasses freshness but
// never single-flight.
func (s *MarketService) GetMarketData(ctx context.Context, req FetchRequest) (*domain.Document, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.get-market-data")
	defer span.End()

	if s.limiter != nil && !s.limiter.Admit(req.CallerIdentity) {
		return nil, ErrRateLimited
	}

	sources := s.resolveSources(req.Sources)
	categories := resolveCategories(req.Categories)
	span.SetAttributes(attribute.Int("sources", len(sources)))

	if len(sources) == 0 {
		// Nothing to scrape; an empty document is a valid answer and
		// not worth a cache slot.
		return scrape.Merge(nil), nil
	}

	loader := func(ctx context.Context) (*domain.Document, error) {
		outcomes := s.fetcher.FetchAll(ctx, sources, categories)
		doc := scrape.Merge(outcomes)
		if doc.Empty() {
			return nil, ErrAllSourcesFailed
		}
		return doc, nil
	}

	doc, _, err := s.cache.GetOrFetch(ctx, cacheKey(sources, categories), loader, cache.Options{
		AllowStale: s.allowStale && !req.ForceRefresh,
		Bypass:     req.ForceRefresh,
	})
	return doc, err
}

// GetSummary condenses the document into per-category counts. It reads
// through the same cache entry as the full payload, so the two views can
// never disagree.
func (s *MarketService) GetSummary(ctx context.Context, req FetchRequest) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.get-summary")
	defer span.End()

	doc, err := s.GetMarketData(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Categories:  make(map[domain.Category]CategorySummary),
		GeneratedAt: doc.GeneratedAt,
	}
	for _, cat := range domain.Categories {
		entries := doc.ByCategory[cat]
		if len(entries) == 0 {
			continue
		}
		var contributors []domain.SourceID
		seen := make(map[domain.SourceID]struct{})
		for _, e := range entries {
			if _, ok := seen[e.Source]; ok {
				continue
			}
			seen[e.Source] = struct{}{}
			contributors = append(contributors, e.Source)
		}
		summary.Categories[cat] = CategorySummary{Records: len(entries), Sources: contributors}
		summary.TotalRecords += len(entries)
	}
	return summary, nil
}

// SourcesStatus reports every known source with its enablement and
// supported categories.
func (s *MarketService) SourcesStatus() []SourceStatus {
	enabled := make(map[domain.SourceID]struct{}, len(s.enabled))
	for _, id := range s.enabled {
		enabled[id] = struct{}{}
	}

	statuses := make([]SourceStatus, 0, len(s.scrapers))
	for _, sc := range s.scrapers {
		id := sc.Name()
		_, on := enabled[id]
		statuses = append(statuses, SourceStatus{
			ID:         id,
			Name:       displayNames[id],
			Enabled:    on,
			Categories: sc.Categories(),
		})
	}
	return statuses
}

// CacheEntries reports the number of cached documents, for health output.
func (s *MarketService) CacheEntries() int {
	return s.cache.Len()
}

// AvailableSources counts enabled sources, for health output.
func (s *MarketService) AvailableSources() int {
	return len(s.enabled)
}

// resolveSources filters the request down to enabled sources, preserving
// the configured order. An empty request means all enabled sources.
func (s *MarketService) resolveSources(requested []domain.SourceID) []domain.SourceID {
	if len(requested) == 0 {
		return s.enabled
	}
	want := make(map[domain.SourceID]struct{}, len(requested))
	for _, id := range requested {
		want[id] = struct{}{}
	}
	out := make([]domain.SourceID, 0, len(s.enabled))
	for _, id := range s.enabled {
		if _, ok := want[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// resolveCategories drops unknown categories. Empty means all.
func resolveCategories(requested []domain.Category) []domain.Category {
	if len(requested) == 0 {
		return nil
	}
	out := make([]domain.Category, 0, len(requested))
	for _, c := range requested {
		if c.IsValid() {
			out = append(out, c)
		}
	}
	return out
}

// cacheKey is stable under request ordering: same source/category set, same
// key.
func cacheKey(sources []domain.SourceID, categories []domain.Category) string {
	src := make([]string, 0, len(sources))
	for _, s := range sources {
		src = append(src, string(s))
	}
	sort.Strings(src)

	cat := make([]string, 0, len(categories))
	for _, c := range categories {
		cat = append(cat, string(c))
	}
	sort.Strings(cat)
	if len(cat) == 0 {
		cat = []string{"all"}
	}

	return "src=" + strings.Join(src, ",") + "|cat=" + strings.Join(cat, ",")
}
