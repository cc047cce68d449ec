package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"marketglass/internal/cache"
	"marketglass/internal/domain"
	"marketglass/internal/provider"
	"marketglass/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeFetcher struct {
	calls    int64
	outcomes []domain.Outcome
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []domain.SourceID, categories []domain.Category) []domain.Outcome {
	atomic.AddInt64(&f.calls, 1)
	return f.outcomes
}

func (f *fakeFetcher) count() int64 { return atomic.LoadInt64(&f.calls) }

type denyAll struct{}

func (denyAll) Admit(string) bool { return false }

type stubScraper struct {
	name       domain.SourceID
	categories []domain.Category
}

func (s *stubScraper) Name() domain.SourceID         { return s.name }
func (s *stubScraper) Categories() []domain.Category { return s.categories }
func (s *stubScraper) Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error) {
	return nil, nil
}

func successOutcome(source domain.SourceID, names ...string) domain.Outcome {
	bucket := domain.Bucket{}
	for _, n := range names {
		bucket[domain.CategoryIndex] = append(bucket[domain.CategoryIndex], domain.Quote{
			Name:     n,
			Category: domain.CategoryIndex,
			Source:   source,
			Fields:   map[string]string{"price": "100.00"},
		})
	}
	return domain.Outcome{Source: source, Status: domain.OutcomeSuccess, Bucket: bucket}
}

func newTestRouter(t *testing.T, fetcher service.Fetcher, limiter service.Admitter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	scrapers := []provider.Scraper{
		&stubScraper{name: domain.SourceFinviz, categories: []domain.Category{domain.CategoryIndex, domain.CategoryEquity}},
		&stubScraper{name: domain.SourceYahoo, categories: []domain.Category{domain.CategoryIndex}},
		&stubScraper{name: domain.SourceTradingView, categories: []domain.Category{domain.CategoryCrypto}},
	}
	svc := service.NewMarketService(
		testTracer,
		fetcher,
		cache.New(testTracer, time.Minute, nil),
		limiter,
		scrapers,
		domain.Sources,
		true,
	)

	r := gin.New()
	New(testTracer, svc).RegisterRoutes(r, nil)
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceFinviz, "SPX")}}
	r := newTestRouter(t, fetcher, nil)

	w := get(r, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected status: %v", body["status"])
	}
	if body["sources_available"] != float64(3) {
		t.Errorf("expected 3 sources available, got %v", body["sources_available"])
	}
}

func TestGetMarkets(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceFinviz, "SPX", "DJI")}}
	r := newTestRouter(t, fetcher, nil)

	w := get(r, "/api/markets")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var doc domain.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.ByCategory[domain.CategoryIndex]) != 2 {
		t.Errorf("expected 2 index records, got %+v", doc.ByCategory)
	}
	if doc.BySource[domain.SourceFinviz] == nil {
		t.Error("by_source view missing")
	}
}

func TestGetMarketsServedFromCache(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceFinviz, "SPX")}}
	r := newTestRouter(t, fetcher, nil)

	get(r, "/api/markets")
	get(r, "/api/markets")
	if fetcher.count() != 1 {
		t.Errorf("second request must hit the cache, got %d fetches", fetcher.count())
	}
}

func TestGetMarketsNocacheBypasses(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceFinviz, "SPX")}}
	r := newTestRouter(t, fetcher, nil)

	get(r, "/api/markets")
	get(r, "/api/markets?nocache=1")
	if fetcher.count() != 2 {
		t.Errorf("nocache=1 must bypass the cache, got %d fetches", fetcher.count())
	}
}

func TestGetMarketsRateLimited(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceFinviz, "SPX")}}
	r := newTestRouter(t, fetcher, denyAll{})

	w := get(r, "/api/markets")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", w.Code)
	}
	if fetcher.count() != 0 {
		t.Error("rejected request must not trigger a fetch")
	}
}

func TestGetMarketsAllSourcesFailed(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{
		{Source: domain.SourceFinviz, Status: domain.OutcomeFailure, Kind: domain.ErrorBlocked},
	}}
	r := newTestRouter(t, fetcher, nil)

	w := get(r, "/api/markets")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetMarketCategory(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceYahoo, "NDX")}}
	r := newTestRouter(t, fetcher, nil)

	w := get(r, "/api/markets/index")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Category string                `json:"category"`
		Records  []domain.SourcedQuote `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Category != "index" || len(body.Records) != 1 {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestGetMarketCategoryUnknown(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := newTestRouter(t, fetcher, nil)

	w := get(r, "/api/markets/bonds")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if fetcher.count() != 0 {
		t.Error("invalid category must be rejected before any fetch")
	}
}

func TestGetSources(t *testing.T) {
	r := newTestRouter(t, &fakeFetcher{}, nil)

	w := get(r, "/api/sources")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body struct {
		Sources []service.SourceStatus `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Sources) != 3 {
		t.Errorf("expected 3 sources, got %d", len(body.Sources))
	}
}

func TestGetSourceUnknown(t *testing.T) {
	r := newTestRouter(t, &fakeFetcher{}, nil)

	if w := get(r, "/api/sources/bloomberg"); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestGetSourceKnown(t *testing.T) {
	r := newTestRouter(t, &fakeFetcher{}, nil)

	w := get(r, "/api/sources/yahoo")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var status service.SourceStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.ID != domain.SourceYahoo || status.Name != "Yahoo Finance" {
		t.Errorf("unexpected source payload: %s", w.Body.String())
	}
}

func TestTriggerScrape(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: []domain.Outcome{successOutcome(domain.SourceFinviz, "SPX", "DJI")}}
	r := newTestRouter(t, fetcher, nil)

	// Warm the cache; the manual scrape must still hit the pipeline.
	get(r, "/api/markets")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/scrape", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if fetcher.count() != 2 {
		t.Errorf("manual scrape must bypass the cache, got %d fetches", fetcher.count())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "completed" || body["records"] != float64(2) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
