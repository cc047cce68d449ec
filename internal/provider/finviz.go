package provider

import (
	"context"
	"net/http"
	"time"

	"marketglass/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"
)

var finvizURLs = map[domain.Category]string{
	domain.CategoryIndex:  "https://finviz.com/screener.ashx?v=111&s=ta_topgainers&f=idx_sp500",
	domain.CategoryEquity: "https://finviz.com/screener.ashx?v=111&s=ta_topgainers&f=cap_large",
	domain.CategoryForex:  "https://finviz.com/forex.ashx",
}

var finvizCategories = []domain.Category{
	domain.CategoryIndex,
	domain.CategoryEquity,
	domain.CategoryForex,
}

// FinvizScraper scrapes screener and forex tables from finviz.com.
type FinvizScraper struct {
	client  *http.Client
	urls    map[domain.Category]string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewFinvizScraper creates the adapter with a courtesy limit of 30 requests
// per minute against the site.
func NewFinvizScraper(tracer trace.Tracer) *FinvizScraper {
	return &FinvizScraper{
		client:  &http.Client{Timeout: 30 * time.Second},
		urls:    finvizURLs,
		tracer:  tracer,
		limiter: NewRateLimiter(30, 2*time.Second),
	}
}

func (s *FinvizScraper) Name() domain.SourceID { return domain.SourceFinviz }

func (s *FinvizScraper) Categories() []domain.Category { return finvizCategories }

// Fetch scrapes the requested categories. Categories that fail to parse are
// skipped; the call errors only when nothing could be scraped at all.
func (s *FinvizScraper) Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error) {
	ctx, span := s.tracer.Start(ctx, "finviz.fetch")
	defer span.End()

	wanted := requestedIn(finvizCategories, categories)
	if len(wanted) == 0 {
		return nil, &AdapterError{Source: s.Name(), Kind: domain.ErrorUnsupported, Err: errNoSupportedCategories}
	}

	bucket := domain.Bucket{}
	var firstErr error
	for _, cat := range wanted {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &AdapterError{Source: s.Name(), Kind: domain.ErrorNetwork, Err: err}
		}
		doc, err := fetchHTML(ctx, s.client, s.Name(), s.urls[cat])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		quotes := s.parseTable(doc, cat)
		if len(quotes) == 0 {
			if firstErr == nil {
				firstErr = &AdapterError{Source: s.Name(), Kind: domain.ErrorParseMismatch, Err: errTableNotFound}
			}
			continue
		}
		bucket[cat] = quotes
	}

	if bucket.Records() == 0 {
		return nil, firstErr
	}
	return bucket, nil
}

// parseTable reads the finviz "table-light" layout. The forex table leads
// with the pair name; screener tables lead with a row counter column.
func (s *FinvizScraper) parseTable(doc *goquery.Document, cat domain.Category) []domain.Quote {
	table := doc.Find("table.table-light").First()
	if table.Length() == 0 {
		return nil
	}

	maxRows := 50
	if cat == domain.CategoryIndex {
		maxRows = 30
	}

	var quotes []domain.Quote
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 || len(quotes) >= maxRows {
			return
		}
		cells := row.Find("td")

		var q domain.Quote
		switch cat {
		case domain.CategoryForex:
			if cells.Length() < 6 {
				return
			}
			q = domain.Quote{
				Name:     cellText(cells, 0),
				Category: cat,
				Source:   s.Name(),
				Fields: map[string]string{
					"price":      cellText(cells, 1),
					"change":     cellText(cells, 2),
					"change_pct": cellText(cells, 3),
					"high":       cellText(cells, 4),
					"low":        cellText(cells, 5),
				},
			}
		default:
			if cells.Length() < 8 {
				return
			}
			q = domain.Quote{
				Name:     cellText(cells, 1),
				Category: cat,
				Source:   s.Name(),
				Fields: map[string]string{
					"price":      cellText(cells, 2),
					"change":     cellText(cells, 3),
					"change_pct": cellText(cells, 4),
					"volume":     cellText(cells, 5),
					"market_cap": cellText(cells, 6),
					"pe_ratio":   cellText(cells, 7),
				},
			}
		}
		if q.Name == "" {
			return
		}
		quotes = append(quotes, q)
	})
	return quotes
}
