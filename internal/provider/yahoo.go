package provider

import (
	"context"
	"net/http"
	"time"

	"marketglass/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"
)

var yahooURLs = map[domain.Category]string{
	domain.CategoryIndex:     "https://finance.yahoo.com/markets/world-indices/",
	domain.CategoryEquity:    "https://finance.yahoo.com/markets/stocks/most-active/",
	domain.CategoryForex:     "https://finance.yahoo.com/currencies",
	domain.CategoryETF:       "https://finance.yahoo.com/markets/etfs/most-active/",
	domain.CategoryCommodity: "https://finance.yahoo.com/commodities",
}

var yahooCategories = []domain.Category{
	domain.CategoryIndex,
	domain.CategoryEquity,
	domain.CategoryForex,
	domain.CategoryETF,
	domain.CategoryCommodity,
}

// yahooRowCaps bounds the payload per category.
var yahooRowCaps = map[domain.Category]int{
	domain.CategoryIndex:     30,
	domain.CategoryEquity:    50,
	domain.CategoryForex:     30,
	domain.CategoryETF:       30,
	domain.CategoryCommodity: 20,
}

// YahooScraper scrapes quote tables from finance.yahoo.com.
type YahooScraper struct {
	client  *http.Client
	urls    map[domain.Category]string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewYahooScraper(tracer trace.Tracer) *YahooScraper {
	return &YahooScraper{
		client:  &http.Client{Timeout: 30 * time.Second},
		urls:    yahooURLs,
		tracer:  tracer,
		limiter: NewRateLimiter(30, 2*time.Second),
	}
}

func (s *YahooScraper) Name() domain.SourceID { return domain.SourceYahoo }

func (s *YahooScraper) Categories() []domain.Category { return yahooCategories }

func (s *YahooScraper) Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error) {
	ctx, span := s.tracer.Start(ctx, "yahoo.fetch")
	defer span.End()

	wanted := requestedIn(yahooCategories, categories)
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

// parseTable reads Yahoo's quote table. All category pages share one layout:
// symbol, name, price, change, change percent, then volume where present.
func (s *YahooScraper) parseTable(doc *goquery.Document, cat domain.Category) []domain.Quote {
	table := doc.Find(`table[data-test="quote-table"]`).First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	if table.Length() == 0 {
		return nil
	}

	maxRows := yahooRowCaps[cat]

	var quotes []domain.Quote
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 || len(quotes) >= maxRows {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		fields := map[string]string{
			"price":      cellText(cells, 1),
			"change":     cellText(cells, 2),
			"change_pct": cellText(cells, 3),
		}
		if cells.Length() >= 5 {
			fields["volume"] = cellText(cells, 4)
		}
		if cells.Length() >= 6 && cat == domain.CategoryEquity {
			fields["market_cap"] = cellText(cells, 5)
		}

		name := cellText(cells, 0)
		if name == "" {
			return
		}
		quotes = append(quotes, domain.Quote{
			Name:     name,
			Category: cat,
			Source:   s.Name(),
			Fields:   fields,
		})
	})
	return quotes
}
