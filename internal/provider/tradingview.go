package provider

import (
	"context"
	"net/http"
	"time"

	"marketglass/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"
)

var tradingViewURLs = map[domain.Category]string{
	domain.CategoryIndex:  "https://www.tradingview.com/markets/indices/quotes-all/",
	domain.CategoryEquity: "https://www.tradingview.com/markets/stocks-usa/market-movers-large-cap/",
	domain.CategoryCrypto: "https://www.tradingview.com/markets/cryptocurrencies/prices-all/",
	domain.CategoryForex:  "https://www.tradingview.com/markets/currencies/rates-all/",
}

var tradingViewCategories = []domain.Category{
	domain.CategoryIndex,
	domain.CategoryEquity,
	domain.CategoryCrypto,
	domain.CategoryForex,
}

const tradingViewRowCap = 30

// TradingViewScraper scrapes market tables from tradingview.com. The only
// source here that quotes crypto.
type TradingViewScraper struct {
	client  *http.Client
	urls    map[domain.Category]string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewTradingViewScraper(tracer trace.Tracer) *TradingViewScraper {
	return &TradingViewScraper{
		client:  &http.Client{Timeout: 30 * time.Second},
		urls:    tradingViewURLs,
		tracer:  tracer,
		limiter: NewRateLimiter(20, 3*time.Second),
	}
}

func (s *TradingViewScraper) Name() domain.SourceID { return domain.SourceTradingView }

func (s *TradingViewScraper) Categories() []domain.Category { return tradingViewCategories }

func (s *TradingViewScraper) Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error) {
	ctx, span := s.tracer.Start(ctx, "tradingview.fetch")
	defer span.End()

	wanted := requestedIn(tradingViewCategories, categories)
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

// parseTable reads the tv-data-table layout: name, price, change, change
// percent in the leading columns for every market page.
func (s *TradingViewScraper) parseTable(doc *goquery.Document, cat domain.Category) []domain.Quote {
	table := doc.Find("table.tv-data-table").First()
	if table.Length() == 0 {
		table = doc.Find("table.table").First()
	}
	if table.Length() == 0 {
		return nil
	}

	var quotes []domain.Quote
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 || len(quotes) >= tradingViewRowCap {
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
			if cat == domain.CategoryCrypto {
				fields["market_cap"] = cellText(cells, 4)
			} else {
				fields["high"] = cellText(cells, 4)
			}
		}
		if cells.Length() >= 6 && cat != domain.CategoryCrypto {
			fields["low"] = cellText(cells, 5)
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
