// Command fetch runs one scrape cycle and prints the merged document as
// JSON. Useful for checking source health and selectors without standing up
// the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"marketglass/internal/domain"
	"marketglass/internal/provider"
	"marketglass/internal/scrape"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var stdout io.Writer = os.Stdout

var (
	loadEnvFunc = godotenv.Load
	exitFunc    = os.Exit
	newScrapers = func(tracer trace.Tracer) []provider.Scraper {
		return []provider.Scraper{
			provider.NewFinvizScraper(tracer),
			provider.NewYahooScraper(tracer),
			provider.NewTradingViewScraper(tracer),
		}
	}
)

func main() {
	loadEnvFunc()

	var (
		sourcesFlag    = flag.String("sources", "", "comma-separated source ids (default: all)")
		categoriesFlag = flag.String("categories", "", "comma-separated categories (default: all)")
		timeoutFlag    = flag.Duration("timeout", 12*time.Second, "per-source timeout")
		prettyFlag     = flag.Bool("pretty", false, "indent JSON output")
	)
	flag.Parse()

	sources, categories, err := parseArgs(*sourcesFlag, *categoriesFlag)
	if err != nil {
		log.Println(err)
		exitFunc(2)
		return
	}

	tracer := trace.NewNoopTracerProvider().Tracer("fetch")
	coordinator := scrape.NewCoordinator(tracer, newScrapers(tracer), *timeoutFlag)

	outcomes := coordinator.FetchAll(context.Background(), sources, categories)
	for _, o := range outcomes {
		if o.Status != domain.OutcomeSuccess {
			log.Printf("%s: %s (%s)", o.Source, o.Status, o.Kind)
		}
	}

	doc := scrape.Merge(outcomes)

	enc := json.NewEncoder(stdout)
	if *prettyFlag {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		log.Printf("encode document: %v", err)
		exitFunc(1)
		return
	}

	if doc.Empty() {
		exitFunc(1)
	}
}

// parseArgs validates the source and category flags. Empty means all.
func parseArgs(rawSources, rawCategories string) ([]domain.SourceID, []domain.Category, error) {
	var sources []domain.SourceID
	for _, part := range splitCSV(rawSources) {
		id := domain.SourceID(part)
		if !id.IsValid() {
			return nil, nil, fmt.Errorf("unknown source %q (known: %v)", part, domain.Sources)
		}
		sources = append(sources, id)
	}
	if len(sources) == 0 {
		sources = domain.Sources
	}

	var categories []domain.Category
	for _, part := range splitCSV(rawCategories) {
		c := domain.Category(part)
		if !c.IsValid() {
			return nil, nil, fmt.Errorf("unknown category %q (known: %v)", part, domain.Categories)
		}
		categories = append(categories, c)
	}
	return sources, categories, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
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
