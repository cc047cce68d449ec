package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"marketglass/internal/domain"
	"marketglass/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

type stubScraper struct {
	bucket domain.Bucket
	err    error
}

func (s stubScraper) Name() domain.SourceID         { return domain.SourceFinviz }
func (s stubScraper) Categories() []domain.Category { return []domain.Category{domain.CategoryIndex} }
func (s stubScraper) Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error) {
	return s.bucket, s.err
}

func TestParseArgs(t *testing.T) {
	sources, categories, err := parseArgs("finviz, yahoo", "index")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 2 || sources[0] != domain.SourceFinviz || sources[1] != domain.SourceYahoo {
		t.Errorf("unexpected sources: %v", sources)
	}
	if len(categories) != 1 || categories[0] != domain.CategoryIndex {
		t.Errorf("unexpected categories: %v", categories)
	}

	sources, categories, err = parseArgs("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 3 || categories != nil {
		t.Errorf("empty flags must mean all sources and categories: %v %v", sources, categories)
	}

	if _, _, err := parseArgs("bloomberg", ""); err == nil {
		t.Error("unknown source must be rejected")
	}
	if _, _, err := parseArgs("", "bonds"); err == nil {
		t.Error("unknown category must be rejected")
	}
}

func TestMainPrintsDocument(t *testing.T) {
	origArgs := os.Args
	origStdout := stdout
	origLoadEnv := loadEnvFunc
	origExit := exitFunc
	origNewScrapers := newScrapers
	t.Cleanup(func() {
		os.Args = origArgs
		stdout = origStdout
		loadEnvFunc = origLoadEnv
		exitFunc = origExit
		newScrapers = origNewScrapers
	})

	os.Args = []string{"fetch", "-sources", "finviz", "-categories", "index"}
	var buf bytes.Buffer
	stdout = &buf
	loadEnvFunc = func(...string) error { return nil }
	exitCode := -1
	exitFunc = func(code int) { exitCode = code }
	newScrapers = func(tracer trace.Tracer) []provider.Scraper {
		return []provider.Scraper{stubScraper{bucket: domain.Bucket{
			domain.CategoryIndex: {{Name: "SPX", Category: domain.CategoryIndex, Source: domain.SourceFinviz}},
		}}}
	}

	main()

	if exitCode != -1 {
		t.Fatalf("successful run must not call exit, got code %d", exitCode)
	}

	var doc domain.Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not a JSON document: %v\n%s", err, buf.String())
	}
	if len(doc.ByCategory[domain.CategoryIndex]) != 1 {
		t.Errorf("unexpected document: %s", buf.String())
	}
}
