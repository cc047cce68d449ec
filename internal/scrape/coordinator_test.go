package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketglass/internal/domain"
	"marketglass/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

// fakeScraper is a configurable in-memory adapter.
type fakeScraper struct {
	name   domain.SourceID
	bucket domain.Bucket
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeScraper) Name() domain.SourceID         { return f.name }
func (f *fakeScraper) Categories() []domain.Category { return domain.Categories }

func (f *fakeScraper) Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.bucket, nil
}

func indexBucket(src domain.SourceID, names ...string) domain.Bucket {
	quotes := make([]domain.Quote, 0, len(names))
	for _, n := range names {
		quotes = append(quotes, domain.Quote{
			Name:     n,
			Category: domain.CategoryIndex,
			Source:   src,
			Fields:   map[string]string{"price": "1.0"},
		})
	}
	return domain.Bucket{domain.CategoryIndex: quotes}
}

func TestFetchAllEmptySources(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{name: domain.SourceFinviz, bucket: indexBucket(domain.SourceFinviz, "SPX")}
	coord := NewCoordinator(testTracer, []provider.Scraper{scraper}, time.Second)

	outcomes := coord.FetchAll(context.Background(), nil, nil)
	if len(outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(outcomes))
	}
	if scraper.calls != 0 {
		t.Error("no adapter should be invoked for an empty source set")
	}
}

func TestFetchAllPartialFailureIsolation(t *testing.T) {
	t.Parallel()

	ok := &fakeScraper{name: domain.SourceFinviz, bucket: indexBucket(domain.SourceFinviz, "SPX")}
	down := &fakeScraper{name: domain.SourceYahoo, err: &provider.AdapterError{
		Source: domain.SourceYahoo, Kind: domain.ErrorBlocked, Err: errors.New("403"),
	}}
	slow := &fakeScraper{name: domain.SourceTradingView, delay: 5 * time.Second}

	coord := NewCoordinator(testTracer, []provider.Scraper{ok, down, slow}, 50*time.Millisecond)

	sources := []domain.SourceID{domain.SourceFinviz, domain.SourceYahoo, domain.SourceTradingView}
	outcomes := coord.FetchAll(context.Background(), sources, nil)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != domain.OutcomeSuccess {
		t.Errorf("finviz should succeed: %+v", outcomes[0])
	}
	if outcomes[1].Status != domain.OutcomeFailure || outcomes[1].Kind != domain.ErrorBlocked {
		t.Errorf("yahoo should fail as blocked: %+v", outcomes[1])
	}
	if outcomes[2].Status != domain.OutcomeTimeout {
		t.Errorf("tradingview should time out: %+v", outcomes[2])
	}
}

func TestFetchAllLatencyBoundedByMaxTimeout(t *testing.T) {
	t.Parallel()

	timeout := 80 * time.Millisecond
	scrapers := []provider.Scraper{
		&fakeScraper{name: domain.SourceFinviz, delay: time.Minute},
		&fakeScraper{name: domain.SourceYahoo, delay: time.Minute},
		&fakeScraper{name: domain.SourceTradingView, delay: time.Minute},
	}
	coord := NewCoordinator(testTracer, scrapers, timeout)

	start := time.Now()
	outcomes := coord.FetchAll(context.Background(), domain.Sources, nil)
	elapsed := time.Since(start)

	for _, o := range outcomes {
		if o.Status != domain.OutcomeTimeout {
			t.Errorf("expected timeout for %s, got %s", o.Source, o.Status)
		}
	}
	// Concurrent fan-out: three timed-out sources cost one timeout, not three.
	if elapsed > 3*timeout {
		t.Errorf("fetch cycle took %s, want roughly one timeout (%s)", elapsed, timeout)
	}
}

func TestFetchAllOutcomeOrderMatchesRequest(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(testTracer, []provider.Scraper{
		&fakeScraper{name: domain.SourceFinviz, bucket: indexBucket(domain.SourceFinviz, "A")},
		&fakeScraper{name: domain.SourceYahoo, bucket: indexBucket(domain.SourceYahoo, "B")},
	}, time.Second)

	sources := []domain.SourceID{domain.SourceYahoo, domain.SourceFinviz}
	outcomes := coord.FetchAll(context.Background(), sources, nil)

	if outcomes[0].Source != domain.SourceYahoo || outcomes[1].Source != domain.SourceFinviz {
		t.Errorf("outcome order must follow request order: %+v", outcomes)
	}
}

func TestFetchAllUnknownSource(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(testTracer, nil, time.Second)
	outcomes := coord.FetchAll(context.Background(), []domain.SourceID{"bloomberg"}, nil)

	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Status != domain.OutcomeFailure || outcomes[0].Kind != domain.ErrorUnsupported {
		t.Errorf("unknown source should fail as unsupported: %+v", outcomes[0])
	}
}

func TestFetchOneTreatsAdapterDeadlineAsTimeout(t *testing.T) {
	t.Parallel()

	// The adapter notices the deadline itself and returns ctx.Err(); the
	// coordinator must still record a timeout, not a generic failure.
	slow := &fakeScraper{name: domain.SourceYahoo, delay: time.Second}
	coord := NewCoordinator(testTracer, []provider.Scraper{slow}, 20*time.Millisecond)

	outcomes := coord.FetchAll(context.Background(), []domain.SourceID{domain.SourceYahoo}, nil)
	if outcomes[0].Status != domain.OutcomeTimeout {
		t.Errorf("expected timeout, got %+v", outcomes[0])
	}
}
