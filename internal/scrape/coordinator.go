package scrape

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"marketglass/internal/domain"
	"marketglass/internal/provider"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator fans one fetch cycle out across source adapters. Each adapter
// runs concurrently under its own deadline; one slow or failing source never
// blocks or poisons the others, so total latency is bounded by the single
// per-source timeout rather than their sum.
type Coordinator struct {
	tracer   trace.Tracer
	scrapers map[domain.SourceID]provider.Scraper
	timeout  time.Duration
}

func NewCoordinator(tracer trace.Tracer, scrapers []provider.Scraper, timeout time.Duration) *Coordinator {
	byName := make(map[domain.SourceID]provider.Scraper, len(scrapers))
	for _, s := range scrapers {
		byName[s.Name()] = s
	}
	return &Coordinator{tracer: tracer, scrapers: byName, timeout: timeout}
}

// FetchAll runs one adapter call per requested source and collects every
// outcome, successes and failures alike. Outcomes are positionally ordered
// by the requested source order. An empty source list returns immediately
// with no network activity.
func (c *Coordinator) FetchAll(ctx context.Context, sources []domain.SourceID, categories []domain.Category) []domain.Outcome {
	ctx, span := c.tracer.Start(ctx, "coordinator.fetch-all")
	defer span.End()
	span.SetAttributes(attribute.Int("sources", len(sources)))

	outcomes := make([]domain.Outcome, len(sources))
	if len(sources) == 0 {
		return outcomes
	}

	var wg sync.WaitGroup
	for i, src := range sources {
		scraper, ok := c.scrapers[src]
		if !ok {
			outcomes[i] = domain.Outcome{
				Source: src,
				Status: domain.OutcomeFailure,
				Kind:   domain.ErrorUnsupported,
				Err:    errUnknownSource,
			}
			continue
		}

		wg.Add(1)
		go func(i int, scraper provider.Scraper) {
			defer wg.Done()
			outcomes[i] = c.fetchOne(ctx, scraper, categories)
		}(i, scraper)
	}
	wg.Wait()

	return outcomes
}

var errUnknownSource = errors.New("unknown source")

// fetchOne wraps a single adapter call with the per-source deadline. A call
// that outlives the deadline is abandoned: its goroutine is left to drain
// into the buffered channel and whatever it eventually produces is dropped.
func (c *Coordinator) fetchOne(ctx context.Context, scraper provider.Scraper, categories []domain.Category) domain.Outcome {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		bucket domain.Bucket
		err    error
	}
	done := make(chan result, 1)
	go func() {
		bucket, err := scraper.Fetch(fetchCtx, categories)
		done <- result{bucket: bucket, err: err}
	}()

	src := scraper.Name()
	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return domain.Outcome{Source: src, Status: domain.OutcomeTimeout, Err: r.err}
			}
			log.Printf("source %s failed: %v", src, r.err)
			return domain.Outcome{
				Source: src,
				Status: domain.OutcomeFailure,
				Kind:   provider.Classify(r.err),
				Err:    r.err,
			}
		}
		return domain.Outcome{Source: src, Status: domain.OutcomeSuccess, Bucket: r.bucket}
	case <-fetchCtx.Done():
		log.Printf("source %s abandoned after %s", src, c.timeout)
		return domain.Outcome{Source: src, Status: domain.OutcomeTimeout, Err: fetchCtx.Err()}
	}
}
