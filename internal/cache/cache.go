package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"marketglass/internal/domain"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Loader produces a fresh document for a cache key. It typically runs one
// coordinated fetch cycle plus a merge.
type Loader func(ctx context.Context) (*domain.Document, error)

// Options control a single GetOrFetch call.
type Options struct {
	// AllowStale serves an expired entry immediately and kicks off exactly
	// one background refresh instead of making the caller wait.
	AllowStale bool
	// Bypass forces a fetch regardless of entry freshness. Still
	// single-flighted: concurrent bypassers share one loader run.
	Bypass bool
}

type entry struct {
	doc      *domain.Document
	storedAt time.Time
}

// Store is a cache-aside front for the fetch pipeline. Entries live in
// process memory with a TTL; the optional snapshot tier (Redis) is written
// through on every successful load and consulted on a cold in-memory miss,
// so short-lived instances can start warm.
//
// The store guarantees at most one in-flight load per key no matter how
// many callers arrive at once, and replaces values atomically: readers see
// either the old document or the new one, never a partial state. A failed
// load caches nothing; the entry keeps whatever state it had before.
//
// Entries are never evicted by size — the key space is tens of
// source × category combinations — only freshness applies.
type Store struct {
	tracer    trace.Tracer
	ttl       time.Duration
	snapshots SnapshotStore

	mu      sync.RWMutex
	entries map[string]*entry

	group singleflight.Group
}

// New creates a store. snapshots may be nil to run memory-only.
func New(tracer trace.Tracer, ttl time.Duration, snapshots SnapshotStore) *Store {
	return &Store{
		tracer:    tracer,
		ttl:       ttl,
		snapshots: snapshots,
		entries:   make(map[string]*entry),
	}
}

// GetOrFetch returns the document for key, loading it if the cached entry
// is absent or stale. The second return value reports whether the document
// came from cache.
func (s *Store) GetOrFetch(ctx context.Context, key string, loader Loader, opts Options) (*domain.Document, bool, error) {
	ctx, span := s.tracer.Start(ctx, "cache.get-or-fetch")
	defer span.End()

	if !opts.Bypass {
		if doc, fresh := s.lookup(key); doc != nil {
			if fresh {
				return doc, true, nil
			}
			if opts.AllowStale {
				s.refreshAsync(ctx, key, loader)
				return doc, true, nil
			}
		}
	}

	doc, err := s.fetch(ctx, key, loader, opts.Bypass)
	if err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

// Len reports the number of cached entries, fresh or stale.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Invalidate drops the entry for key, if any.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// lookup returns the current document for key and whether it is still
// within its TTL. A nil document means the key is absent.
func (s *Store) lookup(key string) (*domain.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.doc, time.Since(e.storedAt) < s.ttl
}

func (s *Store) put(key string, doc *domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{doc: doc, storedAt: time.Now()}
}

// fetch runs the loader under single-flight. Waiters that queued behind a
// completed load re-check freshness first so a burst of callers resolves
// with one upstream cycle.
func (s *Store) fetch(ctx context.Context, key string, loader Loader, force bool) (*domain.Document, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		if !force {
			if doc, fresh := s.lookup(key); fresh {
				return doc, nil
			}
			if s.snapshots != nil {
				doc, err := s.snapshots.Get(ctx, key)
				if err != nil {
					log.Printf("cache snapshot read error: %v", err)
				} else if doc != nil {
					s.put(key, doc)
					return doc, nil
				}
			}
		}

		doc, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		s.put(key, doc)
		if s.snapshots != nil {
			if err := s.snapshots.Set(ctx, key, doc, s.ttl); err != nil {
				log.Printf("cache snapshot write error: %v", err)
			}
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Document), nil
}

// refreshAsync starts a background reload for a stale key. Coalesced with
// any load already in flight, so concurrent stale readers trigger exactly
// one refresh between them.
func (s *Store) refreshAsync(ctx context.Context, key string, loader Loader) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.fetch(bg, key, loader, false); err != nil {
			log.Printf("stale refresh for %q failed: %v", key, err)
		}
	}()
}
