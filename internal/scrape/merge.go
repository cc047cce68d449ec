package scrape

import (
	"time"

	"marketglass/internal/domain"
)

// Merge folds successful outcomes into one canonical document, building the
// by-source and by-category views together in a single pass so they can
// never drift apart.
//
// Ordering is deterministic: outcomes are consumed in their given order and
// categories in domain.Categories order, so the same input sequence always
// yields byte-identical by-category listings. A duplicate
// (source, category, name) triple within one outcome is a data-quality
// defect upstream; the first occurrence wins and later ones are dropped
// silently.
//
// If every outcome failed or timed out the result is a validly shaped empty
// document — "no data available" is a state, not an error.
func Merge(outcomes []domain.Outcome) *domain.Document {
	doc := &domain.Document{
		BySource:    make(map[domain.SourceID]domain.Bucket),
		ByCategory:  make(map[domain.Category][]domain.SourcedQuote),
		GeneratedAt: time.Now().UTC(),
	}

	type dedupeKey struct {
		source   domain.SourceID
		category domain.Category
		name     string
	}
	seen := make(map[dedupeKey]struct{})

	for _, outcome := range outcomes {
		if outcome.Status != domain.OutcomeSuccess {
			continue
		}

		sourceBucket := domain.Bucket{}
		for _, cat := range domain.Categories {
			quotes := outcome.Bucket[cat]
			if len(quotes) == 0 {
				continue
			}

			kept := make([]domain.Quote, 0, len(quotes))
			for _, q := range quotes {
				key := dedupeKey{source: outcome.Source, category: cat, name: q.Name}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				kept = append(kept, q)
				doc.ByCategory[cat] = append(doc.ByCategory[cat], domain.SourcedQuote{
					Source: outcome.Source,
					Quote:  q,
				})
			}
			if len(kept) > 0 {
				sourceBucket[cat] = kept
			}
		}

		if sourceBucket.Records() > 0 {
			doc.BySource[outcome.Source] = sourceBucket
		}
	}

	return doc
}
