package domain

import "time"

// Category classifies a quoted instrument.
type Category string

const (
	CategoryIndex     Category = "index"
	CategoryEquity    Category = "equity"
	CategoryCrypto    Category = "crypto"
	CategoryForex     Category = "forex"
	CategoryETF       Category = "etf"
	CategoryCommodity Category = "commodity"
)

// Categories lists every category in canonical order. Merge output and
// summaries iterate this slice so results are stable across runs.
var Categories = []Category{
	CategoryIndex,
	CategoryEquity,
	CategoryCrypto,
	CategoryForex,
	CategoryETF,
	CategoryCommodity,
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// SourceID identifies one upstream data provider.
type SourceID string

const (
	SourceFinviz      SourceID = "finviz"
	SourceYahoo       SourceID = "yahoo"
	SourceTradingView SourceID = "tradingview"
)

// Sources lists every known source in canonical order.
var Sources = []SourceID{SourceFinviz, SourceYahoo, SourceTradingView}

func (s SourceID) IsValid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Quote is one data point for one instrument as produced by a source
// adapter. Fields carries the source-specific key set (price, change,
// change_pct, high, low, volume, rating, ...). Immutable once produced.
type Quote struct {
	Name     string            `json:"name"`
	Category Category          `json:"category"`
	Fields   map[string]string `json:"fields"`
	Source   SourceID          `json:"source"`
}

// Bucket groups quotes by category for a single source.
type Bucket map[Category][]Quote

// Records returns the total number of quotes across all categories.
func (b Bucket) Records() int {
	n := 0
	for _, quotes := range b {
		n += len(quotes)
	}
	return n
}

// SourcedQuote pairs a quote with the source it came from, used in the
// document's by-category view.
type SourcedQuote struct {
	Source SourceID `json:"source"`
	Quote  Quote    `json:"quote"`
}

// Document is the canonical merged result served to callers. BySource and
// ByCategory are two views over the same record set, built together in one
// pass and never mutated afterwards.
type Document struct {
	BySource    map[SourceID]Bucket         `json:"by_source"`
	ByCategory  map[Category][]SourcedQuote `json:"by_category"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// Empty reports whether the document carries no data at all. An empty
// document is a legitimate "no data available" state, not an error.
func (d *Document) Empty() bool {
	return d == nil || len(d.BySource) == 0
}

// ErrorKind classifies why a source adapter failed.
type ErrorKind string

const (
	ErrorNetwork       ErrorKind = "network"
	ErrorParseMismatch ErrorKind = "parse_mismatch"
	ErrorBlocked       ErrorKind = "blocked"
	ErrorUnsupported   ErrorKind = "unsupported"
)

// OutcomeStatus tags the result of one adapter invocation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
	OutcomeTimeout OutcomeStatus = "timeout"
)

// Outcome is the per-source result of one fetch cycle. Only success
// outcomes carry a bucket; failed or timed-out sources are simply absent
// from the merged document.
type Outcome struct {
	Source SourceID
	Status OutcomeStatus
	Bucket Bucket
	Kind   ErrorKind
	Err    error
}
