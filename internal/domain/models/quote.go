package models

import (
	"math"
	"time"
)

// QuoteSource identifies the collection tier that produced a quote.
type QuoteSource string

const (
	SourceBulk    QuoteSource = "bulk"
	SourceSingle  QuoteSource = "single"
	SourceHistory QuoteSource = "history"
	SourceNone    QuoteSource = "none"
)

type PriceQuote struct {
	Ticker string      `json:"ticker"`
	Price  float64     `json:"price"`
	AsOf   time.Time   `json:"as_of"`
	Source QuoteSource `json:"source"`
	Stale  bool        `json:"stale"`
}

// Valid reports whether the quote carries a usable positive price.
func (q PriceQuote) Valid() bool {
	return q.Ticker != "" && q.Price > 0 && !math.IsNaN(q.Price) && !math.IsInf(q.Price, 0)
}

// PricePoint is one historical close.
type PricePoint struct {
	Ticker string    `json:"ticker"`
	Close  float64   `json:"close"`
	At     time.Time `json:"at"`
}

type CollectionStatus string

const (
	StatusOK       CollectionStatus = "OK"
	StatusDegraded CollectionStatus = "DEGRADED"
	StatusFailed   CollectionStatus = "FAILED"
)

// CollectionOutcome is the per-ticker result of a price collection run.
type CollectionOutcome struct {
	Ticker   string           `json:"ticker"`
	Status   CollectionStatus `json:"status"`
	Quote    *PriceQuote      `json:"quote,omitempty"`
	Error    string           `json:"error,omitempty"`
	Source   QuoteSource      `json:"source"`
	Attempts int              `json:"attempts"`
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
