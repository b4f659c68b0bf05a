package repository

import (
	"context"
	"errors"

	"StockSentinel/internal/domain/models"
)

var ErrTargetNotFound = errors.New("target not found")

// PriceSource exposes both the batched and single-ticker calling conventions
// of a quote provider. Every call returns a tagged outcome.
type PriceSource interface {
	Name() string
	BulkQuotes(ctx context.Context, tickers []string) models.BulkResult
	Quote(ctx context.Context, ticker string) models.QuoteResult
	LastClose(ctx context.Context, ticker string) models.QuoteResult
}

// TargetRepository is the dynamic persisted target backing. It may be
// unreachable; callers must degrade.
type TargetRepository interface {
	Get(ctx context.Context, ticker string) (models.Target, error)
	GetMany(ctx context.Context, tickers []string) (map[string]models.Target, error)
	Put(ctx context.Context, ticker string, target models.Target) error
}

// AnalystSource is one provider of analyst and fundamentals data.
type AnalystSource interface {
	Name() string
	// Cost orders sources cheapest first; scrapers report a high cost.
	Cost() int
	Fetch(ctx context.Context, ticker string) (models.AnalystDatum, error)
}

// ReportPublisher is the notification dispatcher contract.
type ReportPublisher interface {
	PublishCycle(ctx context.Context, report models.CycleReport) error
	PublishSummary(ctx context.Context, summary models.RegenerationSummary) error
	Close() error
}

type Metrics interface {
	RecordCollection(status, source string)
	RecordSignal(kind string)
	RecordGeneration(outcome string)
	RecordTargetResolution(tier string)
	RecordError(kind string)
	RecordLastPrice(ticker string, price float64)
	RecordLatency(op string, seconds float64)
}
