package repository

import (
	"context"

	"StockSentinel/internal/domain/models"
)

// QuoteHistory records collected quotes and serves recent closes back for
// target analysis.
type QuoteHistory interface {
	Record(ctx context.Context, quotes []models.PriceQuote) error
	Recent(ctx context.Context, ticker string, n int) ([]models.PricePoint, error)
}
