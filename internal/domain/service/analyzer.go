package service

import (
	"context"

	"StockSentinel/internal/domain/models"
)

// Analyzer submits an analysis prompt to an AI service.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, prompt string) models.AnalysisResult
}
