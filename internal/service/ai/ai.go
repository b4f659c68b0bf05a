// Package ai implements the analysis service contract over hosted LLM APIs.
// Every call comes back as a tagged outcome; callers never inspect SDK error
// types.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/service"
	applogger "StockSentinel/pkg/logger"
)

const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"

	DefaultClaudeModel = "claude-3-haiku-20240307"
	DefaultGeminiModel = "gemini-2.0-flash"
)

var ErrNoAPIKey = errors.New("ai api key not configured")

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New builds the analyzer for cfg.Provider.
func New(ctx context.Context, cfg Config, l *applogger.Logger) (service.Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	switch cfg.Provider {
	case "", ProviderClaude:
		return NewClaude(cfg, l), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg, l)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// Disabled answers every request with a permanent failure so generation
// falls straight back to stored targets.
type Disabled struct {
	Reason string
}

func (d Disabled) Name() string { return "disabled" }

func (d Disabled) Analyze(context.Context, string) models.AnalysisResult {
	return models.AnalysisResult{Outcome: models.OutcomePermanent, Err: errors.New(d.Reason)}
}

// outcomeForStatus maps an HTTP status from a provider onto an outcome.
// 529 is Anthropic's overloaded status.
func outcomeForStatus(code int) models.Outcome {
	switch {
	case code == 408, code == 409, code == 429, code >= 500:
		return models.OutcomeTransient
	case code >= 400:
		return models.OutcomePermanent
	}
	return models.OutcomeTransient
}

// outcomeForTransport covers errors that never reached the provider.
func outcomeForTransport(err error) models.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTransient
	}
	if errors.Is(err, context.Canceled) {
		return models.OutcomePermanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.OutcomeTransient
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "rate limit", "overloaded", "unavailable", "timeout", "connection reset"} {
		if strings.Contains(msg, s) {
			return models.OutcomeTransient
		}
	}
	return models.OutcomePermanent
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
