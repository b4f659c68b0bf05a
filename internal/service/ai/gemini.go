package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"StockSentinel/internal/domain/models"
	applogger "StockSentinel/pkg/logger"
)

type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	log         *applogger.Logger
}

func NewGemini(ctx context.Context, cfg Config, l *applogger.Logger) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         l,
	}, nil
}

func (g *Gemini) Name() string { return ProviderGemini + ":" + g.model }

func (g *Gemini) Analyze(ctx context.Context, prompt string) models.AnalysisResult {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.temperature)),
		MaxOutputTokens: int32(g.maxTokens),
	}
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		outcome := geminiOutcome(err)
		g.log.Warn("gemini request failed",
			applogger.String("model", g.model),
			applogger.String("outcome", string(outcome)),
			applogger.Error(err),
		)
		return models.AnalysisResult{Outcome: outcome, Err: fmt.Errorf("gemini: %w", err)}
	}

	text := resp.Text()
	g.log.Debug("gemini response",
		applogger.String("model", g.model),
		applogger.Int("chars", len(text)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	if text == "" {
		return models.AnalysisResult{Outcome: models.OutcomePermanent, Err: errors.New("gemini: empty response")}
	}
	return models.AnalysisResult{Text: text, Outcome: models.OutcomeSuccess}
}

func geminiOutcome(err error) models.Outcome {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return outcomeForStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return outcomeForStatus(apiErrPtr.Code)
	}
	return outcomeForTransport(err)
}
