package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"StockSentinel/internal/domain/models"
	applogger "StockSentinel/pkg/logger"
)

type Claude struct {
	messages    anthropic.MessageService
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	log         *applogger.Logger
}

func NewClaude(cfg Config, l *applogger.Logger, opts ...option.RequestOption) *Claude {
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}
	// Retries are owned by the generator.
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}, opts...)
	client := anthropic.NewClient(opts...)
	return &Claude{
		messages:    client.Messages,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         l,
	}
}

func (c *Claude) Name() string { return ProviderClaude + ":" + c.model }

func (c *Claude) Analyze(ctx context.Context, prompt string) models.AnalysisResult {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	start := time.Now()
	resp, err := c.messages.New(ctx, params)
	if err != nil {
		outcome := claudeOutcome(err)
		c.log.Warn("claude request failed",
			applogger.String("model", c.model),
			applogger.String("outcome", string(outcome)),
			applogger.Error(err),
		)
		return models.AnalysisResult{Outcome: outcome, Err: fmt.Errorf("claude: %w", err)}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	c.log.Debug("claude response",
		applogger.String("model", c.model),
		applogger.Int("chars", text.Len()),
		applogger.Duration("took_ms", time.Since(start)),
	)
	if text.Len() == 0 {
		return models.AnalysisResult{Outcome: models.OutcomePermanent, Err: errors.New("claude: empty response")}
	}
	return models.AnalysisResult{Text: text.String(), Outcome: models.OutcomeSuccess}
}

func claudeOutcome(err error) models.Outcome {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return outcomeForStatus(apiErr.StatusCode)
	}
	return outcomeForTransport(err)
}
