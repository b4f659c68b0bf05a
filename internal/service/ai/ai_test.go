package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/domain/models"
	applogger "StockSentinel/pkg/logger"
)

func claudeAgainst(t *testing.T, h http.HandlerFunc) *Claude {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := Config{APIKey: "test-key", MaxTokens: 500, Temperature: 0.3}
	return NewClaude(cfg, applogger.Nop(), option.WithBaseURL(srv.URL))
}

func TestClaudeAnalyzeSuccess(t *testing.T) {
	c := claudeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultClaudeModel, body["model"])
		assert.EqualValues(t, 500, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-haiku-20240307",
			"content":[{"type":"text","text":"BUY TARGET: $45\nSELL TARGET: $62"}],
			"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":8}}`))
	})

	res := c.Analyze(context.Background(), "analyze SNY")

	require.Equal(t, models.OutcomeSuccess, res.Outcome, "%v", res.Err)
	assert.Contains(t, res.Text, "SELL TARGET: $62")
}

func TestClaudeAnalyzeKeepsOnlyTextBlocks(t *testing.T) {
	c := claudeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"claude-3-haiku-20240307",
			"content":[{"type":"thinking","thinking":"weighing analyst range","signature":"sig"},
				{"type":"text","text":"BUY TARGET: $26"}],
			"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":8}}`))
	})

	res := c.Analyze(context.Background(), "analyze JD")

	require.Equal(t, models.OutcomeSuccess, res.Outcome, "%v", res.Err)
	assert.Equal(t, "BUY TARGET: $26", res.Text)
}

func TestClaudeAnalyzeErrorsAreTagged(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		errType string
		want    models.Outcome
	}{
		{"rate limited", 429, "rate_limit_error", models.OutcomeTransient},
		{"overloaded", 529, "overloaded_error", models.OutcomeTransient},
		{"server error", 500, "api_error", models.OutcomeTransient},
		{"bad request", 400, "invalid_request_error", models.OutcomePermanent},
		{"unauthorized", 401, "authentication_error", models.OutcomePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := claudeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"` + tt.errType + `","message":"nope"}}`))
			})

			res := c.Analyze(context.Background(), "analyze SNY")

			assert.Equal(t, tt.want, res.Outcome)
			assert.Error(t, res.Err)
			assert.Equal(t, 1, calls, "the SDK must not retry on its own")
		})
	}
}

func TestOutcomeForStatus(t *testing.T) {
	assert.Equal(t, models.OutcomeTransient, outcomeForStatus(429))
	assert.Equal(t, models.OutcomeTransient, outcomeForStatus(503))
	assert.Equal(t, models.OutcomeTransient, outcomeForStatus(408))
	assert.Equal(t, models.OutcomePermanent, outcomeForStatus(404))
	assert.Equal(t, models.OutcomePermanent, outcomeForStatus(403))
}

func TestOutcomeForTransport(t *testing.T) {
	assert.Equal(t, models.OutcomeTransient, outcomeForTransport(context.DeadlineExceeded))
	assert.Equal(t, models.OutcomePermanent, outcomeForTransport(context.Canceled))
	assert.Equal(t, models.OutcomeTransient, outcomeForTransport(errors.New("Error 429: Resource exhausted, rate limit")))
	assert.Equal(t, models.OutcomePermanent, outcomeForTransport(errors.New("invalid argument")))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderClaude}, applogger.Nop())
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(context.Background(), Config{Provider: "openai", APIKey: "k"}, applogger.Nop())
	assert.Error(t, err)

	a, err := New(context.Background(), Config{APIKey: "k"}, applogger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "claude:"+DefaultClaudeModel, a.Name())
}

func TestDisabledIsPermanent(t *testing.T) {
	res := Disabled{Reason: "no key"}.Analyze(context.Background(), "x")
	assert.Equal(t, models.OutcomePermanent, res.Outcome)
	assert.EqualError(t, res.Err, "no key")
}
