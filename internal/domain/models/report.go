package models

import "time"

// HoldingStatus is one row of the portfolio snapshot sent with every cycle.
type HoldingStatus struct {
	Ticker  string           `json:"ticker"`
	Status  CollectionStatus `json:"status"`
	Price   float64          `json:"price,omitempty"`
	Source  QuoteSource      `json:"source"`
	Signal  SignalKind       `json:"signal,omitempty"`
	Target  *Target          `json:"target,omitempty"`
	Tier    string           `json:"target_tier,omitempty"`
	Failure string           `json:"failure,omitempty"`
}

// FailedTicker explains why a ticker produced no signal.
type FailedTicker struct {
	Ticker string `json:"ticker"`
	Stage  string `json:"stage"` // "collect" or "targets"
	Reason string `json:"reason"`
}

// CycleReport is the payload handed to the notification dispatcher after a
// daily monitoring cycle.
type CycleReport struct {
	CycleID    string          `json:"cycle_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Ran        bool            `json:"ran"`
	GateReason string          `json:"gate_reason"`
	Signals    []Signal        `json:"signals"`
	Portfolio  []HoldingStatus `json:"portfolio"`
	Failed     []FailedTicker  `json:"failed,omitempty"`
	Published  bool            `json:"published"`
	PublishErr string          `json:"publish_error,omitempty"`
}

// Alerts returns the actionable subset of Signals, preserving order.
func (r CycleReport) Alerts() []Signal {
	out := make([]Signal, 0, len(r.Signals))
	for _, s := range r.Signals {
		if s.Kind.Actionable() {
			out = append(out, s)
		}
	}
	return out
}

// TickerRegeneration is the per-ticker line of a monthly summary.
type TickerRegeneration struct {
	Ticker     string            `json:"ticker"`
	Outcome    GenerationOutcome `json:"outcome,omitempty"`
	Skipped    string            `json:"skipped,omitempty"`
	Target     *Target           `json:"target,omitempty"`
	Quality    DataQuality       `json:"quality,omitempty"`
	WriteError string            `json:"write_error,omitempty"`
}

// RegenerationSummary is published after a monthly target regeneration.
type RegenerationSummary struct {
	RunID             string               `json:"run_id"`
	StartedAt         time.Time            `json:"started_at"`
	FinishedAt        time.Time            `json:"finished_at"`
	Tickers           []TickerRegeneration `json:"tickers"`
	Updated           int                  `json:"updated"`
	FellBack          int                  `json:"fell_back"`
	Skipped           int                  `json:"skipped"`
	WriteFailures     int                  `json:"write_failures"`
	AverageConfidence float64              `json:"average_confidence"`
	EstimatedCost     float64              `json:"estimated_cost"`
}
