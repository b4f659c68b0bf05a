package models

import (
	"errors"
	"fmt"
	"time"
)

type TargetSource string

const (
	TargetSourceAI     TargetSource = "ai"
	TargetSourceStatic TargetSource = "static-fallback"
)

const (
	MinConfidence = 1
	MaxConfidence = 10
)

var (
	ErrInvertedTargets   = errors.New("buy price must be below sell price")
	ErrConfidenceRange   = fmt.Errorf("confidence must be within [%d,%d]", MinConfidence, MaxConfidence)
	ErrNonPositiveTarget = errors.New("target prices must be positive")
)

type Target struct {
	Ticker      string       `json:"ticker"`
	BuyPrice    float64      `json:"buy_price"`
	SellPrice   float64      `json:"sell_price"`
	Confidence  int          `json:"confidence"`
	Catalysts   []string     `json:"catalysts"`
	Risks       []string     `json:"risks"`
	GeneratedAt time.Time    `json:"generated_at"`
	Source      TargetSource `json:"source"`

	AnalystConsensus  float64  `json:"analyst_consensus,omitempty"`
	AnalystConfidence int      `json:"analyst_confidence,omitempty"`
	CurrentPrice      float64  `json:"current_price,omitempty"`
	Sector            string   `json:"sector,omitempty"`
	DataSources       []string `json:"data_sources,omitempty"`
	PERatio           float64  `json:"pe_ratio,omitempty"`
	MarketCap         float64  `json:"market_cap,omitempty"`
}

// Validate enforces the invariants every stored or emitted target must hold.
func (t Target) Validate() error {
	if t.BuyPrice <= 0 || t.SellPrice <= 0 {
		return ErrNonPositiveTarget
	}
	if t.BuyPrice >= t.SellPrice {
		return ErrInvertedTargets
	}
	if t.Confidence < MinConfidence || t.Confidence > MaxConfidence {
		return ErrConfidenceRange
	}
	return nil
}

// TargetSet is the resolved view of targets for a set of tickers.
type TargetSet struct {
	Targets  map[string]Target `json:"targets"`
	Excluded map[string]string `json:"excluded,omitempty"`
	// Tier records which resolution tier produced each target: cache, store or static.
	Tier map[string]string `json:"tier"`
}

// GenerationOutcome tags what a target generation attempt produced.
type GenerationOutcome string

const (
	GenerationAI             GenerationOutcome = "ai"
	GenerationFallbackPrior  GenerationOutcome = "fallback_prior"
	GenerationFallbackStatic GenerationOutcome = "fallback_static"
	GenerationFallbackNone   GenerationOutcome = "fallback_none"
	GenerationSkipped        GenerationOutcome = "skipped_inflight"
)

// Fresh reports whether the outcome produced a new target.
func (o GenerationOutcome) Fresh() bool { return o == GenerationAI }

type GenerationResult struct {
	Ticker   string            `json:"ticker"`
	Target   *Target           `json:"target,omitempty"`
	Outcome  GenerationOutcome `json:"outcome"`
	Attempts int               `json:"attempts"`
	Reason   string            `json:"reason,omitempty"`
}
