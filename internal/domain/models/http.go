package models

import "time"

type DailyCycleRequest struct {
	Force bool `json:"force" query:"force"`
}

type TargetsRequest struct {
	Tickers string `query:"tickers" json:"tickers"`
}

type RegenerateRequest struct {
	Tickers []string `json:"tickers" validate:"max=50,dive,ticker"`
}

type MarketStatus struct {
	Open      bool      `json:"open"`
	Reason    string    `json:"reason"`
	CheckedAt time.Time `json:"checked_at"`
}

type Health struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
