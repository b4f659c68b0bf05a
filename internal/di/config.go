package di

import (
	"fmt"
	"time"

	"StockSentinel/internal/services/collector"
	"StockSentinel/internal/services/gate"
	"StockSentinel/internal/services/generator"
	"StockSentinel/internal/services/targets"
	"StockSentinel/pkg/config"
)

// GateConfig converts the market section. An empty holiday list keeps the
// built-in calendar.
func GateConfig(cfg *config.Config) (gate.Config, error) {
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return gate.Config{}, fmt.Errorf("market timezone: %w", err)
	}
	open, err := config.ParseClock(cfg.Market.Open)
	if err != nil {
		return gate.Config{}, fmt.Errorf("market open: %w", err)
	}
	closing, err := config.ParseClock(cfg.Market.Close)
	if err != nil {
		return gate.Config{}, fmt.Errorf("market close: %w", err)
	}

	holidays := cfg.Market.Holidays
	if len(holidays) == 0 {
		holidays = gate.DefaultHolidays()
	}
	return gate.Config{
		Location: loc,
		Open:     open,
		Close:    closing,
		Holidays: holidays,
		Override: gate.ParseOverride(cfg.Market.Bypass),
	}, nil
}

func CollectorConfig(cfg *config.Config) collector.Config {
	return collector.Config{
		Workers:     cfg.Collector.Workers,
		Deadline:    cfg.Collector.Deadline,
		CallTimeout: cfg.Collector.CallTimeout,
		Retry: collector.RetryPolicy{
			MaxAttempts: cfg.Collector.Retry.MaxAttempts,
			BackoffMin:  cfg.Collector.Retry.BackoffMin,
			BackoffMax:  cfg.Collector.Retry.BackoffMax,
		},
	}
}

// TargetsConfig converts the target store section. An empty portfolio keeps
// the built-in holdings.
func TargetsConfig(cfg *config.Config) targets.Config {
	var defaults map[string]targets.Holding
	if len(cfg.Portfolio) > 0 {
		defaults = make(map[string]targets.Holding, len(cfg.Portfolio))
		for _, h := range cfg.Portfolio {
			defaults[h.Ticker] = targets.Holding{Buy: h.Buy, Sell: h.Sell}
		}
	}
	return targets.Config{
		CacheTTL:    cfg.Targets.CacheTTL,
		ReadTimeout: cfg.Targets.ReadTimeout,
		Defaults:    defaults,
	}
}

func GeneratorConfig(cfg *config.Config) generator.Config {
	return generator.Config{
		MaxAttempts:  cfg.AI.MaxAttempts,
		BackoffMin:   cfg.AI.BackoffMin,
		BackoffMax:   cfg.AI.BackoffMax,
		CallTimeout:  cfg.AI.Timeout,
		MaxDeviation: cfg.AI.MaxDeviation,
		LockTTL:      cfg.Monthly.LockTTL,
	}
}
