package usecase

import (
	"context"
	"fmt"
	"time"

	"StockSentinel/internal/domain/models"
	drepo "StockSentinel/internal/domain/repository"
	"StockSentinel/internal/services/classifier"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/util"
)

type marketGate interface {
	ShouldRun(now time.Time) (bool, string)
}

type priceCollector interface {
	FetchPrices(ctx context.Context, tickers []string) map[string]models.CollectionOutcome
}

type targetResolver interface {
	GetTargets(ctx context.Context, tickers []string) models.TargetSet
	Portfolio() []string
}

// DailyMonitor runs one monitoring cycle: gate, collect, resolve targets,
// classify and hand the report to the dispatcher.
type DailyMonitor struct {
	gate       marketGate
	collector  priceCollector
	targets    targetResolver
	classifier classifier.Classifier
	publisher  drepo.ReportPublisher
	history    drepo.QuoteHistory
	tickers    []string
	now        func() time.Time
	log        *applogger.Logger
	metrics    drepo.Metrics
}

// NewDailyMonitor creates a DailyMonitor. An empty tickers list monitors the
// whole portfolio; a nil history skips quote recording.
func NewDailyMonitor(g marketGate, c priceCollector, t targetResolver, cl classifier.Classifier,
	pub drepo.ReportPublisher, history drepo.QuoteHistory, tickers []string,
	l *applogger.Logger, m drepo.Metrics) *DailyMonitor {
	return &DailyMonitor{
		gate:       g,
		collector:  c,
		targets:    t,
		classifier: cl,
		publisher:  pub,
		history:    history,
		tickers:    util.NormalizeTickers(tickers),
		now:        time.Now,
		log:        l,
		metrics:    m,
	}
}

func (d *DailyMonitor) WithClock(now func() time.Time) *DailyMonitor {
	d.now = now
	return d
}

// Tickers returns the monitored set.
func (d *DailyMonitor) Tickers() []string {
	if len(d.tickers) > 0 {
		return d.tickers
	}
	return d.targets.Portfolio()
}

// Run executes one cycle. force bypasses the market gate. Partial failures
// are reported in CycleReport.Failed; the cycle itself always completes.
func (d *DailyMonitor) Run(ctx context.Context, force bool) models.CycleReport {
	start := d.now()
	report := models.CycleReport{
		CycleID:   fmt.Sprintf("daily-%s", start.UTC().Format("20060102T150405Z")),
		StartedAt: start,
		Signals:   []models.Signal{},
	}

	if force {
		report.Ran, report.GateReason = true, "Bypass: forced open"
	} else {
		report.Ran, report.GateReason = d.gate.ShouldRun(start)
	}
	if !report.Ran {
		report.FinishedAt = d.now()
		d.log.Info("monitoring skipped", applogger.String("reason", report.GateReason))
		return report
	}

	tickers := util.NormalizeTickers(d.Tickers())
	outcomes := d.collector.FetchPrices(ctx, tickers)
	set := d.targets.GetTargets(ctx, tickers)

	quotes := make([]models.PriceQuote, 0, len(tickers))
	for _, tk := range tickers {
		o := outcomes[tk]
		h := models.HoldingStatus{Ticker: tk, Status: o.Status, Source: o.Source}
		if o.Status == models.StatusFailed || o.Quote == nil {
			reason := o.Error
			if reason == "" {
				reason = "no price collected"
			}
			h.Status, h.Failure = models.StatusFailed, reason
			report.Failed = append(report.Failed, models.FailedTicker{Ticker: tk, Stage: "collect", Reason: reason})
			report.Portfolio = append(report.Portfolio, h)
			continue
		}
		h.Price = o.Quote.Price
		quotes = append(quotes, *o.Quote)
		d.metrics.RecordLastPrice(tk, o.Quote.Price)

		t, ok := set.Targets[tk]
		if !ok {
			reason := set.Excluded[tk]
			if reason == "" {
				reason = "no target available"
			}
			h.Failure = reason
			report.Failed = append(report.Failed, models.FailedTicker{Ticker: tk, Stage: "targets", Reason: reason})
			report.Portfolio = append(report.Portfolio, h)
			continue
		}

		sig := d.classifier.Classify(*o.Quote, t)
		d.metrics.RecordSignal(string(sig.Kind))
		report.Signals = append(report.Signals, sig)

		h.Signal, h.Target, h.Tier = sig.Kind, &t, set.Tier[tk]
		report.Portfolio = append(report.Portfolio, h)
	}

	if d.history != nil && len(quotes) > 0 {
		if err := d.history.Record(ctx, quotes); err != nil {
			d.metrics.RecordError("quote_history")
			d.log.Warn("quote history write failed", applogger.Error(err))
		}
	}

	report.FinishedAt = d.now()
	if err := d.publisher.PublishCycle(ctx, report); err != nil {
		d.metrics.RecordError("publish")
		report.PublishErr = err.Error()
		d.log.Error("cycle report publish failed",
			applogger.String("cycle_id", report.CycleID),
			applogger.Error(err),
		)
	} else {
		report.Published = true
	}

	d.metrics.RecordLatency("daily_cycle", report.FinishedAt.Sub(start).Seconds())
	d.log.Info("monitoring cycle complete",
		applogger.String("cycle_id", report.CycleID),
		applogger.Int("tickers", len(tickers)),
		applogger.Int("signals", len(report.Signals)),
		applogger.Int("alerts", len(report.Alerts())),
		applogger.Int("failed", len(report.Failed)),
	)
	return report
}
