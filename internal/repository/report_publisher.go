package repository

import (
	"context"
	"fmt"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	pkgkafka "StockSentinel/pkg/kafka"
	applogger "StockSentinel/pkg/logger"
)

type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaReportPublisher hands cycle reports and regeneration summaries to the
// notification dispatcher over Kafka. Each alert is also emitted keyed by
// ticker so downstream consumers can partition per holding.
type KafkaReportPublisher struct {
	producer     eventProducer
	reportsTopic string
	summaryTopic string
}

func NewKafkaReportPublisher(p eventProducer, reportsTopic, summaryTopic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: p, reportsTopic: reportsTopic, summaryTopic: summaryTopic}
}

func (p *KafkaReportPublisher) PublishCycle(ctx context.Context, report models.CycleReport) error {
	msgs := make([]pkgkafka.Message, 0, 1+len(report.Signals))
	msgs = append(msgs, pkgkafka.Message{Key: []byte(report.CycleID), Value: report})
	for _, s := range report.Alerts() {
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(s.Ticker),
			Value: map[string]interface{}{
				"type":     "alert",
				"cycle_id": report.CycleID,
				"signal":   s,
			},
		})
	}
	if err := p.producer.PublishBatch(ctx, p.reportsTopic, msgs); err != nil {
		return fmt.Errorf("publish cycle %s: %w", report.CycleID, err)
	}
	return nil
}

func (p *KafkaReportPublisher) PublishSummary(ctx context.Context, s models.RegenerationSummary) error {
	if err := p.producer.Publish(ctx, p.summaryTopic, []byte(s.RunID), s); err != nil {
		return fmt.Errorf("publish summary %s: %w", s.RunID, err)
	}
	return nil
}

func (p *KafkaReportPublisher) Close() error {
	return p.producer.Close()
}

// LogReportPublisher writes reports to the structured log when no broker is
// configured.
type LogReportPublisher struct {
	log *applogger.Logger
}

func NewLogReportPublisher(l *applogger.Logger) *LogReportPublisher {
	return &LogReportPublisher{log: l}
}

func (p *LogReportPublisher) PublishCycle(_ context.Context, r models.CycleReport) error {
	for _, s := range r.Alerts() {
		p.log.Info("alert",
			applogger.String("cycle_id", r.CycleID),
			applogger.String("ticker", s.Ticker),
			applogger.String("kind", string(s.Kind)),
			applogger.Float64("price", s.Price),
			applogger.Float64("distance_pct", s.DistancePct),
		)
	}
	p.log.Info("cycle report",
		applogger.String("cycle_id", r.CycleID),
		applogger.Bool("ran", r.Ran),
		applogger.String("gate", r.GateReason),
		applogger.Int("signals", len(r.Signals)),
		applogger.Int("alerts", len(r.Alerts())),
		applogger.Int("failed", len(r.Failed)),
	)
	return nil
}

func (p *LogReportPublisher) PublishSummary(_ context.Context, s models.RegenerationSummary) error {
	p.log.Info("regeneration summary",
		applogger.String("run_id", s.RunID),
		applogger.Int("updated", s.Updated),
		applogger.Int("fell_back", s.FellBack),
		applogger.Int("skipped", s.Skipped),
		applogger.Int("write_failures", s.WriteFailures),
		applogger.Float64("average_confidence", s.AverageConfidence),
		applogger.Float64("estimated_cost", s.EstimatedCost),
	)
	return nil
}

func (p *LogReportPublisher) Close() error { return nil }

var (
	_ repository.ReportPublisher = (*KafkaReportPublisher)(nil)
	_ repository.ReportPublisher = (*LogReportPublisher)(nil)
)
