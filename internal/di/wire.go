//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StockSentinel/pkg/config"
	"StockSentinel/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup func releases Kafka, ClickHouse and Redis in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideYahooClient,
		ProvideAnalyzer,

		// Repositories
		ProvideTargetRepository,
		ProvideReportPublisher,
		ProvideQuoteHistory,
		ProvideAnalystSources,

		// Domain services
		ProvideGate,
		ProvideCollector,
		ProvideClassifier,
		ProvideTargetStore,
		ProvideAggregator,
		ProvideGenerator,

		// Use cases
		ProvideDailyMonitor,
		ProvideMonthlyRegeneration,

		// Transport and application
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
