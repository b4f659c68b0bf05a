package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockSentinel/internal/domain/repository"
	"StockSentinel/internal/domain/service"
	"StockSentinel/internal/handler/api"
	internalrepo "StockSentinel/internal/repository"
	"StockSentinel/internal/service/ai"
	"StockSentinel/internal/service/ratelimit"
	"StockSentinel/internal/service/scrape"
	"StockSentinel/internal/service/yahoo"
	"StockSentinel/internal/services/analyst"
	"StockSentinel/internal/services/classifier"
	"StockSentinel/internal/services/collector"
	"StockSentinel/internal/services/gate"
	"StockSentinel/internal/services/generator"
	"StockSentinel/internal/services/targets"
	"StockSentinel/internal/usecase"
	"StockSentinel/pkg/cache"
	pkgch "StockSentinel/pkg/clickhouse"
	"StockSentinel/pkg/config"
	xhttp "StockSentinel/pkg/http"
	pkgkafka "StockSentinel/pkg/kafka"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/metrics"
	"StockSentinel/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache returns the shared cache used for analyst results, regeneration
// locks and the redis target backend. Redis is fronted by an in-process LRU.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if cfg.Targets.Backend != "redis" {
		mem := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(10000),
			cache.WithMemoryCleanup(cfg.Targets.CacheCleanup),
		)
		return mem, func() { _ = mem.Close() }, nil
	}

	rc := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		// Reads fall back to static targets until redis comes back.
		l.Warn("redis unreachable at startup", applogger.Error(err))
	}

	layered := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(2000),
		cache.WithLayeredMemoryTTL(cfg.Targets.CacheTTL),
	)
	return layered, func() {
		if err := layered.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}, nil
}

// ProvideYahooClient creates the price and analyst API client.
func ProvideYahooClient(cfg *config.Config, l *applogger.Logger) *yahoo.Client {
	return yahoo.New(cfg.Yahoo.QuoteURL, cfg.Yahoo.SummaryURL,
		yahoo.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Collector.CallTimeout*2))),
		yahoo.WithLimiter(ratelimit.New(cfg.Yahoo.RPS, cfg.Yahoo.Burst)),
		yahoo.WithUserAgent(cfg.Yahoo.UserAgent),
		yahoo.WithLogger(l),
	)
}

// ProvideAnalystSources returns the enabled analyst sources. Scrapers share
// one rate limiter so they stay polite to each host.
func ProvideAnalystSources(cfg *config.Config, y *yahoo.Client, l *applogger.Logger) []repository.AnalystSource {
	var sources []repository.AnalystSource
	if cfg.Analyst.Sources.YahooAPI.Enabled {
		sources = append(sources, yahoo.NewAnalystSource(y))
	}

	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Analyst.ScrapeTimeout), xhttp.WithMaxIdlePerHost(2))
	limiter := ratelimit.New(cfg.Analyst.ScrapeRPS, 1)
	opts := []scrape.Option{
		scrape.WithHTTPClient(client),
		scrape.WithLimiter(limiter),
		scrape.WithLogger(l),
		scrape.WithUserAgent(cfg.Yahoo.UserAgent),
		scrape.WithTimeout(cfg.Analyst.ScrapeTimeout),
	}
	if cfg.Analyst.Sources.MarketWatch.Enabled {
		sources = append(sources, scrape.NewMarketWatch(cfg.Analyst.MarketWatchURL, opts...))
	}
	if cfg.Analyst.Sources.YahooWeb.Enabled {
		sources = append(sources, scrape.NewYahooWeb(cfg.Analyst.YahooWebURL, opts...))
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	l.Info("analyst sources configured", applogger.Strings("sources", names))
	return sources
}

// ProvideAnalyzer builds the AI client. Without an API key generation runs in
// fallback-only mode instead of failing startup.
func ProvideAnalyzer(cfg *config.Config, l *applogger.Logger) (service.Analyzer, error) {
	a, err := ai.New(context.Background(), ai.Config{
		Provider:    cfg.AI.Provider,
		Model:       cfg.AI.Model,
		APIKey:      cfg.AI.APIKey,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	}, l)
	if errors.Is(err, ai.ErrNoAPIKey) {
		l.Warn("ai api key missing, targets will fall back", applogger.String("provider", cfg.AI.Provider))
		return ai.Disabled{Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ai analyzer: %w", err)
	}
	return a, nil
}

// ProvideTargetRepository returns the dynamic target backend.
func ProvideTargetRepository(c cache.Service, cfg *config.Config) repository.TargetRepository {
	return internalrepo.NewTargetRepository(c, cfg.Targets.KeyPrefix)
}

// ProvideTargetStore creates the target store with the configured portfolio.
func ProvideTargetStore(repo repository.TargetRepository, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *targets.Store {
	return targets.New(repo, TargetsConfig(cfg), l, m)
}

// ProvideCollector creates the price collector.
func ProvideCollector(y *yahoo.Client, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *collector.Collector {
	return collector.New(y, CollectorConfig(cfg), l, m)
}

// ProvideGate creates the market gate.
func ProvideGate(cfg *config.Config) (*gate.Gate, error) {
	gc, err := GateConfig(cfg)
	if err != nil {
		return nil, err
	}
	return gate.New(gc), nil
}

// ProvideClassifier creates the alert classifier.
func ProvideClassifier(cfg *config.Config) classifier.Classifier {
	return classifier.New(classifier.Config{WatchBand: cfg.Classifier.WatchBand})
}

// ProvideAggregator creates the analyst data aggregator.
func ProvideAggregator(sources []repository.AnalystSource, c cache.Service, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *analyst.Aggregator {
	return analyst.New(sources, c, analyst.Config{
		CacheTTL:      cfg.Analyst.CacheTTL,
		StaleAfter:    cfg.Analyst.StaleAfter,
		SourceTimeout: cfg.Analyst.ScrapeTimeout,
	}, l, m)
}

// ProvideGenerator creates the target generator. Locks live in the shared
// cache so concurrent processes do not regenerate the same ticker.
func ProvideGenerator(a service.Analyzer, c cache.Service, store *targets.Store, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *generator.Generator {
	return generator.New(a, c, store, GeneratorConfig(cfg), l, m)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled. Warn and error logs are digested onto the logs topic.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Kafka.LogsTopic != "" {
		l.AttachDigest(&applogger.DigestConfig{
			FlushInterval: time.Minute,
			Topic:         cfg.Kafka.LogsTopic,
			Publisher:     producer,
		})
	}

	return producer, func() {
		l.DetachDigest()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideReportPublisher returns the notification dispatcher: Kafka when
// configured, structured logs otherwise.
func ProvideReportPublisher(p *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) repository.ReportPublisher {
	if p == nil {
		return internalrepo.NewLogReportPublisher(l)
	}
	return internalrepo.NewKafkaReportPublisher(p, cfg.Kafka.ReportsTopic, cfg.Kafka.SummaryTopic)
}

// ProvideClickHouseClient creates a ClickHouse client with the quotes schema,
// or nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.AsyncInsertWait),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.QuoteSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

// ProvideQuoteHistory records quotes to ClickHouse when available and
// otherwise reads closes from the chart API.
func ProvideQuoteHistory(ch *pkgch.Client, y *yahoo.Client, cfg *config.Config, l *applogger.Logger) repository.QuoteHistory {
	if ch == nil {
		return internalrepo.NewChartQuoteHistory(y)
	}
	return internalrepo.NewClickHouseQuoteHistory(ch.DB(), cfg.ClickHouse.Database, l)
}

// ProvideDailyMonitor creates the daily monitoring use case.
func ProvideDailyMonitor(
	g *gate.Gate,
	c *collector.Collector,
	store *targets.Store,
	cl classifier.Classifier,
	pub repository.ReportPublisher,
	history repository.QuoteHistory,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.DailyMonitor {
	return usecase.NewDailyMonitor(g, c, store, cl, pub, history, cfg.Tickers, l, m)
}

// ProvideMonthlyRegeneration creates the monthly regeneration use case.
func ProvideMonthlyRegeneration(
	agg *analyst.Aggregator,
	gen *generator.Generator,
	store *targets.Store,
	y *yahoo.Client,
	history repository.QuoteHistory,
	pub repository.ReportPublisher,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.MonthlyRegeneration {
	return usecase.NewMonthlyRegeneration(agg, gen, store, y, history, pub, usecase.MonthlyConfig{
		Workers:       cfg.Monthly.Workers,
		CostPerTicker: cfg.Monthly.CostPerTicker,
		HistoryPoints: cfg.Monthly.HistoryPoints,
	}, l, m)
}

// ProvideHandler creates the control API handler with health checks for the
// backing stores that are configured.
func ProvideHandler(
	l *applogger.Logger,
	g *gate.Gate,
	daily *usecase.DailyMonitor,
	store *targets.Store,
	monthly *usecase.MonthlyRegeneration,
	c cache.Service,
	ch *pkgch.Client,
) *api.MonitorEchoHandler {
	checks := map[string]api.Pinger{"cache": c.Ping}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return api.NewMonitorEchoHandler(l, g, daily, store, monthly, checks)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.MonitorEchoHandler) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(path),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	daily *usecase.DailyMonitor,
	monthly *usecase.MonthlyRegeneration,
	srv *xhttp.Server,
) (*server.App, error) {
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market timezone: %w", err)
	}
	return server.New(l, daily, monthly, srv, server.Schedule{
		Enabled:  cfg.Schedule.Enabled,
		Daily:    cfg.Schedule.Daily,
		Monthly:  cfg.Schedule.Monthly,
		Location: loc,
	}, cfg.Server.ShutdownTimeout), nil
}
