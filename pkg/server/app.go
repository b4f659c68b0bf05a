package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"StockSentinel/internal/domain/models"
	xhttp "StockSentinel/pkg/http"
	applogger "StockSentinel/pkg/logger"
)

// Process modes accepted by Run.
const (
	ModeServe   = "serve"
	ModeDaily   = "daily"
	ModeMonthly = "monthly"
)

type DailyJob interface {
	Run(ctx context.Context, force bool) models.CycleReport
}

type MonthlyJob interface {
	Run(ctx context.Context, tickers []string) models.RegenerationSummary
}

// Schedule holds the cron specs (with seconds) for the serve mode.
type Schedule struct {
	Enabled  bool
	Daily    string
	Monthly  string
	Location *time.Location
}

// App encapsulates the application lifecycle.
type App struct {
	log      *applogger.Logger
	daily    DailyJob
	monthly  MonthlyJob
	server   *xhttp.Server
	schedule Schedule
	shutdown time.Duration
	cron     *cron.Cron
}

// New creates the application. server may be nil for the one-shot modes.
func New(l *applogger.Logger, daily DailyJob, monthly MonthlyJob, server *xhttp.Server, schedule Schedule, shutdown time.Duration) *App {
	if shutdown <= 0 {
		shutdown = 15 * time.Second
	}
	return &App{
		log:      l,
		daily:    daily,
		monthly:  monthly,
		server:   server,
		schedule: schedule,
		shutdown: shutdown,
	}
}

// Run executes the given mode and blocks until it finishes or the process
// is interrupted.
func (a *App) Run(mode string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case ModeServe:
		return a.Serve(ctx)
	case ModeDaily:
		a.RunDaily(ctx)
		return nil
	case ModeMonthly:
		a.RunMonthly(ctx)
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// Serve runs the HTTP server and the cron scheduler until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.server == nil {
		return errors.New("serve mode requires an http server")
	}

	if a.schedule.Enabled {
		if err := a.startCron(ctx); err != nil {
			return err
		}
	}

	if err := a.server.Start(); err != nil {
		return fmt.Errorf("http server start: %w", err)
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdown)
	defer cancel()

	if a.cron != nil {
		select {
		case <-a.cron.Stop().Done():
			a.log.Info("scheduler stopped")
		case <-shutdownCtx.Done():
			a.log.Warn("scheduler jobs still running at shutdown")
		}
	}
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	return nil
}

func (a *App) startCron(ctx context.Context) error {
	loc := a.schedule.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{l: a.log}
	a.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if a.schedule.Daily != "" && a.daily != nil {
		if _, err := a.cron.AddFunc(a.schedule.Daily, func() { a.RunDaily(ctx) }); err != nil {
			return fmt.Errorf("register daily job: %w", err)
		}
	}
	if a.schedule.Monthly != "" && a.monthly != nil {
		if _, err := a.cron.AddFunc(a.schedule.Monthly, func() { a.RunMonthly(ctx) }); err != nil {
			return fmt.Errorf("register monthly job: %w", err)
		}
	}

	a.cron.Start()
	a.log.Info("scheduler started",
		applogger.String("daily", a.schedule.Daily),
		applogger.String("monthly", a.schedule.Monthly),
		applogger.String("location", loc.String()),
	)
	return nil
}

// RunDaily runs one monitoring cycle through the market gate.
func (a *App) RunDaily(ctx context.Context) models.CycleReport {
	report := a.daily.Run(ctx, false)
	if report.PublishErr != "" {
		a.log.Warn("daily report not delivered",
			applogger.String("cycle_id", report.CycleID),
			applogger.String("error", report.PublishErr),
		)
	}
	return report
}

// RunMonthly regenerates targets for the whole portfolio.
func (a *App) RunMonthly(ctx context.Context) models.RegenerationSummary {
	return a.monthly.Run(ctx, nil)
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	fields := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, applogger.Any(key, kv[i+1]))
	}
	return fields
}
