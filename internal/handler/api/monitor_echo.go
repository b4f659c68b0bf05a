package api

import (
	"context"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"StockSentinel/internal/domain/models"
	apimetrics "StockSentinel/internal/service/metrics"
	xhttp "StockSentinel/pkg/http"
	xlogger "StockSentinel/pkg/logger"
)

type marketGate interface {
	ShouldRun(now time.Time) (bool, string)
}

type dailyRunner interface {
	Run(ctx context.Context, force bool) models.CycleReport
}

type targetReader interface {
	GetTargets(ctx context.Context, tickers []string) models.TargetSet
	Portfolio() []string
}

type regenerator interface {
	Run(ctx context.Context, tickers []string) models.RegenerationSummary
}

// Pinger checks one backing dependency for /healthz.
type Pinger func(ctx context.Context) error

// MonitorEchoHandler serves the operator control API.
type MonitorEchoHandler struct {
	logger  *xlogger.Logger
	gate    marketGate
	daily   dailyRunner
	targets targetReader
	monthly regenerator
	checks  map[string]Pinger
	now     func() time.Time
}

func NewMonitorEchoHandler(logger *xlogger.Logger, gate marketGate, daily dailyRunner, targets targetReader,
	monthly regenerator, checks map[string]Pinger) *MonitorEchoHandler {
	apimetrics.Register()
	return &MonitorEchoHandler{
		logger:  logger,
		gate:    gate,
		daily:   daily,
		targets: targets,
		monthly: monthly,
		checks:  checks,
		now:     time.Now,
	}
}

func (h *MonitorEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/v1")
	g.GET("/market/status", h.MarketStatus)
	g.POST("/cycles/daily", h.RunDaily)
	g.GET("/targets", h.Targets)
	g.POST("/targets/regenerate", h.Regenerate)
}

// Health reports "ok" or "degraded". Backing stores being down degrades the
// service but it keeps serving from fallbacks, so the status code stays 200.
func (h *MonitorEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := models.Health{Status: "ok"}
	if len(h.checks) > 0 {
		res.Components = make(map[string]string, len(h.checks))
		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				res.Status = "degraded"
				res.Components[name] = err.Error()
				continue
			}
			res.Components[name] = "ok"
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MonitorEchoHandler) MarketStatus(c echo.Context) error {
	now := h.now()
	open, reason := h.gate.ShouldRun(now)
	return xhttp.SuccessResponse(c, models.MarketStatus{Open: open, Reason: reason, CheckedAt: now})
}

// RunDaily runs one cycle synchronously. A cycle with failed tickers or an
// undelivered report answers 202 so callers notice the partial result.
func (h *MonitorEchoHandler) RunDaily(c echo.Context) error {
	start := time.Now()
	req := &models.DailyCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !req.Force {
		req.Force = xhttp.ParseBoolDefault(c.QueryParam("force"), false)
	}

	report := h.daily.Run(c.Request().Context(), req.Force)
	partial := len(report.Failed) > 0 || report.PublishErr != ""
	apimetrics.Observe("run_daily", start, report.PublishErr != "")
	if partial {
		return xhttp.AcceptedResponse(c, report)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *MonitorEchoHandler) Targets(c echo.Context) error {
	start := time.Now()
	req := &models.TargetsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	tickers := xhttp.ParseTickers(req.Tickers)
	for _, tk := range tickers {
		if !xhttp.ValidTicker(tk) {
			apimetrics.Observe("get_targets", start, true)
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid ticker %q", tk).WithParam("field", "tickers"))
		}
	}
	if len(tickers) == 0 {
		tickers = h.targets.Portfolio()
	}

	set := h.targets.GetTargets(c.Request().Context(), tickers)
	apimetrics.Observe("get_targets", start, false)
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, set)
}

// Regenerate runs the monthly job for the given tickers, or the whole
// portfolio when none are given.
func (h *MonitorEchoHandler) Regenerate(c echo.Context) error {
	start := time.Now()
	req := &models.RegenerateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.monthly == nil {
		apimetrics.Observe("regenerate", start, true)
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("target regeneration is not configured"))
	}

	summary := h.monthly.Run(c.Request().Context(), req.Tickers)
	apimetrics.Observe("regenerate", start, summary.WriteFailures > 0)
	h.logger.Info("regeneration requested",
		xlogger.Strings("tickers", req.Tickers),
		xlogger.String("run_id", summary.RunID),
	)
	if summary.WriteFailures > 0 {
		return xhttp.AcceptedResponse(c, summary)
	}
	return xhttp.SuccessResponse(c, summary)
}
