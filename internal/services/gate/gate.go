// Package gate decides whether a monitoring cycle should run at a given instant.
package gate

import (
	"fmt"
	"time"
)

// Override forces the gate decision regardless of the clock.
type Override int

const (
	OverrideNone Override = iota
	OverrideOpen
	OverrideClosed
)

// ParseOverride maps the config values "", "open" and "closed".
func ParseOverride(s string) Override {
	switch s {
	case "open":
		return OverrideOpen
	case "closed":
		return OverrideClosed
	default:
		return OverrideNone
	}
}

type Config struct {
	Location *time.Location
	// Open and Close are offsets from local midnight; both ends are inclusive.
	Open     time.Duration
	Close    time.Duration
	Holidays []string // YYYY-MM-DD in exchange local time
	Override Override
}

// DefaultHolidays is the built-in NYSE closure calendar.
func DefaultHolidays() []string {
	return []string{
		"2025-09-01", "2025-11-27", "2025-12-25",
		"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03", "2026-05-25",
		"2026-06-19", "2026-07-03", "2026-09-07", "2026-11-26", "2026-12-25",
	}
}

// DefaultConfig is the regular US equity session, 09:30-16:00 New York time.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	return Config{
		Location: loc,
		Open:     9*time.Hour + 30*time.Minute,
		Close:    16 * time.Hour,
		Holidays: DefaultHolidays(),
	}
}

// Gate is immutable once built and safe for concurrent use.
type Gate struct {
	cfg      Config
	holidays map[string]struct{}
}

func New(cfg Config) *Gate {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Holidays) == 0 {
		cfg.Holidays = DefaultHolidays()
	}
	h := make(map[string]struct{}, len(cfg.Holidays))
	for _, d := range cfg.Holidays {
		h[d] = struct{}{}
	}
	return &Gate{cfg: cfg, holidays: h}
}

// WithOverride returns a copy of the gate with a different override.
func (g *Gate) WithOverride(o Override) *Gate {
	c := *g
	c.cfg.Override = o
	return &c
}

// ShouldRun reports whether a cycle should proceed at now, with a
// human-readable reason either way.
func (g *Gate) ShouldRun(now time.Time) (bool, string) {
	switch g.cfg.Override {
	case OverrideOpen:
		return true, "Bypass: forced open"
	case OverrideClosed:
		return false, "Bypass: forced closed"
	}

	local := now.In(g.cfg.Location)

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, fmt.Sprintf("Weekend (%s)", wd)
	}

	day := local.Format(time.DateOnly)
	if _, ok := g.holidays[day]; ok {
		return false, fmt.Sprintf("Market holiday: %s", day)
	}

	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, g.cfg.Location)
	offset := local.Sub(midnight).Truncate(time.Minute)
	clock := local.Format("15:04 MST")

	if offset < g.cfg.Open || offset > g.cfg.Close {
		return false, fmt.Sprintf("Outside market hours: %s (market: %s-%s)",
			clock, formatOffset(g.cfg.Open), formatOffset(g.cfg.Close))
	}
	return true, fmt.Sprintf("Market open: %s", clock)
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
