// Package targets resolves the active buy/sell targets for tickers through a
// cache, the dynamic store and static defaults, in that order.
package targets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	"StockSentinel/internal/service/cache"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/util"
)

const (
	TierCache  = "cache"
	TierStore  = "store"
	TierStatic = "static"
	TierNone   = "excluded"
)

// Config for a Store. CacheTTL bounds how long a resolved target is reused;
// zero disables the in-process cache.
type Config struct {
	CacheTTL    time.Duration
	ReadTimeout time.Duration
	Defaults    map[string]Holding
}

type Store struct {
	repo    repository.TargetRepository
	cache   *cache.TTLCache[models.Target]
	cfg     Config
	log     *applogger.Logger
	metrics repository.Metrics
}

func New(repo repository.TargetRepository, cfg Config, l *applogger.Logger, m repository.Metrics) *Store {
	if cfg.Defaults == nil {
		cfg.Defaults = BuiltinPortfolio
	}
	return &Store{
		repo:    repo,
		cache:   cache.NewTTLCache[models.Target](),
		cfg:     cfg,
		log:     l,
		metrics: m,
	}
}

// WithClock swaps the cache clock; used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.cache.WithClock(now)
	return s
}

// Portfolio returns the statically configured tickers.
func (s *Store) Portfolio() []string { return Tickers(s.cfg.Defaults) }

// GetTargets resolves a target for every ticker or records why it could not.
// A nil repository behaves like an unreachable one.
func (s *Store) GetTargets(ctx context.Context, tickers []string) models.TargetSet {
	set := models.TargetSet{
		Targets:  make(map[string]models.Target, len(tickers)),
		Excluded: make(map[string]string),
		Tier:     make(map[string]string, len(tickers)),
	}

	var misses []string
	for _, tk := range util.NormalizeTickers(tickers) {
		if t, ok := s.cache.Get(tk); ok {
			set.Targets[tk], set.Tier[tk] = t, TierCache
			continue
		}
		misses = append(misses, tk)
	}
	if len(misses) == 0 {
		s.record(set)
		return set
	}

	stored, storeErr := s.readStore(ctx, misses)
	if storeErr != nil {
		s.log.Warn("target store unavailable, using static defaults",
			applogger.Strings("tickers", misses),
			applogger.Error(storeErr),
		)
	}

	for _, tk := range misses {
		if t, ok := stored[tk]; ok {
			if err := t.Validate(); err != nil {
				s.log.Warn("stored target rejected",
					applogger.String("ticker", tk),
					applogger.Error(err),
				)
			} else {
				if s.cfg.CacheTTL > 0 {
					s.cache.Set(tk, t, s.cfg.CacheTTL)
				}
				set.Targets[tk], set.Tier[tk] = t, TierStore
				continue
			}
		}
		if h, ok := s.cfg.Defaults[tk]; ok {
			set.Targets[tk] = StaticTarget(tk, h, storeErr != nil)
			set.Tier[tk] = TierStatic
			continue
		}

		reason := "no stored target and no static default"
		if storeErr != nil {
			reason += "; store unavailable: " + storeErr.Error()
		}
		set.Excluded[tk] = reason
		s.log.Warn("ticker excluded from classification",
			applogger.String("ticker", tk),
			applogger.String("reason", reason),
		)
	}

	s.record(set)
	return set
}

func (s *Store) readStore(ctx context.Context, tickers []string) (map[string]models.Target, error) {
	if s.repo == nil {
		return nil, errors.New("no target repository configured")
	}
	if s.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReadTimeout)
		defer cancel()
	}
	found, err := s.repo.GetMany(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return found, nil
}

func (s *Store) record(set models.TargetSet) {
	for _, tier := range set.Tier {
		s.metrics.RecordTargetResolution(tier)
	}
	for range set.Excluded {
		s.metrics.RecordTargetResolution(TierNone)
	}
}

// SetTargets validates and persists each target. The returned map holds the
// error for every ticker that was not written; other tickers still are.
func (s *Store) SetTargets(ctx context.Context, targets map[string]models.Target) map[string]error {
	failed := make(map[string]error)
	for tk, t := range targets {
		tk = strings.ToUpper(tk)
		t.Ticker = tk
		if err := t.Validate(); err != nil {
			failed[tk] = fmt.Errorf("invalid target: %w", err)
			continue
		}
		s.cache.Delete(tk)
		if s.repo == nil {
			failed[tk] = errors.New("no target repository configured")
			continue
		}
		if err := s.repo.Put(ctx, tk, t); err != nil {
			failed[tk] = fmt.Errorf("write target: %w", err)
			s.log.Error("target write failed",
				applogger.String("ticker", tk),
				applogger.Error(err),
			)
		}
	}
	return failed
}

// Current returns the best known target for ticker and the tier it came from.
func (s *Store) Current(ctx context.Context, ticker string) (models.Target, string, bool) {
	tk := strings.ToUpper(strings.TrimSpace(ticker))
	set := s.GetTargets(ctx, []string{tk})
	t, ok := set.Targets[tk]
	if !ok {
		return models.Target{}, TierNone, false
	}
	return t, set.Tier[tk], true
}
