package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	"StockSentinel/pkg/cache"
)

// TargetRepository persists targets as JSON values in a cache.Service, which
// is Redis in production and the in-memory cache elsewhere.
type TargetRepository struct {
	c      cache.Service
	prefix string
}

func NewTargetRepository(c cache.Service, prefix string) *TargetRepository {
	if prefix == "" {
		prefix = "targets"
	}
	return &TargetRepository{c: c, prefix: prefix}
}

func (r *TargetRepository) key(ticker string) string {
	return cache.GenerateKey(r.prefix, strings.ToUpper(ticker))
}

func (r *TargetRepository) Get(ctx context.Context, ticker string) (models.Target, error) {
	var t models.Target
	if err := r.c.Get(ctx, r.key(ticker), &t); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.Target{}, repository.ErrTargetNotFound
		}
		return models.Target{}, fmt.Errorf("get target %s: %w", ticker, err)
	}
	return t, nil
}

// GetMany returns the stored targets among tickers. Missing tickers are
// absent from the map; an error means the backend could not be read at all.
func (r *TargetRepository) GetMany(ctx context.Context, tickers []string) (map[string]models.Target, error) {
	keys := make([]string, len(tickers))
	byKey := make(map[string]string, len(tickers))
	for i, tk := range tickers {
		keys[i] = r.key(tk)
		byKey[keys[i]] = strings.ToUpper(tk)
	}

	found, err := cache.MGetTyped[models.Target](ctx, r.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	out := make(map[string]models.Target, len(found))
	for k, t := range found {
		out[byKey[k]] = t
	}
	return out, nil
}

// Put stores a target without expiry; regeneration supersedes it.
func (r *TargetRepository) Put(ctx context.Context, ticker string, t models.Target) error {
	if err := r.c.Set(ctx, r.key(ticker), t, 0); err != nil {
		return fmt.Errorf("put target %s: %w", ticker, err)
	}
	return nil
}

var _ repository.TargetRepository = (*TargetRepository)(nil)
