// Package rates maintains the TTL rate cache: in-memory quotes backed by a
// persisted document, refreshed on demand from the configured providers.
package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/metrics"
	"github.com/valutatrade/hub/internal/provider"
	"github.com/valutatrade/hub/internal/store"
	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/model"
)

// SystemSource tags pairs the hub synthesizes itself (the identity pair).
const SystemSource = "system"

// RateUnavailableError is returned when no fresh quote exists for a pair and
// a refresh could not produce one.
type RateUnavailableError struct {
	From string
	To   string
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("no fresh rate for %s/%s", e.From, e.To)
}

// Quote is a resolved rate for a directional pair. Derived quotes come from
// inverting the stored opposite direction and are never written back.
type Quote struct {
	From      string
	To        string
	Rate      decimal.Decimal
	UpdatedAt time.Time
	Source    string
	Derived   bool
}

// Binding pairs a provider with the currency codes it is responsible for.
type Binding struct {
	Provider provider.Provider
	Codes    []string
}

// RefreshSummary reports the outcome of one refresh pass. Partial success is
// a valid outcome: sources that failed are listed, the rest merged.
type RefreshSummary struct {
	UpdatedBySource map[string]int
	FailedSources   []string
	PairsTotal      int
	RefreshedAt     time.Time
}

// Cache is the TTL rate cache. All reads and merges go through the in-memory
// document; the store holds its persisted form.
type Cache struct {
	logger   *zap.Logger
	store    store.RatesStore
	history  store.HistoryStore // optional
	bindings []Binding
	base     string
	ttl      time.Duration

	mu  sync.RWMutex
	doc *model.RatesDocument

	// refreshMu serializes refresh passes so concurrent misses trigger one
	// upstream sweep, not several.
	refreshMu sync.Mutex
}

// NewCache loads the persisted document and returns a ready cache.
func NewCache(ctx context.Context, cfg *config.Config, logger *zap.Logger, ratesStore store.RatesStore, history store.HistoryStore, bindings []Binding) (*Cache, error) {
	c := &Cache{
		logger:   logger,
		store:    ratesStore,
		history:  history,
		bindings: bindings,
		base:     model.NormalizeCode(cfg.BaseCurrency),
		ttl:      cfg.RatesTTL,
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the in-memory document with the persisted one, picking up
// writes made by other processes.
func (c *Cache) Reload(ctx context.Context) error {
	doc, err := c.store.LoadRates(ctx)
	if err != nil {
		return fmt.Errorf("reload rates: %w", err)
	}

	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()

	c.logger.Info("rates.reloaded",
		zap.Int("pairs", len(doc.Pairs)),
		zap.String("last_refresh", doc.LastRefresh))
	return nil
}

// GetRate resolves a quote for from/to. A fresh direct or inverted hit is
// served from memory; otherwise, unless the whole cache was refreshed within
// the TTL (meaning the pair genuinely has no source), one refresh pass runs
// and the lookup is retried. Identity pairs always quote 1.
func (c *Cache) GetRate(ctx context.Context, from, to string) (*Quote, error) {
	from = model.NormalizeCode(from)
	to = model.NormalizeCode(to)
	now := time.Now().UTC()

	if from == to {
		return &Quote{From: from, To: to, Rate: decimal.NewFromInt(1), UpdatedAt: now, Source: SystemSource}, nil
	}

	if q, ok := c.lookup(from, to, now); ok {
		if q.Derived {
			metrics.IncCacheLookup("derived")
		} else {
			metrics.IncCacheLookup("fresh")
		}
		return q, nil
	}

	// A recent full refresh means every source already had its say: the pair
	// is simply not quoted. Refreshing again would change nothing.
	if c.wholeCacheFresh(now) {
		metrics.IncCacheLookup("unavailable")
		return nil, &RateUnavailableError{From: from, To: to}
	}

	if _, err := c.RefreshAll(ctx); err != nil {
		c.logger.Warn("rates.refresh_on_miss_failed",
			zap.String("pair", model.PairKey(from, to)),
			zap.Error(err))
	}

	if q, ok := c.lookup(from, to, time.Now().UTC()); ok {
		metrics.IncCacheLookup("refreshed")
		return q, nil
	}
	metrics.IncCacheLookup("unavailable")
	return nil, &RateUnavailableError{From: from, To: to}
}

// lookup finds a fresh quote: direct pair first, then the inverse derived as
// 1/rate. Derived quotes are computed on the fly, never stored.
func (c *Cache) lookup(from, to string, now time.Time) (*Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if pr, ok := c.doc.Pairs[model.PairKey(from, to)]; ok {
		if at, fresh := c.freshness(model.PairKey(from, to), pr, now); fresh {
			return &Quote{From: from, To: to, Rate: pr.Rate, UpdatedAt: at, Source: pr.Source}, true
		}
	}
	if pr, ok := c.doc.Pairs[model.PairKey(to, from)]; ok {
		if at, fresh := c.freshness(model.PairKey(to, from), pr, now); fresh && pr.Rate.IsPositive() {
			return &Quote{
				From:      from,
				To:        to,
				Rate:      decimal.NewFromInt(1).Div(pr.Rate),
				UpdatedAt: at,
				Source:    pr.Source,
				Derived:   true,
			}, true
		}
	}
	return nil, false
}

// freshness parses a pair's timestamp and judges it against the TTL. A
// malformed timestamp makes the entry infinitely stale, logged but never
// fatal.
func (c *Cache) freshness(key string, pr model.PairRate, now time.Time) (time.Time, bool) {
	at, err := model.ParseTimestamp(pr.UpdatedAt)
	if err != nil {
		c.logger.Warn("rates.malformed_timestamp",
			zap.String("pair", key),
			zap.String("updated_at", pr.UpdatedAt))
		return time.Time{}, false
	}
	return at, now.Sub(at) < c.ttl
}

// wholeCacheFresh reports whether the last full refresh is within the TTL.
func (c *Cache) wholeCacheFresh(now time.Time) bool {
	c.mu.RLock()
	last := c.doc.LastRefresh
	c.mu.RUnlock()

	if last == "" {
		return false
	}
	at, err := model.ParseTimestamp(last)
	if err != nil {
		c.logger.Warn("rates.malformed_last_refresh", zap.String("last_refresh", last))
		return false
	}
	return now.Sub(at) < c.ttl
}

// RefreshAll sweeps every provider and merges the results, latest wins.
// Failed sources are skipped so one dead upstream never blocks the rest.
// last_refresh advances even on a fully failed pass, and the merged document
// is persisted before returning.
func (c *Cache) RefreshAll(ctx context.Context) (*RefreshSummary, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	defer metrics.ObserveRefresh(start)

	now := time.Now().UTC()
	ts := model.FormatTimestamp(now)
	summary := &RefreshSummary{
		UpdatedBySource: make(map[string]int),
		RefreshedAt:     now,
	}

	merged := make(map[string]model.PairRate)
	var records []model.RateRecord

	for _, b := range c.bindings {
		name := b.Provider.Name()
		fetched, err := b.Provider.FetchRates(ctx, b.Codes, c.base)
		if err != nil {
			metrics.IncProviderRequest(name, "error")
			summary.FailedSources = append(summary.FailedSources, name)
			c.logger.Warn("rates.source_failed",
				zap.String("source", name),
				zap.Error(err))
			continue
		}
		metrics.IncProviderRequest(name, "success")

		for code, rate := range fetched {
			if !rate.IsPositive() {
				c.logger.Warn("rates.non_positive_rate",
					zap.String("source", name),
					zap.String("code", code),
					zap.String("rate", rate.String()))
				continue
			}
			key := model.PairKey(code, c.base)
			merged[key] = model.PairRate{Rate: rate, UpdatedAt: ts, Source: name}
			records = append(records, model.NewRateRecord(code, c.base, rate, name, now, nil))
			summary.UpdatedBySource[name]++
		}
	}

	// The base always trades 1:1 with itself.
	merged[model.PairKey(c.base, c.base)] = model.PairRate{
		Rate:      decimal.NewFromInt(1),
		UpdatedAt: ts,
		Source:    SystemSource,
	}

	c.mu.Lock()
	for key, pr := range merged {
		c.doc.Pairs[key] = pr
	}
	c.doc.LastRefresh = ts
	snapshot := c.copyDocLocked()
	summary.PairsTotal = len(c.doc.Pairs)
	c.mu.Unlock()

	if err := c.store.SaveRates(ctx, snapshot); err != nil {
		return summary, fmt.Errorf("persist rates: %w", err)
	}

	if c.history != nil && len(records) > 0 {
		if err := c.history.AppendRecords(ctx, records); err != nil {
			c.logger.Warn("rates.history_append_failed", zap.Error(err))
		}
	}

	c.logger.Info("rates.refresh_all.done",
		zap.Any("updated_by_source", summary.UpdatedBySource),
		zap.Strings("failed_sources", summary.FailedSources),
		zap.Int("pairs_total", summary.PairsTotal),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// Snapshot returns a copy of the current document for display.
func (c *Cache) Snapshot() *model.RatesDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyDocLocked()
}

func (c *Cache) copyDocLocked() *model.RatesDocument {
	out := model.NewRatesDocument()
	out.LastRefresh = c.doc.LastRefresh
	for k, v := range c.doc.Pairs {
		out.Pairs[k] = v
	}
	return out
}
