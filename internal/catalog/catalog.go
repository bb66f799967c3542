// Package catalog implements the Market Catalog (C4): for each supported
// schedule it exposes list_currently_running and by_slug, cached 30s per
// slug to avoid hammering the exchange (spec §4.3). Caching follows the
// same singleflight-coalesced TTL pattern as internal/book, grounded on
// stadam23-Eve-flipper's order cache.
package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
)

const cacheTTL = 30 * time.Second

// Schedule is a supported market cadence.
type Schedule string

const (
	Schedule15Minute Schedule = "15m"
	Schedule1Hour    Schedule = "1h"
)

type listEntry struct {
	markets []gateway.Market
	fetched time.Time
}

type slugEntry struct {
	market  *gateway.Market
	fetched time.Time
}

// Catalog caches the exchange's market listings per schedule and slug.
type Catalog struct {
	source gateway.MarketCatalogSource

	mu        sync.RWMutex
	byList    map[Schedule]*listEntry
	bySlug    map[string]*slugEntry
	listGroup singleflight.Group
	slugGroup singleflight.Group
}

// New creates a Catalog backed by source.
func New(source gateway.MarketCatalogSource) *Catalog {
	return &Catalog{
		source: source,
		byList: make(map[Schedule]*listEntry),
		bySlug: make(map[string]*slugEntry),
	}
}

// ListCurrentlyRunning returns markets for schedule with start_time <= now
// < end_time and active == true, from a cache refreshed at most every 30s.
func (c *Catalog) ListCurrentlyRunning(ctx context.Context, schedule Schedule) ([]gateway.Market, error) {
	if cached, ok := c.freshList(schedule); ok {
		return filterRunning(cached), nil
	}

	result, err, _ := c.listGroup.Do(string(schedule), func() (interface{}, error) {
		if cached, ok := c.freshList(schedule); ok {
			return cached, nil
		}
		markets, fErr := c.source.ListMarkets(ctx, string(schedule))
		if fErr != nil {
			return nil, fErr
		}
		c.mu.Lock()
		c.byList[schedule] = &listEntry{markets: markets, fetched: time.Now()}
		c.mu.Unlock()
		return markets, nil
	})
	if err != nil {
		return nil, err
	}
	return filterRunning(result.([]gateway.Market)), nil
}

func filterRunning(markets []gateway.Market) []gateway.Market {
	now := time.Now()
	var out []gateway.Market
	for _, m := range markets {
		if isCurrentlyRunning(m, now) {
			out = append(out, m)
		}
	}
	return out
}

func isCurrentlyRunning(m gateway.Market, now time.Time) bool {
	return m.Active && !m.StartTime.After(now) && now.Before(m.EndTime)
}

func (c *Catalog) freshList(schedule Schedule) ([]gateway.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byList[schedule]
	if !ok || time.Since(e.fetched) > cacheTTL {
		return nil, false
	}
	return e.markets, true
}

// BySlug returns the market for slug, from a cache refreshed at most
// every 30s, or nil if the exchange has no such market.
func (c *Catalog) BySlug(ctx context.Context, slug string) (*gateway.Market, error) {
	if cached, ok := c.freshSlug(slug); ok {
		return cached, nil
	}

	result, err, _ := c.slugGroup.Do(slug, func() (interface{}, error) {
		if cached, ok := c.freshSlug(slug); ok {
			return cached, nil
		}
		m, fErr := c.source.MarketBySlug(ctx, slug)
		if fErr != nil {
			return nil, fErr
		}
		c.mu.Lock()
		c.bySlug[slug] = &slugEntry{market: m, fetched: time.Now()}
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*gateway.Market), nil
}

func (c *Catalog) freshSlug(slug string) (*gateway.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.bySlug[slug]
	if !ok || time.Since(e.fetched) > cacheTTL {
		return nil, false
	}
	return e.market, true
}

// MinutesUntilResolution returns (end_time - now) in minutes, or nil if
// the market's end time is unknown (zero value) — callers must fail
// closed on nil (spec §4.3).
func MinutesUntilResolution(m gateway.Market) *float64 {
	if m.EndTime.IsZero() {
		return nil
	}
	minutes := time.Until(m.EndTime).Minutes()
	return &minutes
}
