// Package staticcatalog implements gateway.MarketCatalogSource by reading
// a fixed JSON snapshot of markets from disk. The real market-listing
// client (Gamma API) is external per spec §1; this is the paper-mode
// stand-in cmd/trader uses so the Scheduler has something to iterate
// over without a live network dependency, mirroring the teacher's own
// dry-run/paper mode.
package staticcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
)

// Source is a MarketCatalogSource backed by an in-memory slice loaded
// once at startup.
type Source struct {
	markets []gateway.Market
	bySlug  map[string]*gateway.Market
}

// LoadFile reads a JSON array of gateway.Market from path.
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("staticcatalog: read %s: %w", path, err)
	}
	var markets []gateway.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("staticcatalog: parse %s: %w", path, err)
	}
	bySlug := make(map[string]*gateway.Market, len(markets))
	for i := range markets {
		bySlug[markets[i].Slug] = &markets[i]
	}
	return &Source{markets: markets, bySlug: bySlug}, nil
}

// ListMarkets returns every loaded market regardless of schedule; the
// Market Catalog's own filterRunning/isCurrentlyRunning logic narrows
// the result to currently-running ones.
func (s *Source) ListMarkets(ctx context.Context, schedule string) ([]gateway.Market, error) {
	return s.markets, nil
}

// MarketBySlug looks up one loaded market by slug.
func (s *Source) MarketBySlug(ctx context.Context, slug string) (*gateway.Market, error) {
	return s.bySlug[slug], nil
}
