package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
)

type fakeSource struct {
	listCalls int
	slugCalls int
	markets   []gateway.Market
	bySlugMap map[string]*gateway.Market
}

func (f *fakeSource) ListMarkets(ctx context.Context, schedule string) ([]gateway.Market, error) {
	f.listCalls++
	return f.markets, nil
}

func (f *fakeSource) MarketBySlug(ctx context.Context, slug string) (*gateway.Market, error) {
	f.slugCalls++
	return f.bySlugMap[slug], nil
}

func TestListCurrentlyRunningFiltersAndCaches(t *testing.T) {
	now := time.Now()
	src := &fakeSource{markets: []gateway.Market{
		{Slug: "running", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), Active: true},
		{Slug: "future", StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour), Active: true},
		{Slug: "inactive", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), Active: false},
	}}
	c := New(src)

	running, err := c.ListCurrentlyRunning(context.Background(), Schedule1Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(running) != 1 || running[0].Slug != "running" {
		t.Fatalf("expected only 'running' market, got %+v", running)
	}

	if _, err := c.ListCurrentlyRunning(context.Background(), Schedule1Hour); err != nil {
		t.Fatal(err)
	}
	if src.listCalls != 1 {
		t.Errorf("expected cached second call, listCalls = %d", src.listCalls)
	}
}

func TestMinutesUntilResolutionNilWhenUnknown(t *testing.T) {
	if got := MinutesUntilResolution(gateway.Market{}); got != nil {
		t.Errorf("expected nil for zero end time, got %v", *got)
	}
}

func TestMinutesUntilResolutionComputed(t *testing.T) {
	m := gateway.Market{EndTime: time.Now().Add(30 * time.Minute)}
	got := MinutesUntilResolution(m)
	if got == nil {
		t.Fatal("expected non-nil minutes")
	}
	if *got < 29 || *got > 30 {
		t.Errorf("minutes = %v, want ~30", *got)
	}
}
