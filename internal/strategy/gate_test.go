package strategy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway/paper"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

func newTestGate(t *testing.T) (*Gate, *store.Store, *paper.Gateway) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "t.db"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	gw := paper.New(paper.Config{InitialBalanceUSDC: 1000})
	return NewGate(s, gw), s, gw
}

func baseParams() CheckParams {
	return CheckParams{
		DeploymentID:   "dep1",
		Slug:           "slug-a",
		MarketActive:   true,
		BestAsk:        0.52,
		UpperThreshold: 0.60,
		AmountInvested: 25,
		Principal:      decimal.NewFromFloat(100),
	}
}

func TestGateAllowsCleanState(t *testing.T) {
	g, _, _ := newTestGate(t)
	if err := g.Allow(context.Background(), baseParams()); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestGateRejectsBelowMinBetSize(t *testing.T) {
	g, _, _ := newTestGate(t)
	p := baseParams()
	p.Principal = decimal.NewFromFloat(0.50)
	if err := g.Allow(context.Background(), p); err == nil {
		t.Fatal("expected rejection for sub-$1 principal")
	}
}

func TestGateRejectsAboveUpperThreshold(t *testing.T) {
	g, _, _ := newTestGate(t)
	p := baseParams()
	p.BestAsk = 0.65
	if err := g.Allow(context.Background(), p); err == nil {
		t.Fatal("expected rejection for best_ask above upper_threshold")
	}
}

func TestGateRejectsAlreadyBetOnMarket(t *testing.T) {
	g, s, _ := newTestGate(t)
	if _, err := s.CreateTrade(store.CreateTradeParams{
		DeploymentID: "dep1", MarketID: "m", Slug: "slug-a", TokenID: "t",
		OrderSide: store.OrderSideYes, ConfigSnapshot: "{}",
		BuyPrice: decimal.NewFromFloat(0.5), BuySizeOrdered: decimal.NewFromFloat(1),
		PrincipalBefore: decimal.NewFromFloat(100),
	}); err != nil {
		t.Fatal(err)
	}
	if err := g.Allow(context.Background(), baseParams()); err == nil {
		t.Fatal("expected rejection for already-bet-on market")
	}
}

func TestGateFailsClosedOnUnknownMinutes(t *testing.T) {
	g, _, _ := newTestGate(t)
	p := baseParams()
	maxMinutes := 30.0
	p.MaxMinutesBeforeRes = &maxMinutes
	p.MinutesUntilResolution = nil
	if err := g.Allow(context.Background(), p); err == nil {
		t.Fatal("expected fail-closed rejection when minutes_until_resolution is unknown")
	}
}

func TestGateRejectsInsufficientBalance(t *testing.T) {
	g, _, _ := newTestGate(t)
	p := baseParams()
	p.AmountInvested = 10000
	if err := g.Allow(context.Background(), p); err == nil {
		t.Fatal("expected rejection for insufficient wallet balance")
	}
}
