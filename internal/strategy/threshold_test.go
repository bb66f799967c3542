package strategy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/book"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway/paper"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/lifecycle"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

func TestLimitPriceFor(t *testing.T) {
	cases := []struct {
		threshold, margin, upper, want float64
	}{
		{0.50, 0.02, 0.60, 0.52},
		{0.50, 0.02, 0.51, 0.51},  // clamped by upper_threshold
		{0.97, 0.05, 0.99, 0.99},  // clamped by the 0.99 ceiling
	}
	for _, c := range cases {
		if got := limitPriceFor(c.threshold, c.margin, c.upper); got != c.want {
			t.Errorf("limitPriceFor(%v,%v,%v) = %v, want %v", c.threshold, c.margin, c.upper, got, c.want)
		}
	}
}

func TestSizeOrderRespectsDollarBetLimit(t *testing.T) {
	principal := decimal.NewFromFloat(100)
	amount, shares := sizeOrder(principal, 0.25, 1, 25, 0.52)
	if amount > 25.0001 {
		t.Fatalf("order value %v exceeds dollar_bet_limit 25", amount)
	}
	if shares <= 0 {
		t.Fatalf("expected positive shares, got %v", shares)
	}
	// S1 sizing: ceil(25/0.52/(1 - 0.25*(0.52*0.48)^2)) = 49 shares
	// ($25.48); with dollar_bet_limit 25 here it is floored to 48 ($24.96).
	orderValue := shares * 0.52
	if orderValue < 20 || orderValue > 26 {
		t.Fatalf("order value %v out of expected range for S1", orderValue)
	}
}

func TestSizeOrderBumpsToOneDollarMinimum(t *testing.T) {
	principal := decimal.NewFromFloat(100)
	// Tiny kelly fraction would otherwise produce sub-$1 orders.
	amount, shares := sizeOrder(principal, 0.001, 1, 50, 0.5)
	if amount < 1 {
		t.Fatalf("expected order value bumped to >= $1, got %v", amount)
	}
	if shares <= 0 {
		t.Fatal("expected positive shares after bump")
	}
}

func newTestStrategy(t *testing.T) (*ThresholdStrategy, *store.Store, *paper.Gateway) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "t.db"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	gw := paper.New(paper.Config{InitialBalanceUSDC: 1000})
	bv := book.New(bookFetcherFromGateway{gw})
	life := lifecycle.New(s, gw, zerolog.Nop())
	gate := NewGate(s, gw)
	cfg := ThresholdConfig{
		Threshold: 0.50, UpperThreshold: 0.60, Margin: 0.02,
		KellyFraction: 0.25, KellyScaleFactor: 1, DollarBetLimit: 25,
	}
	return NewThresholdStrategy(cfg, gate, bv, life, s, zerolog.Nop()), s, gw
}

type bookFetcherFromGateway struct{ gw gateway.Gateway }

func (b bookFetcherFromGateway) FetchBook(ctx context.Context, tokenID string) (*gateway.Book, error) {
	return b.gw.FetchBook(ctx, tokenID)
}

// S1: buy triggers on YES when yes ask crosses threshold first.
func TestEvaluateMarketTriggersOnYes(t *testing.T) {
	ts, s, gw := newTestStrategy(t)
	gw.SetBook("yes-tok", gateway.Book{TokenID: "yes-tok", Asks: []gateway.BookLevel{{Price: 0.51, Size: 10}}})
	gw.SetBook("no-tok", gateway.Book{TokenID: "no-tok", Asks: []gateway.BookLevel{{Price: 0.40, Size: 10}}})

	m := gateway.Market{MarketID: "m1", Slug: "s1", YesTokenID: "yes-tok", NoTokenID: "no-tok", Active: true}
	if err := ts.EvaluateMarket(context.Background(), "dep1", m, nil, decimal.NewFromFloat(100)); err != nil {
		t.Fatalf("evaluate market: %v", err)
	}

	trades, err := s.TradesByDeploymentAndMarket("dep1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected one trade placed, got %d", len(trades))
	}
	if trades[0].OrderSide != store.OrderSideYes {
		t.Fatalf("expected YES side triggered first, got %v", trades[0].OrderSide)
	}
	if trades[0].BuyPrice.InexactFloat64() != 0.52 {
		t.Fatalf("expected limit price 0.52, got %v", trades[0].BuyPrice)
	}
}

// S2: no trigger when best ask is above upper_threshold.
func TestEvaluateMarketNoTriggerAboveUpper(t *testing.T) {
	ts, s, gw := newTestStrategy(t)
	gw.SetBook("yes-tok", gateway.Book{TokenID: "yes-tok", Asks: []gateway.BookLevel{{Price: 0.65, Size: 10}}})
	gw.SetBook("no-tok", gateway.Book{TokenID: "no-tok", Asks: []gateway.BookLevel{{Price: 0.40, Size: 10}}})

	m := gateway.Market{MarketID: "m1", Slug: "s2", YesTokenID: "yes-tok", NoTokenID: "no-tok", Active: true}
	// The trigger still fires (YES ask 0.65 >= threshold 0.50); the gate's
	// best_ask <= upper_threshold check is what blocks placement.
	_ = ts.EvaluateMarket(context.Background(), "dep1", m, nil, decimal.NewFromFloat(100))

	trades, err := s.TradesByDeploymentAndMarket("dep1", "s2")
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trade placed, got %d", len(trades))
	}
}

func TestStopLossChecksThresholdSellDisabled(t *testing.T) {
	ts, _, _ := newTestStrategy(t)
	ts.cfg.ThresholdSell = 0
	trade := store.Trade{BuyStatus: store.OrderStatusFilled}
	if err := ts.StopLossCheck(context.Background(), trade, 0.10); err != nil {
		t.Fatalf("expected no-op when threshold_sell disabled, got %v", err)
	}
}

// S3 (first breach): no stop-loss sell standing yet, best_bid drops below
// sell_threshold. Expected: initial stop-loss sell placed at
// sell_threshold - sell_margin (floor 0.01).
func TestStopLossCheckFirstBreachPlacesStopLossSell(t *testing.T) {
	ts, s, _ := newTestStrategy(t)
	ts.cfg.ThresholdSell = 0.40
	ts.cfg.MarginSell = 0.02

	tradeID, err := s.CreateTrade(store.CreateTradeParams{
		DeploymentID: "dep1", MarketID: "m1", Slug: "s1", TokenID: "yes-tok",
		OrderSide: store.OrderSideYes, ConfigSnapshot: "{}",
		BuyPrice: decimal.NewFromFloat(0.52), BuySizeOrdered: decimal.NewFromFloat(10),
		PrincipalBefore: decimal.NewFromFloat(100),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateBuyFill(tradeID, decimal.NewFromFloat(10), decimal.NewFromFloat(0.52), decimal.NewFromFloat(5.2), decimal.Zero, store.OrderStatusFilled); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSellOrder(tradeID, "sell-profit-take", decimal.NewFromFloat(0.99), decimal.NewFromFloat(10), store.OrderStatusOpen); err != nil {
		t.Fatal(err)
	}
	trade, err := s.GetTrade(tradeID)
	if err != nil {
		t.Fatal(err)
	}

	if err := ts.StopLossCheck(context.Background(), *trade, 0.35); err != nil {
		t.Fatalf("stop loss check: %v", err)
	}

	trade, err = s.GetTrade(tradeID)
	if err != nil {
		t.Fatal(err)
	}
	if trade.SellPrice == nil || trade.SellPrice.InexactFloat64() != 0.38 {
		t.Fatalf("expected stop-loss sell at 0.38, got %v", trade.SellPrice)
	}
}

// A stop-loss sell placed moments ago must not be re-priced again before
// stopLossRepriceWait elapses (spec §4.4 "> 5 seconds").
func TestStopLossCheckDoesNotRepriceBeforeWaitElapses(t *testing.T) {
	ts, s, _ := newTestStrategy(t)
	ts.cfg.ThresholdSell = 0.40
	ts.cfg.MarginSell = 0.02

	tradeID, err := s.CreateTrade(store.CreateTradeParams{
		DeploymentID: "dep1", MarketID: "m1", Slug: "s1", TokenID: "yes-tok",
		OrderSide: store.OrderSideYes, ConfigSnapshot: "{}",
		BuyPrice: decimal.NewFromFloat(0.52), BuySizeOrdered: decimal.NewFromFloat(10),
		PrincipalBefore: decimal.NewFromFloat(100),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateBuyFill(tradeID, decimal.NewFromFloat(10), decimal.NewFromFloat(0.52), decimal.NewFromFloat(5.2), decimal.Zero, store.OrderStatusFilled); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSellOrder(tradeID, "sell-stop-loss", decimal.NewFromFloat(0.38), decimal.NewFromFloat(10), store.OrderStatusOpen); err != nil {
		t.Fatal(err)
	}
	trade, err := s.GetTrade(tradeID)
	if err != nil {
		t.Fatal(err)
	}

	if err := ts.StopLossCheck(context.Background(), *trade, 0.30); err != nil {
		t.Fatalf("stop loss check: %v", err)
	}

	trade, err = s.GetTrade(tradeID)
	if err != nil {
		t.Fatal(err)
	}
	if trade.SellPrice == nil || trade.SellPrice.InexactFloat64() != 0.38 {
		t.Fatalf("expected sell price to stay at 0.38 (placed <5s ago), got %v", trade.SellPrice)
	}
}
