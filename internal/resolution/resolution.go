// Package resolution is the Resolution Engine (C7): it polls unresolved
// trades for their market's final outcome, reconciles the sell order one
// last time, applies the PnL formulas of spec §4.6, and owns the single
// mutable principal value — the re-architecture spec §9 calls for in
// place of "ambient principal held as a shared mutable float". Other
// components only ever receive a read-only snapshot via Principal().
package resolution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/catalog"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/feecalc"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

const sellReconcileRetries = 10

// Exported so tests can shrink them; production wiring leaves these at
// the spec §4.6 defaults (5s wait, 3s between up to 10 retries).
var (
	SellReconcileWait     = 5 * time.Second
	SellReconcileInterval = 3 * time.Second
)

// sellOutcome is the exactly-once classification of a final sell
// reconciliation (spec §4.6).
type sellOutcome int

const (
	sellFilledViaAPI sellOutcome = iota
	sellPartial
	sellUnfilledOrCancelled
)

// Engine owns the principal scalar and the resolution poll loop.
type Engine struct {
	Store   *store.Store
	GW      gateway.Gateway
	Catalog *catalog.Catalog
	Log     zerolog.Logger

	mu        sync.RWMutex
	principal decimal.Decimal
}

// NewEngine creates an Engine seeded with the recovered (or configured
// initial) principal.
func NewEngine(s *store.Store, gw gateway.Gateway, cat *catalog.Catalog, log zerolog.Logger, initialPrincipal decimal.Decimal) *Engine {
	return &Engine{Store: s, GW: gw, Catalog: cat, Log: log, principal: initialPrincipal}
}

// Principal returns a read-only snapshot of the current principal.
func (e *Engine) Principal() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.principal
}

// PollOnce runs one resolution pass over every unresolved trade of this
// deployment (spec §4.6, invoked by the scheduler every 30s).
func (e *Engine) PollOnce(ctx context.Context, deploymentID string) error {
	trades, err := e.Store.UnresolvedTrades(deploymentID)
	if err != nil {
		return fmt.Errorf("unresolved trades: %w", err)
	}
	for _, t := range trades {
		market, err := e.Catalog.BySlug(ctx, t.Slug)
		if err != nil {
			e.Log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("resolution: fetch market failed, will retry next poll")
			continue
		}
		if market == nil || market.Active {
			continue
		}
		if err := e.ResolveTrade(ctx, t, *market); err != nil {
			e.Log.Error().Err(err).Str("trade_id", t.TradeID).Msg("resolution: failed to resolve trade")
		}
	}
	return nil
}

// ResolveTrade performs the final sell reconciliation (if a sell is still
// outstanding), determines the winning side, applies the matching PnL
// formula, and persists the resolution exactly once.
func (e *Engine) ResolveTrade(ctx context.Context, t store.Trade, market gateway.Market) error {
	if t.BuyStatus == store.OrderStatusOpen && t.BuyOrderID != nil {
		if err := e.cancelOpenBuyAtResolution(ctx, t); err != nil {
			return fmt.Errorf("cancel open buy at resolution: %w", err)
		}
		refreshed, err := e.Store.GetTrade(t.TradeID)
		if err != nil {
			return fmt.Errorf("reload trade after buy cancel: %w", err)
		}
		t = *refreshed
	}

	if t.BuyStatus != store.OrderStatusFailed && t.SellOrderID != nil &&
		t.SellStatus != store.OrderStatusFilled && t.SellStatus != store.OrderStatusCancelled {
		outcome, state, err := e.reconcileSell(ctx, t)
		if err != nil {
			return fmt.Errorf("reconcile sell: %w", err)
		}
		if err := e.applySellOutcome(t, outcome, state); err != nil {
			return fmt.Errorf("apply sell outcome: %w", err)
		}
		refreshed, err := e.Store.GetTrade(t.TradeID)
		if err != nil {
			return fmt.Errorf("reload trade after sell reconciliation: %w", err)
		}
		t = *refreshed
	}

	winningSide := winningSideFor(market)
	outcomePrice := outcomePriceForSide(market, t.OrderSide)

	return e.settle(t, outcomePrice, winningSide)
}

func outcomePriceForSide(m gateway.Market, side store.OrderSide) decimal.Decimal {
	if side == store.OrderSideYes {
		return decimal.NewFromFloat(m.OutcomePrices[0])
	}
	return decimal.NewFromFloat(m.OutcomePrices[1])
}

// winningSideFor reads the exchange's published outcome prices: the side
// priced at 1.0 won. Returns nil if neither side has settled to 1.0 yet
// (spec §4.6 "winning side"), forcing the >0.5 fallback in settle.
func winningSideFor(m gateway.Market) *store.OrderSide {
	yes := store.OrderSideYes
	no := store.OrderSideNo
	if m.OutcomePrices[0] == 1.0 {
		return &yes
	}
	if m.OutcomePrices[1] == 1.0 {
		return &no
	}
	return nil
}

// cancelOpenBuyAtResolution implements the unconditional half of the
// stale-open policy (spec §4.4): a buy order still open when its market
// resolves is cancelled on the spot, independent of any per-order check
// count and independent of strategy.
func (e *Engine) cancelOpenBuyAtResolution(ctx context.Context, t store.Trade) error {
	if _, err := e.GW.CancelOrder(ctx, *t.BuyOrderID); err != nil {
		e.Log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("resolution: best-effort cancel of open buy failed")
	}
	e.Log.Info().Str("trade_id", t.TradeID).Msg("resolution: cancelling buy order still open at market resolution")
	return e.Store.MarkBuyCancelled(t.TradeID)
}

// reconcileSell waits 5s then polls get_order up to 10 times at 3s
// intervals, classifying the outcome exactly once (spec §4.6 "final
// sell-order reconciliation"). If the order is still live after every
// retry it is actively cancelled, but only once its market/asset id is
// confirmed to belong to this trade.
func (e *Engine) reconcileSell(ctx context.Context, t store.Trade) (sellOutcome, *gateway.OrderState, error) {
	if !sleepOrDone(ctx, SellReconcileWait) {
		return sellUnfilledOrCancelled, nil, ctx.Err()
	}

	var state *gateway.OrderState
	var err error
	for attempt := 1; attempt <= sellReconcileRetries; attempt++ {
		state, err = e.GW.GetOrder(ctx, *t.SellOrderID)
		if err == nil && state != nil {
			if gateway.IsFilled(state.Status, state.FilledAmount, state.TotalAmount) {
				return sellFilledViaAPI, state, nil
			}
			if state.FilledAmount > 0 && state.FilledAmount < state.TotalAmount &&
				(state.Status == gateway.OrderStatusOpen || state.Status == gateway.OrderStatusPartial) {
				return sellPartial, state, nil
			}
			if state.Status != gateway.OrderStatusOpen && state.Status != gateway.OrderStatusPartial {
				return sellUnfilledOrCancelled, state, nil
			}
		}
		if attempt < sellReconcileRetries {
			if !sleepOrDone(ctx, SellReconcileInterval) {
				return sellUnfilledOrCancelled, state, ctx.Err()
			}
		}
	}

	if state != nil && state.MarketID != "" && state.MarketID != t.MarketID {
		return sellUnfilledOrCancelled, state, fmt.Errorf("sell order %s market mismatch: got %s want %s", *t.SellOrderID, state.MarketID, t.MarketID)
	}
	if _, cancelErr := e.GW.CancelOrder(ctx, *t.SellOrderID); cancelErr != nil {
		e.Log.Warn().Err(cancelErr).Str("trade_id", t.TradeID).Msg("resolution: best-effort cancel of stale sell failed")
	}
	return sellUnfilledOrCancelled, state, nil
}

// applySellOutcome persists the reconciled sell amounts so settle can
// read them back from a freshly-loaded trade row.
func (e *Engine) applySellOutcome(t store.Trade, outcome sellOutcome, state *gateway.OrderState) error {
	sellPrice := decimal.Zero
	if t.SellPrice != nil {
		sellPrice = *t.SellPrice
	}

	switch outcome {
	case sellFilledViaAPI:
		shares := decimal.Zero
		if t.SellSize != nil {
			shares = *t.SellSize
		}
		if state != nil {
			shares = decimal.NewFromFloat(state.FilledAmount)
		}
		dollars := shares.Mul(sellPrice)
		fee := decimal.NewFromFloat(feecalc.Fee(sellPrice.InexactFloat64(), dollars.InexactFloat64()))
		return e.Store.UpdateSellFill(t.TradeID, store.OrderStatusFilled, shares, dollars, fee)
	case sellPartial:
		shares := decimal.Zero
		if state != nil {
			shares = decimal.NewFromFloat(state.FilledAmount)
		}
		dollars := shares.Mul(sellPrice)
		fee := decimal.NewFromFloat(feecalc.Fee(sellPrice.InexactFloat64(), dollars.InexactFloat64()))
		return e.Store.UpdateSellFill(t.TradeID, store.OrderStatusPartial, shares, dollars, fee)
	case sellUnfilledOrCancelled:
		return e.Store.MarkSellCancelledIfStillOpen(t.TradeID)
	}
	return nil
}

// settle computes and persists the PnL for a fully-reconciled trade
// (spec §4.6's four PnL cases: fully filled, partially filled, unfilled
// lost, unfilled won) and updates principal atomically.
func (e *Engine) settle(t store.Trade, outcomePrice decimal.Decimal, winningSide *store.OrderSide) error {
	betWon := false
	if winningSide != nil {
		betWon = t.OrderSide == *winningSide
	} else {
		betWon = outcomePrice.GreaterThan(decimal.NewFromFloat(0.5))
	}

	dollarsSpent := decimalOrZero(t.BuyDollarsSpent)
	buyFee := decimalOrZero(t.BuyFee)
	filledShares := decimalOrZero(t.BuyFilledShares)

	var payout, netPayout decimal.Decimal

	switch {
	case t.SellStatus == store.OrderStatusFilled:
		// Fully filled: the entire position was sold before resolution.
		sellDollars := decimalOrZero(t.SellDollarsReceived)
		sellFee := decimalOrZero(t.SellFee)
		payout = sellDollars
		netPayout = payout.Sub(sellFee).Sub(dollarsSpent).Sub(buyFee)

	case t.SellStatus == store.OrderStatusPartial:
		// Partially filled: the sold portion already has a realized
		// price; the unsold remainder settles at the market outcome.
		sellDollars := decimalOrZero(t.SellDollarsReceived)
		sellFee := decimalOrZero(t.SellFee)
		soldShares := decimalOrZero(t.SellSharesFilled)
		unsoldShares := filledShares.Sub(soldShares)

		var unsoldValue decimal.Decimal
		var unsoldFee float64
		if betWon {
			unsoldValue = outcomePrice.Mul(unsoldShares)
			unsoldFee = redemptionFee(outcomePrice.InexactFloat64(), unsoldValue.InexactFloat64())
		}
		payout = sellDollars.Add(unsoldValue)
		netPayout = payout.Sub(sellFee).Sub(decimal.NewFromFloat(unsoldFee)).Sub(dollarsSpent).Sub(buyFee)

	case !betWon:
		// Unfilled (or cancelled) sell, and the position lost: the full
		// buy cost is forfeit.
		payout = decimal.Zero
		netPayout = dollarsSpent.Add(buyFee).Neg()

	default:
		// Unfilled (or cancelled) sell, and the position won: the whole
		// position redeems at the winning outcome price (1.0).
		payout = outcomePrice.Mul(filledShares)
		fee := redemptionFee(outcomePrice.InexactFloat64(), payout.InexactFloat64())
		netPayout = payout.Sub(decimal.NewFromFloat(fee)).Sub(dollarsSpent).Sub(buyFee)
	}

	denom := dollarsSpent.Add(buyFee)
	roi := decimal.Zero
	if !denom.IsZero() {
		roi = netPayout.Div(denom)
	}

	resolvedSide := t.OrderSide
	if winningSide != nil {
		resolvedSide = *winningSide
	}

	return e.commitResolution(t.TradeID, t.PrincipalBefore, outcomePrice, payout, netPayout, roi, betWon, resolvedSide)
}

// redemptionFee computes the fee curve at settlement without feecalc's
// [0.01, 0.99] clamp: at resolution p is the exchange's published final
// outcome price, exactly 0 or 1, not a live order price — clamping it
// would charge a phantom fee on a redemption that the exchange doesn't
// actually charge (spec §4.6 S5: "estimated_sell_fee = 50 × 0.25 ×
// (1×0)² = 0").
func redemptionFee(p, value float64) float64 {
	variance := p * (1 - p)
	fee := value * 0.25 * variance * variance
	if fee < 0.0001 {
		return 0
	}
	return fee
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// commitResolution applies the single-source-of-truth principal update:
// new_principal = principal_before + net_payout, trusting the computed
// value over the in-memory one if they drift by more than $0.01 (spec
// §4.6 "principal update").
func (e *Engine) commitResolution(tradeID string, principalBefore, outcomePrice, payout, netPayout, roi decimal.Decimal, isWin bool, winningSide store.OrderSide) error {
	newPrincipal := principalBefore.Add(netPayout)

	e.mu.Lock()
	drift := e.principal.Sub(principalBefore).Abs()
	if drift.GreaterThan(decimal.NewFromFloat(0.01)) {
		e.Log.Warn().Str("trade_id", tradeID).Str("in_memory", e.principal.String()).
			Str("trade_principal_before", principalBefore.String()).
			Msg("resolution: principal drift detected, trusting computed value")
	}
	e.principal = newPrincipal
	e.mu.Unlock()

	return e.Store.UpdateResolution(tradeID, outcomePrice, payout, netPayout, roi, isWin, newPrincipal, winningSide)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
