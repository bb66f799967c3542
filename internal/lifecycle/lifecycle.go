// Package lifecycle is the Order Lifecycle Manager (C5): the buy-order
// and sell-order state machines, their shared reconciler, and the
// corroboration rules multi-source fill detection requires (spec §4.4).
// It is grounded on internal/execution/tracker.go's order/fill
// bookkeeping shape, generalized from an in-memory tracker to a
// store-backed state machine per spec §9's "registries are a cache,
// the store is ground truth" guidance.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/engerr"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/feecalc"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

const (
	buyRetryAttempts  = 3
	sellVerifyRetries = 10

	// staleOpenMaxChecks is how many times a BUY order may be observed
	// "open" with zero fills before it is cancelled (spec §4.4 "Stale-open
	// policy").
	staleOpenMaxChecks = 5
)

// These are exported vars rather than consts so tests (in this package
// and callers like internal/strategy) can shrink them; production wiring
// leaves them at the spec §4.4 defaults.
var (
	BuyRetryBackoff    = 5 * time.Second
	SellVerifyWait     = 2 * time.Second
	SellVerifyInterval = 3 * time.Second
)

// Manager owns the buy/sell state machines for one deployment.
type Manager struct {
	Store *store.Store
	GW    gateway.Gateway
	Log   zerolog.Logger

	mu              sync.Mutex
	openBuyChecks   map[string]int // buy order_id -> consecutive open-with-no-fill checks
}

// New creates a Manager.
func New(s *store.Store, gw gateway.Gateway, log zerolog.Logger) *Manager {
	return &Manager{Store: s, GW: gw, Log: log, openBuyChecks: make(map[string]int)}
}

// PlaceBuyParams describes a single BUY to place and persist.
type PlaceBuyParams struct {
	DeploymentID   string
	MarketID       string
	Slug           string
	TokenID        string
	Side           store.OrderSide
	ConfigSnapshot string
	Price          float64
	Size           float64
	PrincipalNow   decimal.Decimal
}

// PlaceBuy inserts a trade row then attempts order placement, retrying
// transient transport failures up to 3x with a 5s backoff and
// classifying balance/min-size errors as terminal-no-retry (spec §4.4).
func (m *Manager) PlaceBuy(ctx context.Context, p PlaceBuyParams) (string, error) {
	tradeID, err := m.Store.CreateTrade(store.CreateTradeParams{
		DeploymentID:    p.DeploymentID,
		MarketID:        p.MarketID,
		Slug:            p.Slug,
		TokenID:         p.TokenID,
		OrderSide:       p.Side,
		ConfigSnapshot:  p.ConfigSnapshot,
		BuyPrice:        decimal.NewFromFloat(p.Price),
		BuySizeOrdered:  decimal.NewFromFloat(p.Size),
		PrincipalBefore: p.PrincipalNow,
	})
	if err != nil {
		return "", fmt.Errorf("create trade row: %w", err)
	}

	var resp gateway.OrderResponse
	for attempt := 1; attempt <= buyRetryAttempts; attempt++ {
		resp, err = m.GW.ExecuteOrder(ctx, p.Price, p.Size, gateway.SideBuy, p.TokenID)
		if err == nil && resp.OrderID != "" {
			break
		}
		if engerr.Is(err, engerr.ClassTerminal) {
			m.markBuyFailed(tradeID, err)
			return tradeID, err
		}
		if attempt == buyRetryAttempts {
			m.markBuyFailed(tradeID, err)
			return tradeID, fmt.Errorf("buy placement exhausted retries: %w", err)
		}
		m.Log.Warn().Err(err).Str("trade_id", tradeID).Int("attempt", attempt).Msg("buy placement failed, retrying")
		if !sleepOrDone(ctx, BuyRetryBackoff) {
			return tradeID, ctx.Err()
		}
	}

	if err := m.Store.UpdateBuyOrderID(tradeID, resp.OrderID); err != nil {
		return tradeID, fmt.Errorf("persist buy order id: %w", err)
	}
	return tradeID, nil
}

func (m *Manager) markBuyFailed(tradeID string, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := m.Store.MarkBuyFailed(tradeID, msg); err != nil {
		m.Log.Error().Err(err).Str("trade_id", tradeID).Msg("failed to record buy failure")
	}
}

// DetectBuyFill applies spec §4.4's three-evidence fill detection for a
// single trade's buy leg. Any one source is sufficient once cross-checked
// against the trade's own order_id; "missing from open orders" alone is
// never sufficient. Returns true if a fill (partial or full) was newly
// persisted.
func (m *Manager) DetectBuyFill(ctx context.Context, t store.Trade, fills []gateway.Fill, openOrderIDs map[string]bool) (bool, error) {
	if t.BuyOrderID == nil || *t.BuyOrderID == "" {
		return false, nil
	}
	orderID := *t.BuyOrderID

	// (a) trade-history fill referencing this order.
	for _, f := range fills {
		if f.ReferencesOrder(orderID) {
			return true, m.persistBuyFill(t, f.Price, f.Size)
		}
	}

	// (c) absent from open orders, corroborated by get_order.
	if !openOrderIDs[orderID] {
		state, err := m.GW.GetOrder(ctx, orderID)
		if err != nil {
			return false, nil // stale/missing-entity: fail closed, no invention of state
		}
		if state != nil && gateway.IsFilled(state.Status, state.FilledAmount, state.TotalAmount) {
			price := t.BuyPrice.InexactFloat64()
			return true, m.persistBuyFill(t, price, state.FilledAmount)
		}
	}

	return false, nil
}

// ApplyUserEvent handles a streamed user-channel order/trade event (fill
// evidence (b)).
func (m *Manager) ApplyUserEvent(t store.Trade, ev gateway.UserEvent) (bool, error) {
	if t.BuyOrderID == nil || ev.OrderID != *t.BuyOrderID {
		return false, nil
	}
	switch ev.Kind {
	case gateway.UserEventOrder:
		if gateway.IsFilled(ev.Status, ev.FillSize, 0) && ev.FillSize > 0 {
			price := t.BuyPrice.InexactFloat64()
			return true, m.persistBuyFill(t, price, ev.FillSize)
		}
	case gateway.UserEventTrade:
		price := t.BuyPrice.InexactFloat64()
		return true, m.persistBuyFill(t, price, ev.FillSize)
	}
	return false, nil
}

func (m *Manager) persistBuyFill(t store.Trade, fillPrice, filledSize float64) error {
	if t.BuyOrderID != nil {
		m.clearStaleOpenCheck(*t.BuyOrderID)
	}
	if fillPrice <= 0 {
		fillPrice = t.BuyPrice.InexactFloat64()
	}
	shares := decimal.NewFromFloat(filledSize)
	price := decimal.NewFromFloat(fillPrice)
	dollars := shares.Mul(price)
	fee := decimal.NewFromFloat(feecalc.Fee(fillPrice, dollars.InexactFloat64()))

	status := store.OrderStatusFilled
	if shares.LessThan(t.BuySizeOrdered) {
		status = store.OrderStatusPartial
	}
	return m.Store.UpdateBuyFill(t.TradeID, shares, price, dollars, fee, status)
}

// CancelSibling cancels the other side's buy order once one side fills
// (spec §4.4 "one-fills-cancels-the-other").
func (m *Manager) CancelSibling(ctx context.Context, sibling store.Trade) error {
	if sibling.BuyOrderID == nil {
		return nil
	}
	ok, err := m.GW.CancelOrder(ctx, *sibling.BuyOrderID)
	if err != nil || !ok {
		m.Log.Warn().Err(err).Str("trade_id", sibling.TradeID).Msg("cancel sibling buy: best-effort cancel failed")
	}
	return m.Store.MarkBuyCancelled(sibling.TradeID)
}

// PlaceSellVerified places a SELL and only persists sell_order_id after
// get_order confirms it, per spec §4.4/P8. It waits SellVerifyWait before
// the first check and retries up to sellVerifyRetries times.
func (m *Manager) PlaceSellVerified(ctx context.Context, t store.Trade, price, size float64) error {
	resp, err := m.GW.ExecuteOrder(ctx, price, size, gateway.SideSell, t.TokenID)
	if err != nil {
		return classifySellError(err)
	}
	if resp.OrderID == "" {
		return engerr.Terminal("place sell", fmt.Errorf("exchange returned no order id"))
	}

	if !sleepOrDone(ctx, SellVerifyWait) {
		return ctx.Err()
	}

	var state *gateway.OrderState
	for attempt := 1; attempt <= sellVerifyRetries; attempt++ {
		state, err = m.GW.GetOrder(ctx, resp.OrderID)
		if err == nil && state != nil {
			break
		}
		if attempt == sellVerifyRetries {
			return engerr.StaleEntity("verify sell order", fmt.Errorf("get_order never confirmed %s", resp.OrderID))
		}
		if !sleepOrDone(ctx, SellVerifyInterval) {
			return ctx.Err()
		}
	}

	return m.Store.UpdateSellOrder(t.TradeID, resp.OrderID, decimal.NewFromFloat(price), decimal.NewFromFloat(size), store.OrderStatusOpen)
}

func classifySellError(err error) error {
	if engerr.Is(err, engerr.ClassBalanceTransient) {
		return err
	}
	return engerr.Transient("place sell", err)
}

// RepriceSell cancels an existing sell and places a new one at newPrice,
// used by both the threshold stop-loss re-price and the limit-buy
// late-exit re-price (spec §4.4 "late-exit re-pricing").
func (m *Manager) RepriceSell(ctx context.Context, t store.Trade, newPrice, size float64) error {
	if t.SellOrderID != nil {
		if _, err := m.GW.CancelOrder(ctx, *t.SellOrderID); err != nil {
			m.Log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("reprice: cancel old sell failed, best-effort")
		}
	}
	return m.PlaceSellVerified(ctx, t, newPrice, size)
}

// DetectSellFill checks the three-evidence sources for a trade's sell
// leg, mirroring DetectBuyFill.
func (m *Manager) DetectSellFill(ctx context.Context, t store.Trade, fills []gateway.Fill, openOrderIDs map[string]bool) (bool, error) {
	if t.SellOrderID == nil || *t.SellOrderID == "" {
		return false, nil
	}
	orderID := *t.SellOrderID

	for _, f := range fills {
		if f.ReferencesOrder(orderID) {
			return true, m.persistSellFill(t, f.Price, f.Size)
		}
	}

	if !openOrderIDs[orderID] {
		state, err := m.GW.GetOrder(ctx, orderID)
		if err != nil {
			return false, nil
		}
		if state != nil && gateway.IsFilled(state.Status, state.FilledAmount, state.TotalAmount) {
			price := 0.0
			if t.SellPrice != nil {
				price = t.SellPrice.InexactFloat64()
			}
			return true, m.persistSellFill(t, price, state.FilledAmount)
		}
	}

	return false, nil
}

func (m *Manager) persistSellFill(t store.Trade, fillPrice, filledSize float64) error {
	if fillPrice <= 0 && t.SellPrice != nil {
		fillPrice = t.SellPrice.InexactFloat64()
	}
	shares := decimal.NewFromFloat(filledSize)
	price := decimal.NewFromFloat(fillPrice)
	dollars := shares.Mul(price)
	fee := decimal.NewFromFloat(feecalc.Fee(fillPrice, dollars.InexactFloat64()))

	status := store.OrderStatusFilled
	if t.SellSize != nil && shares.LessThan(*t.SellSize) {
		status = store.OrderStatusPartial
	}
	return m.Store.UpdateSellFill(t.TradeID, status, shares, dollars, fee)
}

// CancelStalledBuys cancels both sides of a pending pair when neither has
// filled and minutesUntilResolution has dropped to cancelThresholdMinutes
// or below (spec §4.4 "cancel-if-stalled").
func (m *Manager) CancelStalledBuys(ctx context.Context, trades []store.Trade, minutesUntilResolution, cancelThresholdMinutes float64) error {
	if minutesUntilResolution > cancelThresholdMinutes {
		return nil
	}
	for _, t := range trades {
		if t.BuyStatus == store.OrderStatusFilled || t.BuyStatus == store.OrderStatusPartial {
			return nil // someone already filled; not stalled
		}
	}
	for _, t := range trades {
		if t.BuyOrderID == nil {
			continue
		}
		if _, err := m.GW.CancelOrder(ctx, *t.BuyOrderID); err != nil {
			m.Log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("cancel stalled buy: best-effort cancel failed")
		}
		if err := m.Store.MarkBuyCancelled(t.TradeID); err != nil {
			return err
		}
	}
	return nil
}

// CheckStaleOpenBuy implements spec §4.4's general "Stale-open policy"
// for a single trade's BUY leg: cancel unconditionally if the market has
// already resolved while the order was still open, otherwise cancel
// once the order has been observed open-with-zero-fills
// staleOpenMaxChecks times. Applies to any strategy — it is independent
// of Limit-Buy's sibling-pair cancel-if-stalled (CancelStalledBuys).
func (m *Manager) CheckStaleOpenBuy(ctx context.Context, t store.Trade, marketActive bool) error {
	if t.BuyStatus != store.OrderStatusOpen || t.BuyOrderID == nil {
		return nil
	}
	orderID := *t.BuyOrderID

	if !marketActive {
		m.clearStaleOpenCheck(orderID)
		return m.cancelStaleOpenBuy(ctx, t, "market resolved before buy order filled")
	}

	count := m.bumpStaleOpenCheck(orderID)
	if count < staleOpenMaxChecks {
		return nil
	}
	m.clearStaleOpenCheck(orderID)
	return m.cancelStaleOpenBuy(ctx, t, fmt.Sprintf("order still open after %d status checks", count))
}

func (m *Manager) cancelStaleOpenBuy(ctx context.Context, t store.Trade, reason string) error {
	if _, err := m.GW.CancelOrder(ctx, *t.BuyOrderID); err != nil {
		m.Log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("stale-open buy: best-effort cancel failed")
	}
	m.Log.Warn().Str("trade_id", t.TradeID).Str("reason", reason).Msg("stale-open buy: cancelling")
	return m.Store.MarkBuyCancelled(t.TradeID)
}

func (m *Manager) bumpStaleOpenCheck(orderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openBuyChecks[orderID]++
	return m.openBuyChecks[orderID]
}

func (m *Manager) clearStaleOpenCheck(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.openBuyChecks, orderID)
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
