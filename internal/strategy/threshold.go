package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/book"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/feecalc"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/lifecycle"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
)

// ThresholdConfig mirrors spec §6's threshold-strategy config keys.
type ThresholdConfig struct {
	Threshold               float64
	UpperThreshold           float64
	Margin                   float64
	ThresholdSell            float64
	MarginSell               float64
	KellyFraction            float64
	KellyScaleFactor         float64
	DollarBetLimit           float64
	MaxMinutesBeforeResolution *float64

	// ProfitTakePrice is hardcoded at 0.99 per spec §9's open question;
	// a future config field should replace this constant without
	// changing default behavior.
	// TODO: promote to a config field named profit_take_price.
}

const profitTakePrice = 0.99

// ThresholdStrategy implements spec §4.5.1: YES-first trigger detection,
// Kelly sizing with fee-adjusted rounding, in-memory bet-set reservation,
// immediate profit-take exit, and a stop-loss monitor.
type ThresholdStrategy struct {
	cfg   ThresholdConfig
	gate  *Gate
	book  *book.View
	life  *lifecycle.Manager
	store *store.Store
	log   zerolog.Logger

	mu           sync.Mutex
	reserved     map[string]bool
	repriceCount map[string]int
}

// stopLossRepriceWait and maxStopLossReprices bound the stop-loss
// re-pricing ladder: a standing stop-loss sell must sit unfilled for
// this long before it is cancelled and re-placed lower, and no trade
// gets more than this many re-prices (spec §4.4 "Re-pricing (Threshold
// strategy only)", scenario S3).
const (
	stopLossRepriceWait = 5 * time.Second
	maxStopLossReprices = 3
)

// NewThresholdStrategy constructs a ThresholdStrategy.
func NewThresholdStrategy(cfg ThresholdConfig, gate *Gate, bookView *book.View, life *lifecycle.Manager, s *store.Store, log zerolog.Logger) *ThresholdStrategy {
	return &ThresholdStrategy{
		cfg:          cfg,
		gate:         gate,
		book:         bookView,
		life:         life,
		store:        s,
		log:          log,
		reserved:     make(map[string]bool),
		repriceCount: make(map[string]int),
	}
}

// reserve registers slug in the in-memory bet-set before placement so
// YES and NO cannot both trigger in the same iteration (spec §4.5.1).
// Returns false if already reserved.
func (ts *ThresholdStrategy) reserve(slug string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.reserved[slug] {
		return false
	}
	ts.reserved[slug] = true
	return true
}

func (ts *ThresholdStrategy) rollback(slug string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.reserved, slug)
}

// EvaluateMarket fetches both books, checks for a trigger (YES first),
// runs the pre-trade gate, sizes the order, and places the buy.
func (ts *ThresholdStrategy) EvaluateMarket(ctx context.Context, deploymentID string, m gateway.Market, minutesUntilResolution *float64, principal decimal.Decimal) error {
	if !ts.reserve(m.Slug) {
		return nil // already being handled this iteration
	}

	yesBook, err := ts.book.FetchBook(ctx, m.YesTokenID)
	if err != nil {
		ts.rollback(m.Slug)
		return fmt.Errorf("fetch yes book: %w", err)
	}
	noBook, err := ts.book.FetchBook(ctx, m.NoTokenID)
	if err != nil {
		ts.rollback(m.Slug)
		return fmt.Errorf("fetch no book: %w", err)
	}

	trigger := book.CheckThreshold(*yesBook, *noBook, ts.cfg.Threshold)
	if trigger == nil {
		ts.rollback(m.Slug)
		return nil
	}

	tokenID := m.YesTokenID
	side := store.OrderSideYes
	if trigger.Side == book.ThresholdSideNo {
		tokenID = m.NoTokenID
		side = store.OrderSideNo
	}

	limitPrice := limitPriceFor(ts.cfg.Threshold, ts.cfg.Margin, ts.cfg.UpperThreshold)

	amountInvested, shares := sizeOrder(principal, ts.cfg.KellyFraction, ts.cfg.KellyScaleFactor, ts.cfg.DollarBetLimit, limitPrice)
	if shares <= 0 {
		ts.rollback(m.Slug)
		return fmt.Errorf("sizing produced zero shares at price %.4f", limitPrice)
	}

	if err := ts.gate.Allow(ctx, CheckParams{
		DeploymentID:           deploymentID,
		Slug:                   m.Slug,
		MarketActive:           m.Active,
		BestAsk:                trigger.Ask,
		UpperThreshold:         ts.cfg.UpperThreshold,
		AmountInvested:         amountInvested,
		Principal:              principal,
		MinutesUntilResolution: minutesUntilResolution,
		MaxMinutesBeforeRes:    ts.cfg.MaxMinutesBeforeResolution,
	}); err != nil {
		ts.rollback(m.Slug)
		return err
	}

	_, err = ts.life.PlaceBuy(ctx, lifecycle.PlaceBuyParams{
		DeploymentID:   deploymentID,
		MarketID:       m.MarketID,
		Slug:           m.Slug,
		TokenID:        tokenID,
		Side:           side,
		ConfigSnapshot: ts.snapshotJSON(),
		Price:          limitPrice,
		Size:           shares,
		PrincipalNow:   principal,
	})
	if err != nil {
		ts.rollback(m.Slug)
		return fmt.Errorf("place buy: %w", err)
	}

	return nil
}

func (ts *ThresholdStrategy) snapshotJSON() string {
	return fmt.Sprintf(
		`{"threshold":%v,"upper_threshold":%v,"margin":%v,"threshold_sell":%v,"margin_sell":%v,"kelly_fraction":%v,"kelly_scale_factor":%v,"dollar_bet_limit":%v}`,
		ts.cfg.Threshold, ts.cfg.UpperThreshold, ts.cfg.Margin, ts.cfg.ThresholdSell,
		ts.cfg.MarginSell, ts.cfg.KellyFraction, ts.cfg.KellyScaleFactor, ts.cfg.DollarBetLimit,
	)
}

// limitPriceFor computes the fixed limit price for a threshold trigger:
// min(buy_threshold + buy_margin, upper_threshold, 0.99).
func limitPriceFor(threshold, margin, upper float64) float64 {
	price := threshold + margin
	if upper < price {
		price = upper
	}
	if price > 0.99 {
		price = 0.99
	}
	return price
}

// sizeOrder implements spec §4.5.1's sizing algorithm: Kelly amount
// capped by dollar_bet_limit, converted to fee-adjusted gross shares,
// bumped to the $1 minimum order value if needed (rejecting if that
// exceeds the bet limit).
func sizeOrder(principal decimal.Decimal, kellyFraction, kellyScale, dollarBetLimit, price float64) (amountInvested, shares float64) {
	principalF, _ := principal.Float64()
	kellyAmount := principalF * kellyFraction * kellyScale
	amountInvested = math.Min(kellyAmount, dollarBetLimit)
	if amountInvested <= 0 || price <= 0 {
		return 0, 0
	}

	netShares := amountInvested / price
	grossShares := feecalc.SharesForNetFill(netShares, price)

	orderValue := grossShares * price
	if orderValue < 1.0 {
		bumped := math.Ceil(1.0 / price)
		if bumped*price > dollarBetLimit {
			return 0, 0
		}
		grossShares = bumped
		orderValue = grossShares * price
	}
	if orderValue > dollarBetLimit {
		grossShares = math.Floor(dollarBetLimit / price)
		orderValue = grossShares * price
	}

	return orderValue, grossShares
}

// OnBuyFilled places the standing profit-take SELL immediately after a
// buy fills (spec §4.5.1 "Exit").
func (ts *ThresholdStrategy) OnBuyFilled(ctx context.Context, t store.Trade) error {
	if t.BuyFilledShares == nil {
		return fmt.Errorf("buy fill shares missing for trade %s", t.TradeID)
	}
	shares := math.Floor(t.BuyFilledShares.InexactFloat64())
	if shares <= 0 {
		return nil
	}
	return ts.life.PlaceSellVerified(ctx, t, profitTakePrice, shares)
}

// StopLossCheck evaluates the stop-loss monitor for one filled trade
// against the current best bid (spec §4.5.1). The first breach cancels
// whatever sell is standing (the 0.99 profit-take, if still there) and
// places a stop-loss sell at sell_threshold - sell_margin, floored at
// 0.01. If that stop-loss sell then sits unfilled for more than 5s, it
// is re-priced down again at price - max(sell_margin, 0.01), up to
// maxStopLossReprices times per trade (spec §4.4 "Re-pricing (Threshold
// strategy only)", scenario S3).
func (ts *ThresholdStrategy) StopLossCheck(ctx context.Context, t store.Trade, bestBid float64) error {
	if ts.cfg.ThresholdSell <= 0 {
		return nil
	}
	if t.BuyStatus != store.OrderStatusFilled && t.BuyStatus != store.OrderStatusPartial {
		return nil
	}
	if bestBid >= ts.cfg.ThresholdSell {
		return nil
	}

	size := 0.0
	if t.BuyFilledShares != nil {
		size = t.BuyFilledShares.InexactFloat64()
	}
	if size <= 0 {
		return nil
	}

	margin := ts.cfg.MarginSell
	if margin < 0.01 {
		margin = 0.01
	}

	hasStopLossSell := t.SellStatus == store.OrderStatusOpen && t.SellPrice != nil && t.SellPrice.InexactFloat64() < profitTakePrice

	if !hasStopLossSell {
		// First breach: whatever's standing (the 0.99 profit-take, or
		// nothing yet) gets replaced with the initial stop-loss sell.
		newPrice := ts.cfg.ThresholdSell - ts.cfg.MarginSell
		if newPrice < 0.01 {
			newPrice = 0.01
		}
		ts.setRepriceCount(t.TradeID, 0)
		return ts.life.RepriceSell(ctx, t, newPrice, size)
	}

	// A stop-loss sell already stands; only chase it lower once it has
	// sat unfilled for stopLossRepriceWait, and only up to the cap.
	if t.SellPlacedAt == nil || time.Since(*t.SellPlacedAt) < stopLossRepriceWait {
		return nil
	}
	count := ts.getRepriceCount(t.TradeID)
	if count >= maxStopLossReprices {
		ts.log.Info().Str("trade_id", t.TradeID).Int("reprice_count", count).
			Msg("stop-loss: max re-price attempts reached, keeping current order")
		return nil
	}

	currentPrice := t.SellPrice.InexactFloat64()
	newPrice := currentPrice - margin
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	if newPrice >= currentPrice {
		return nil
	}
	ts.setRepriceCount(t.TradeID, count+1)
	return ts.life.RepriceSell(ctx, t, newPrice, size)
}

func (ts *ThresholdStrategy) getRepriceCount(tradeID string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.repriceCount[tradeID]
}

func (ts *ThresholdStrategy) setRepriceCount(tradeID string, n int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.repriceCount[tradeID] = n
}

// RetryMissingSell re-attempts the profit-take SELL placement for a
// trade whose BUY filled but an earlier sell placement attempt failed
// (spec §4.4 reconciler step 5, "retry-missing-sell").
func (ts *ThresholdStrategy) RetryMissingSell(ctx context.Context, t store.Trade) error {
	return ts.OnBuyFilled(ctx, t)
}

// RevalidateRecentSell re-checks a sell flagged "filled" less than 2
// minutes ago whose market hasn't resolved yet; if the exchange still
// shows it live, the local status is reverted to open (spec §4.5.1).
func (ts *ThresholdStrategy) RevalidateRecentSell(ctx context.Context, t store.Trade, gw gateway.Gateway) error {
	if t.SellStatus != store.OrderStatusFilled || t.SellOrderID == nil || t.SellFilledAt == nil {
		return nil
	}
	if time.Since(*t.SellFilledAt) >= 2*time.Minute {
		return nil
	}
	state, err := gw.GetOrder(ctx, *t.SellOrderID)
	if err != nil || state == nil {
		return nil
	}
	if !gateway.IsFilled(state.Status, state.FilledAmount, state.TotalAmount) {
		return ts.store.UpdateSellOrder(t.TradeID, *t.SellOrderID, *t.SellPrice, *t.SellSize, store.OrderStatusOpen)
	}
	return nil
}
