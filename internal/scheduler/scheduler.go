package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/book"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/catalog"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/config"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/deployment"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway/stream"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/health"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/lifecycle"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/notify"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/resolution"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/strategy"
)

// marketDetectionInterval is how often the Scheduler lists currently
// running markets and evaluates entries (spec §4.7).
const marketDetectionInterval = 60 * time.Second

// resolutionPollInterval is how often the Scheduler polls for resolved
// markets with open positions (spec §4.7).
const resolutionPollInterval = 30 * time.Second

// reconcilerFastInterval/reconcilerSlowInterval bound the order
// reconciler's adaptive poll: fast while trades are open, slow when idle
// (spec §4.7).
const (
	reconcilerFastInterval = 2 * time.Second
	reconcilerSlowInterval = 10 * time.Second
)

// makerAddress is the wallet address used to scope GetTrades lookups.
// Left blank for the paper gateway, which ignores it.
const makerAddress = ""

// Scheduler wires together every long-running component and supervises
// the concurrent tasks that drive the system (C8, spec §4.7).
type Scheduler struct {
	cfg          config.Config
	deploymentID deployment.ID

	store    *store.Store
	gw       gateway.Gateway
	cat      *catalog.Catalog
	bookView *book.View
	life     *lifecycle.Manager
	res      *resolution.Engine
	notifier *notify.Notifier
	log      zerolog.Logger

	threshold *strategy.ThresholdStrategy
	limitBuy  *strategy.LimitBuyStrategy

	bookStream *stream.Client
	userStream *stream.Client

	sv *Supervisor
}

// Deps collects every dependency the Scheduler wires together.
type Deps struct {
	Cfg          config.Config
	DeploymentID deployment.ID
	Store        *store.Store
	Gateway      gateway.Gateway
	Catalog      *catalog.Catalog
	BookView     *book.View
	Lifecycle    *lifecycle.Manager
	Resolution   *resolution.Engine
	Notifier     *notify.Notifier
	Threshold    *strategy.ThresholdStrategy
	LimitBuy     *strategy.LimitBuyStrategy
	BookStream   *stream.Client
	UserStream   *stream.Client
	Log          zerolog.Logger
}

// New builds a Scheduler from d. Exactly one of d.Threshold/d.LimitBuy
// should be non-nil, matching d.Cfg.Strategy.
func New(d Deps) *Scheduler {
	return &Scheduler{
		cfg:          d.Cfg,
		deploymentID: d.DeploymentID,
		store:        d.Store,
		gw:           d.Gateway,
		cat:          d.Catalog,
		bookView:     d.BookView,
		life:         d.Lifecycle,
		res:          d.Resolution,
		notifier:     d.Notifier,
		threshold:    d.Threshold,
		limitBuy:     d.LimitBuy,
		bookStream:   d.BookStream,
		userStream:   d.UserStream,
		log:          d.Log,
	}
}

// Run builds the supervised task set and blocks until ctx is cancelled,
// then stops the WebSocket clients and closes the store (spec §5's
// shutdown sequence: cancel, await, stop streams, close store).
func (sc *Scheduler) Run(ctx context.Context) error {
	sc.sv = NewSupervisor(sc.log)
	sc.sv.Add("market-detection", sc.runMarketDetection)
	sc.sv.Add("book-monitor", sc.runBookMonitor)
	sc.sv.Add("order-reconciler", sc.runOrderReconciler)
	sc.sv.Add("resolution-poller", sc.runResolutionPoller)
	sc.sv.Add("health-log", sc.runHealthLog)
	if sc.bookStream != nil {
		sc.sv.Add("book-stream-listener", sc.runBookStreamListener)
	}
	if sc.userStream != nil {
		sc.sv.Add("user-stream-listener", sc.runUserStreamListener)
	}

	sc.sv.Run(ctx)

	sc.log.Info().Msg("scheduler: shutting down")
	if err := sc.store.Close(); err != nil {
		sc.log.Warn().Err(err).Msg("scheduler: store close failed")
	}
	return nil
}

func (sc *Scheduler) schedule() catalog.Schedule {
	if sc.cfg.MarketType == config.MarketType1Hour {
		return catalog.Schedule1Hour
	}
	return catalog.Schedule15Minute
}

// runMarketDetection lists currently-running markets every
// marketDetectionInterval and hands each to the configured strategy
// entry point (spec §4.1/§4.5).
func (sc *Scheduler) runMarketDetection(ctx context.Context) error {
	ticker := time.NewTicker(marketDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.detectMarketsOnce(ctx)
		}
	}
}

func (sc *Scheduler) detectMarketsOnce(ctx context.Context) {
	markets, err := sc.cat.ListCurrentlyRunning(ctx, sc.schedule())
	if err != nil {
		sc.log.Warn().Err(err).Msg("market-detection: list failed")
		return
	}
	principal := sc.res.Principal()
	for _, m := range markets {
		minutes := catalog.MinutesUntilResolution(m)
		switch {
		case sc.threshold != nil:
			if err := sc.threshold.EvaluateMarket(ctx, sc.deploymentID.String(), m, minutes, principal); err != nil {
				sc.log.Warn().Err(err).Str("slug", m.Slug).Msg("market-detection: evaluate failed")
			}
		case sc.limitBuy != nil:
			if minutes == nil {
				continue
			}
			if err := sc.limitBuy.OpenPair(ctx, sc.deploymentID.String(), m, *minutes, principal); err != nil {
				sc.log.Warn().Err(err).Str("slug", m.Slug).Msg("market-detection: open pair failed")
			}
		}
	}
}

// runBookMonitor keeps the order-book cache warm and evaluates stop-loss
// / late-exit repricing against open positions (spec §4.2/§4.5).
func (sc *Scheduler) runBookMonitor(ctx context.Context) error {
	interval := time.Duration(sc.cfg.OrderbookPollIntervalSec * float64(time.Second))
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.monitorBooksOnce(ctx)
		}
	}
}

func (sc *Scheduler) monitorBooksOnce(ctx context.Context) {
	trades, err := sc.store.OpenSells(sc.deploymentID.String())
	if err != nil {
		sc.log.Warn().Err(err).Msg("book-monitor: open sells failed")
		return
	}
	for _, t := range trades {
		b, err := sc.bookView.FetchBook(ctx, t.TokenID)
		if err != nil {
			sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("book-monitor: fetch failed")
			continue
		}
		bid, ok := book.BestBid(*b)
		if !ok {
			continue
		}
		if sc.threshold != nil {
			if err := sc.threshold.StopLossCheck(ctx, t, bid); err != nil {
				sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("book-monitor: stop-loss check failed")
			}
		}
		if sc.limitBuy != nil {
			minutesUntilResolution := sc.minutesUntilResolutionForSlug(ctx, t.Slug)
			if err := sc.limitBuy.RepriceLateExit(ctx, t, bid, minutesUntilResolution); err != nil {
				sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("book-monitor: reprice failed")
			}
		}
	}
}

// runOrderReconciler detects fills via polling GetTrades/GetOpenOrders,
// and cancels stalled buys approaching resolution, polling fast while
// trades are open and slow otherwise (spec §4.4(a)/§4.7).
func (sc *Scheduler) runOrderReconciler(ctx context.Context) error {
	interval := reconcilerSlowInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
			busy := sc.reconcileOnce(ctx)
			if busy {
				interval = reconcilerFastInterval
			} else {
				interval = reconcilerSlowInterval
			}
		}
	}
}

// minutesUntilResolutionForSlug looks up slug's minutes-until-resolution,
// failing closed (a large minutes value, never triggering a cancel- or
// reprice-threshold check) when the market is unknown or its end time
// hasn't been resolved yet (spec §4.3's "callers must fail closed on
// nil").
func (sc *Scheduler) minutesUntilResolutionForSlug(ctx context.Context, slug string) float64 {
	const failClosedMinutes = 1e9
	m, err := sc.cat.BySlug(ctx, slug)
	if err != nil || m == nil {
		return failClosedMinutes
	}
	min := catalog.MinutesUntilResolution(*m)
	if min == nil {
		return failClosedMinutes
	}
	return *min
}

// minSellRetryAge is how long a buy must have been filled, with no sell
// order yet placed, before the reconciler retries sell placement (spec
// §4.4 reconciler step 5, "retry-missing-sell").
const minSellRetryAge = 30 * time.Second

// retryMissingSellOnce re-invokes sell placement for every unresolved
// trade whose buy filled at least minSellRetryAge ago and that still has
// no sell order — covering the case where OnBuyFilled's own synchronous
// PlaceSellVerified call failed and was only logged.
func (sc *Scheduler) retryMissingSellOnce(ctx context.Context) {
	trades, err := sc.store.UnresolvedTrades(sc.deploymentID.String())
	if err != nil {
		sc.log.Warn().Err(err).Msg("order-reconciler: retry-missing-sell query failed")
		return
	}
	for _, t := range trades {
		if t.BuyStatus != store.OrderStatusFilled || t.SellOrderID != nil {
			continue
		}
		if t.BuyFilledAt == nil || time.Since(*t.BuyFilledAt) < minSellRetryAge {
			continue
		}

		sc.log.Info().Str("trade_id", t.TradeID).Msg("order-reconciler: retrying missing sell placement")
		var err2 error
		switch {
		case sc.threshold != nil:
			err2 = sc.threshold.RetryMissingSell(ctx, t)
		case sc.limitBuy != nil:
			err2 = sc.limitBuy.RetryMissingSell(ctx, t)
		}
		if err2 != nil {
			sc.log.Warn().Err(err2).Str("trade_id", t.TradeID).Msg("order-reconciler: retry missing sell failed")
		}
	}
}

func (sc *Scheduler) reconcileOnce(ctx context.Context) bool {
	unresolved, err := sc.store.UnresolvedTrades(sc.deploymentID.String())
	if err != nil {
		sc.log.Warn().Err(err).Msg("order-reconciler: unresolved trades failed")
		return false
	}
	if len(unresolved) == 0 {
		return false
	}

	fills, err := sc.gw.GetTrades(ctx, makerAddress)
	if err != nil {
		sc.log.Warn().Err(err).Msg("order-reconciler: get trades failed")
		return true
	}
	openOrders, err := sc.gw.GetOpenOrders(ctx)
	if err != nil {
		sc.log.Warn().Err(err).Msg("order-reconciler: get open orders failed")
		return true
	}
	openOrderIDs := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		openOrderIDs[o.OrderID] = true
	}

	minutesUntilResolution := sc.minutesUntilResolutionForSlug(ctx, unresolved[0].Slug)

	for _, t := range unresolved {
		sc.reconcileTrade(ctx, t, fills, openOrderIDs)
	}

	sc.retryMissingSellOnce(ctx)

	// cancel-if-stalled (spec §4.4/§4.7) is a Limit-Buy-only concept: the
	// Threshold strategy never pre-places a paired BUY awaiting a sibling
	// fill, so there is nothing for it to cancel here.
	if sc.limitBuy != nil {
		if err := sc.limitBuy.CancelStalledPair(ctx, unresolved, minutesUntilResolution); err != nil {
			sc.log.Warn().Err(err).Msg("order-reconciler: cancel stalled pair failed")
		}
	}
	return true
}

func (sc *Scheduler) reconcileTrade(ctx context.Context, t store.Trade, fills []gateway.Fill, openOrderIDs map[string]bool) {
	if t.BuyStatus != store.OrderStatusFilled {
		filled, err := sc.life.DetectBuyFill(ctx, t, fills, openOrderIDs)
		if err != nil {
			sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("order-reconciler: detect buy fill failed")
			return
		}
		if filled {
			sc.onBuyFilled(ctx, t)
			return
		}
		marketActive := true
		if m, err := sc.cat.BySlug(ctx, t.Slug); err == nil && m != nil {
			marketActive = m.Active
		}
		if err := sc.life.CheckStaleOpenBuy(ctx, t, marketActive); err != nil {
			sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("order-reconciler: stale-open buy check failed")
		}
		return
	}
	if t.SellOrderID != nil {
		filled, err := sc.life.DetectSellFill(ctx, t, fills, openOrderIDs)
		if err != nil {
			sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("order-reconciler: detect sell fill failed")
			return
		}
		if filled && sc.notifier.Enabled() {
			sc.notifySellFill(ctx, t.TradeID)
		}
	}
}

func (sc *Scheduler) notifySellFill(ctx context.Context, tradeID string) {
	updated, err := sc.store.GetTrade(tradeID)
	if err != nil || updated == nil || updated.SellSharesFilled == nil || updated.SellDollarsReceived == nil {
		return
	}
	shares, _ := updated.SellSharesFilled.Float64()
	received, _ := updated.SellDollarsReceived.Float64()
	price := 0.0
	if shares != 0 {
		price = received / shares
	}
	if err := sc.notifier.NotifySellFill(ctx, updated.Slug, string(updated.OrderSide), price, shares, received); err != nil {
		sc.log.Warn().Err(err).Str("trade_id", tradeID).Msg("order-reconciler: notify sell fill failed")
	}
}

func (sc *Scheduler) onBuyFilled(ctx context.Context, t store.Trade) {
	updated, err := sc.store.GetTrade(t.TradeID)
	if err != nil || updated == nil {
		return
	}
	if sc.notifier.Enabled() && updated.BuyFillPrice != nil && updated.BuyFilledShares != nil {
		price, _ := updated.BuyFillPrice.Float64()
		shares, _ := updated.BuyFilledShares.Float64()
		if err := sc.notifier.NotifyBuyFill(ctx, updated.Slug, string(updated.OrderSide), price, shares); err != nil {
			sc.log.Warn().Err(err).Str("trade_id", updated.TradeID).Msg("order-reconciler: notify buy fill failed")
		}
	}
	if sc.threshold != nil {
		if err := sc.threshold.OnBuyFilled(ctx, *updated); err != nil {
			sc.log.Warn().Err(err).Str("trade_id", updated.TradeID).Msg("order-reconciler: on buy filled failed")
		}
	}
	if sc.limitBuy != nil {
		sibling, err := sc.store.TradesByDeploymentAndMarket(updated.DeploymentID, updated.Slug)
		if err != nil {
			return
		}
		for _, s := range sibling {
			if s.TradeID == updated.TradeID || s.BuyStatus == store.OrderStatusCancelled {
				continue
			}
			if err := sc.limitBuy.OnSiblingFill(ctx, *updated, s); err != nil {
				sc.log.Warn().Err(err).Str("trade_id", updated.TradeID).Msg("order-reconciler: on sibling fill failed")
			}
		}
	}
}

// runResolutionPoller polls for resolved markets with open positions
// every resolutionPollInterval (spec §4.6).
func (sc *Scheduler) runResolutionPoller(ctx context.Context) error {
	ticker := time.NewTicker(resolutionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sc.res.PollOnce(ctx, sc.deploymentID.String()); err != nil {
				sc.log.Warn().Err(err).Msg("resolution-poller: poll failed")
			}
		}
	}
}

// runHealthLog logs a periodic CPU/memory sample (spec §10 ambient
// stack, internal/health).
func (sc *Scheduler) runHealthLog(ctx context.Context) error {
	interval := sc.cfg.HealthLogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return health.LogPeriodically(ctx, interval, sc.log)
}

// runBookStreamListener consumes the market-channel WebSocket and keeps
// the Order-Book Views updated, falling back silently to the poll-driven
// book-monitor task once the channel closes (spec §4.2's "fall back to
// HTTP" guidance, since the listener's own retry budget already covers
// reconnect attempts).
func (sc *Scheduler) runBookStreamListener(ctx context.Context) error {
	msgs := sc.bookStream.Run(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b, err := gateway.ParseMarketMessage(msg.Raw)
			if err != nil {
				sc.log.Debug().Err(err).Msg("book-stream: parse failed")
				continue
			}
			sc.bookView.Update(*b)
		}
	}
}

// runUserStreamListener consumes the user-channel WebSocket and applies
// fills as they arrive, reducing reliance on the slower polling
// reconciler (spec §4.4(b)).
func (sc *Scheduler) runUserStreamListener(ctx context.Context) error {
	msgs := sc.userStream.Run(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, err := gateway.ParseUserMessage(msg.Raw)
			if err != nil {
				sc.log.Debug().Err(err).Msg("user-stream: parse failed")
				continue
			}
			sc.applyUserEvent(ctx, *ev)
		}
	}
}

func (sc *Scheduler) applyUserEvent(ctx context.Context, ev gateway.UserEvent) {
	unresolved, err := sc.store.UnresolvedTrades(sc.deploymentID.String())
	if err != nil {
		return
	}
	for _, t := range unresolved {
		matches := (t.BuyOrderID != nil && *t.BuyOrderID == ev.OrderID) ||
			(t.SellOrderID != nil && *t.SellOrderID == ev.OrderID)
		if !matches {
			continue
		}
		filled, err := sc.life.ApplyUserEvent(t, ev)
		if err != nil {
			sc.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("user-stream: apply event failed")
			continue
		}
		if filled && t.BuyOrderID != nil && *t.BuyOrderID == ev.OrderID {
			sc.onBuyFilled(ctx, t)
		}
		return
	}
}
