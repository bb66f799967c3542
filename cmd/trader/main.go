// Command trader runs the autonomous live trader described by spec.md:
// it loads a JSON strategy configuration, wires the Trade Store, Strategy
// Kernel, Order Lifecycle Manager, Resolution Engine and Scheduler
// together, and runs until interrupted.
//
// The real Exchange Gateway (CLOB signing, wallet/allowance management)
// and Market Catalog (Gamma API) clients are external per spec §1's
// Non-goals; this binary only ships the paper-mode in-memory gateway
// (internal/gateway/paper) plus a static JSON market snapshot
// (internal/gateway/staticcatalog), matching the teacher's own
// paper/dry-run support.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/schenkmanjack/polymarket-agents-sub000/internal/book"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/catalog"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/config"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/deployment"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway/paper"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway/staticcatalog"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/gateway/stream"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/lifecycle"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/notify"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/resolution"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/scheduler"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/store"
	"github.com/schenkmanjack/polymarket-agents-sub000/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to JSON strategy config")
	marketsFile := flag.String("markets-file", "markets.json", "path to the static market snapshot (paper mode)")
	rolloutPhase := flag.String("rollout-phase", "", "optional rollout phase: paper|shadow|live-small|live")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	log := newLogger(cfg.LogLevel)

	if *rolloutPhase != "" {
		if err := config.ApplyRolloutPhase(&cfg, *rolloutPhase); err != nil {
			log.Fatal().Err(err).Msg("invalid rollout phase")
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.TradingMode != "paper" {
		log.Fatal().Msg("trading_mode=live requires an external exchange-gateway binding not included in this build (spec §1 Non-goal)")
	}

	deploymentID := deployment.New()
	log.Info().Str("deployment_id", deploymentID.String()).Str("strategy", string(cfg.Strategy)).Msg("trader starting")

	s, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}

	gw := paper.New(paper.Config{InitialBalanceUSDC: cfg.InitialPrincipal})

	catSource, err := staticcatalog.LoadFile(*marketsFile)
	if err != nil {
		log.Fatal().Err(err).Str("markets_file", *marketsFile).Msg("load market snapshot")
	}
	cat := catalog.New(catSource)

	bookView := book.New(gw)
	life := lifecycle.New(s, gw, log)
	gate := strategy.NewGate(s, gw)
	res := resolution.NewEngine(s, gw, cat, log, decimal.NewFromFloat(cfg.InitialPrincipal))
	notifier := notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)

	deps := scheduler.Deps{
		Cfg:          cfg,
		DeploymentID: deploymentID,
		Store:        s,
		Gateway:      gw,
		Catalog:      cat,
		BookView:     bookView,
		Lifecycle:    life,
		Resolution:   res,
		Notifier:     notifier,
		Log:          log,
	}

	switch cfg.Strategy {
	case config.StrategyLimitBuy:
		deps.LimitBuy = strategy.NewLimitBuyStrategy(strategy.LimitBuyConfig{
			YesBuyPrice:                cfg.YesBuyPrice,
			NoBuyPrice:                 cfg.NoBuyPrice,
			SellPrice:                  cfg.SellPrice,
			OrderSize:                  cfg.OrderSize,
			MinMinutesBeforeResolution: cfg.MinMinutesBeforeResolution,
			CancelThresholdMinutes:     cfg.CancelThresholdMinutes,
			BestBidMargin:              cfg.BestBidMargin,
			SellPriceLowerBound:        cfg.SellPriceLowerBound,
		}, life, s, log)
	default:
		deps.Threshold = strategy.NewThresholdStrategy(strategy.ThresholdConfig{
			Threshold:                  cfg.Threshold,
			UpperThreshold:             cfg.UpperThreshold,
			Margin:                     cfg.Margin,
			ThresholdSell:              cfg.ThresholdSell,
			MarginSell:                 cfg.MarginSell,
			KellyFraction:              cfg.KellyFraction,
			KellyScaleFactor:           cfg.KellyScaleFactor,
			DollarBetLimit:             cfg.DollarBetLimit,
			MaxMinutesBeforeResolution: cfg.MaxMinutesBeforeResolution,
		}, gate, bookView, life, s, log)
	}

	if cfg.UseWebsocketOrderbook && cfg.MarketWSURL != "" {
		deps.BookStream = stream.NewClient(cfg.MarketWSURL, log)
	}
	if cfg.UseWebsocketOrderStatus && cfg.UserWSURL != "" {
		deps.UserStream = stream.NewClient(cfg.UserWSURL, log)
	}

	sched := scheduler.New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler exited with error")
	}
	log.Info().Msg("trader stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
