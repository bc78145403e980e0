package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/config"
	"github.com/eddiefleurent/stamford_scalper/internal/dashboard"
	"github.com/eddiefleurent/stamford_scalper/internal/engine"
	"github.com/eddiefleurent/stamford_scalper/internal/orders"
	"github.com/eddiefleurent/stamford_scalper/internal/retry"
	"github.com/eddiefleurent/stamford_scalper/internal/storage"
	"github.com/sirupsen/logrus"
)

type Bot struct {
	config *config.Config
	broker broker.Broker
	engine *engine.Engine
	logger *log.Logger
	stop   chan struct{}
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags|log.Lshortfile)

	logger.Printf("Starting wick-break scalper in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	bot, err := newBot(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping bot...")
		close(bot.stop)
		cancel()
	}()

	if err := bot.Run(ctx); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}

	logger.Println("Bot stopped successfully")
}

func newBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	journal, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	var base broker.Broker
	if cfg.IsPaperTrading() {
		base = broker.NewPaperBroker()
	} else {
		base = broker.NewGatewayClient(cfg.Broker.GatewayURL, cfg.Broker.AccountID)
	}
	b := broker.NewCircuitBreakerBroker(base)

	retryClient := retry.NewClient(b, logger)
	manager := orders.NewManager(b, retryClient, logger, orders.Config{
		FillTimeout:    orders.DefaultConfig.FillTimeout,
		CallTimeout:    orders.DefaultConfig.CallTimeout,
		TickSize:       cfg.Strategy.TickSize,
		TakeProfitPct:  cfg.Strategy.TakeProfitPct,
		StopLossPct:    cfg.Strategy.StopLossPct,
		PartialSellPct: cfg.Strategy.PartialSellPct,
	})

	bot := &Bot{
		config: cfg,
		broker: b,
		engine: engine.New(cfg, b, manager, journal, logger, nil),
		logger: logger,
		stop:   make(chan struct{}),
	}

	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			dashLogger.SetLevel(lvl)
		}
		dash := dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, journal, b, dashLogger)
		go func() {
			if err := dash.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("Dashboard server error: %v", err)
			}
		}()
		go func() {
			<-bot.stop
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := dash.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Dashboard shutdown error: %v", err)
			}
		}()
	}

	return bot, nil
}

func (b *Bot) Run(ctx context.Context) error {
	b.logger.Println("Connecting to broker...")
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := b.broker.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() {
		if err := b.broker.Disconnect(); err != nil {
			b.logger.Printf("Disconnect error: %v", err)
		}
	}()
	b.logger.Println("Broker connection verified")

	ticker := time.NewTicker(b.config.GetCheckInterval())
	defer ticker.Stop()

	// Run immediately on start.
	b.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stop:
			return nil
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

func (b *Bot) runCycle(ctx context.Context) {
	b.logger.Println("Starting run...")
	report := b.engine.RunCycle(ctx)
	b.logger.Printf("Run %s complete: %d symbols evaluated, EOD ran=%v",
		report.RunID, len(report.Outcomes), report.EOD.Ran)
}
