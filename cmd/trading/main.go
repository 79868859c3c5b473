package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/config"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/reconcile"
	"github.com/meridian-lab/meridian-trading/internal/telemetry"
	"github.com/meridian-lab/meridian-trading/internal/trading/engine"
	enginev1 "github.com/meridian-lab/meridian-trading/internal/trading/engine/engine_v1"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

func main() {
	// Define command-line flags
	configFlag := flag.String("config", "", "Path to deployment config YAML (required)")
	flag.Parse()

	// Validate required flags
	if *configFlag == "" {
		fmt.Println("Error: --config flag is required")
		flag.Usage()
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// API keys may come from the environment instead of the config file
	if cfg.Broker.ApiKey == "" {
		cfg.Broker.ApiKey = os.Getenv("BINANCE_API_KEY")
	}
	if cfg.Broker.SecretKey == "" {
		cfg.Broker.SecretKey = os.Getenv("BINANCE_SECRET_KEY")
	}
	if cfg.Broker.ApiKey == "" || cfg.Broker.SecretKey == "" {
		fmt.Println("Error: broker credentials required via config or BINANCE_API_KEY/BINANCE_SECRET_KEY env")
		os.Exit(1)
	}

	zlog, err := logger.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Create engine
	eng, err := enginev1.NewLiveTradingEngineV1()
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// Initialize engine
	if err := eng.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	// Set broker client
	client, err := broker.NewClient(cfg.BrokerType(), cfg.BinanceConfig())
	if err != nil {
		log.Fatalf("Failed to create broker client: %v", err)
	}
	eng.SetBroker(client)

	// Set metrics
	metrics := telemetry.New()
	eng.SetMetrics(metrics)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	// Serve Prometheus metrics when an address is configured
	if addr := cfg.Engine.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.ListenAndServe(ctx, addr, zlog); err != nil {
				fmt.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	// Setup callbacks
	onOpened := engine.OnPositionOpenedCallback(func(trade types.Trade) {
		fmt.Printf("[%s] OPEN %s %s %d lots @ %.4f (margin %.2f)\n",
			trade.EntryTime.Format("15:04:05"), trade.Instrument, trade.Side,
			trade.Lots, trade.EntryPrice, trade.MarginUsed)
	})
	onClosed := engine.OnPositionClosedCallback(func(trade types.Trade) {
		reason := trade.ExitReason.TakeOr(types.ExitReasonExternal)
		fmt.Printf("CLOSE %s %s %d lots @ %.4f pnl=%.2f (%s)\n",
			trade.Instrument, trade.Side, trade.Lots,
			trade.ExitPrice.TakeOr(trade.LastPrice), trade.RealizedPnL, reason)
	})
	onSignal := engine.OnSignalCallback(func(record types.SignalRecord) {
		detail := record.Detail
		if detail != "" {
			detail = " (" + detail + ")"
		}
		fmt.Printf("[%s] %s: %s conf=%.2f -> %s%s\n",
			record.Time.Format("15:04:05"), record.Instrument,
			record.Signal.Action, record.Signal.Confidence, record.Outcome, detail)
	})
	onConflict := engine.OnReconcileConflictCallback(func(conflict reconcile.Conflict) {
		fmt.Printf("CONFLICT %s: local %s x%d vs broker %s x%d, not touching it\n",
			conflict.Instrument, conflict.LocalSide, conflict.LocalLots,
			conflict.BrokerSide, conflict.BrokerLots)
	})
	onError := engine.OnErrorCallback(func(err error) {
		fmt.Printf("Error: %v\n", err)
	})

	callbacks := engine.LiveTradingCallbacks{
		OnPositionOpened:    &onOpened,
		OnPositionClosed:    &onClosed,
		OnSignal:            &onSignal,
		OnReconcileConflict: &onConflict,
		OnError:             &onError,
	}

	// Run engine
	fmt.Printf("Starting live trading with %d instruments on %s...\n",
		len(cfg.Symbols()), cfg.Broker.Type)
	err = eng.Run(ctx, callbacks)
	if err != nil {
		if err == context.Canceled {
			fmt.Println("Trading stopped by user")
			os.Exit(0)
		}
		log.Fatalf("Engine error: %v", err)
	}
}
