// Package main is the entry point for the order execution bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/alerting"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/config"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/engine"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway/binance"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway/paper"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/journal"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/metrics"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// Version information (set by build flags).
var (
	Version   = "0.3.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "twap":
		cmdTWAP(os.Args[2:])
	case "grid":
		cmdGrid(os.Args[2:])
	case "oco":
		cmdOCO(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Order Execution Bot - TWAP / Grid / OCO for USD-M Futures

Usage:
  orderbot <command> [options]

Commands:
  twap       Slice a large order into timed market chunks
  grid       Maintain a ladder of limit orders in a price band
  oco        Place a linked take-profit / stop-loss pair
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  orderbot twap --config config.yaml --symbol BTCUSDT --side BUY --quantity 0.5 --duration 10m --chunk 0.05
  orderbot grid --config config.yaml --symbol BTCUSDT --low 44000 --high 46000 --levels 5 --quantity 0.01
  orderbot oco --config config.yaml --symbol BTCUSDT --side SELL --quantity 0.1 --take-profit 46000 --stop-trigger 44000 --stop-limit 43500

Use "orderbot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("orderbot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Gateway: %s\n", cfg.Gateway.Type)
	fmt.Printf("  Poll interval: %v\n", cfg.ToEngineConfig().PollInterval)
	fmt.Printf("  Chunk timeout: %v\n", cfg.ToEngineConfig().ChunkTimeout)
	fmt.Printf("  Journal enabled: %v\n", cfg.Journal.Enabled)
	fmt.Printf("  Metrics enabled: %v\n", cfg.Metrics.Enabled)
}

func cmdTWAP(args []string) {
	fs := flag.NewFlagSet("twap", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	symbol := fs.String("symbol", "", "Trading symbol (required)")
	side := fs.String("side", "", "Order side: BUY or SELL (required)")
	quantity := fs.String("quantity", "", "Total quantity (required)")
	duration := fs.Duration("duration", 0, "Total execution window (required)")
	chunk := fs.String("chunk", "", "Maximum quantity per chunk (required)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	req := engine.TWAPRequest{
		Symbol:   *symbol,
		Duration: *duration,
	}
	var err error
	if req.Side, err = types.ParseSide(*side); err != nil {
		fatalFlag(fs, "invalid --side: %v", err)
	}
	if req.TotalQuantity, err = decimal.NewFromString(*quantity); err != nil {
		fatalFlag(fs, "invalid --quantity: %v", err)
	}
	if req.ChunkSize, err = decimal.NewFromString(*chunk); err != nil {
		fatalFlag(fs, "invalid --chunk: %v", err)
	}

	runPlan(*configPath, *verbose, func(ctx context.Context, e *engine.Engine) (*engine.Plan, error) {
		return e.StartTWAP(ctx, req)
	})
}

func cmdGrid(args []string) {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	symbol := fs.String("symbol", "", "Trading symbol (required)")
	low := fs.String("low", "", "Bottom of the price band (required)")
	high := fs.String("high", "", "Top of the price band (required)")
	levels := fs.Int("levels", 0, "Number of ladder levels (required, >= 2)")
	quantity := fs.String("quantity", "", "Quantity per level (required)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	req := engine.GridRequest{
		Symbol: *symbol,
		Levels: *levels,
	}
	var err error
	if req.PriceLow, err = decimal.NewFromString(*low); err != nil {
		fatalFlag(fs, "invalid --low: %v", err)
	}
	if req.PriceHigh, err = decimal.NewFromString(*high); err != nil {
		fatalFlag(fs, "invalid --high: %v", err)
	}
	if req.QuantityPerLevel, err = decimal.NewFromString(*quantity); err != nil {
		fatalFlag(fs, "invalid --quantity: %v", err)
	}

	runPlan(*configPath, *verbose, func(ctx context.Context, e *engine.Engine) (*engine.Plan, error) {
		return e.StartGrid(ctx, req)
	})
}

func cmdOCO(args []string) {
	fs := flag.NewFlagSet("oco", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	symbol := fs.String("symbol", "", "Trading symbol (required)")
	side := fs.String("side", "", "Order side: BUY or SELL (required)")
	quantity := fs.String("quantity", "", "Quantity for both legs (required)")
	takeProfit := fs.String("take-profit", "", "Take-profit limit price (required)")
	stopTrigger := fs.String("stop-trigger", "", "Stop trigger price (required)")
	stopLimit := fs.String("stop-limit", "", "Stop limit price (required)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	req := engine.OCORequest{
		Symbol: *symbol,
	}
	var err error
	if req.Side, err = types.ParseSide(*side); err != nil {
		fatalFlag(fs, "invalid --side: %v", err)
	}
	if req.Quantity, err = decimal.NewFromString(*quantity); err != nil {
		fatalFlag(fs, "invalid --quantity: %v", err)
	}
	if req.TakeProfitPrice, err = decimal.NewFromString(*takeProfit); err != nil {
		fatalFlag(fs, "invalid --take-profit: %v", err)
	}
	if req.StopTriggerPrice, err = decimal.NewFromString(*stopTrigger); err != nil {
		fatalFlag(fs, "invalid --stop-trigger: %v", err)
	}
	if req.StopLimitPrice, err = decimal.NewFromString(*stopLimit); err != nil {
		fatalFlag(fs, "invalid --stop-limit: %v", err)
	}

	runPlan(*configPath, *verbose, func(ctx context.Context, e *engine.Engine) (*engine.Plan, error) {
		return e.StartOCO(ctx, req)
	})
}

func fatalFlag(fs *flag.FlagSet, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	fs.Usage()
	os.Exit(1)
}

// runPlan wires the gateway, journal, metrics and engine, launches one plan
// and streams its reports until the plan finishes or a signal arrives.
func runPlan(configPath string, verbose bool, start func(context.Context, *engine.Engine) (*engine.Plan, error)) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, logLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Gateway
	var gw gateway.Gateway
	var stream *binance.MarkStream
	switch cfg.Gateway.Type {
	case "binance":
		client := binance.NewClient(binance.Config{
			APIKey:             cfg.Gateway.APIKey,
			APISecret:          cfg.Gateway.APISecret,
			BaseURL:            resolveBaseURL(cfg),
			RecvWindow:         cfg.RecvWindow(),
			Timeout:            cfg.GatewayTimeout(),
			RateLimitPerSecond: cfg.Gateway.RateLimitPerSecond,
		}, logger)
		defer func() { _ = client.Close() }()

		stream = binance.NewMarkStream(resolveWSURL(cfg), []string{"BTCUSDT", "ETHUSDT"}, logger)
		if err := stream.Start(ctx); err != nil {
			logger.Warn("mark price stream unavailable, falling back to REST", "error", err)
			stream = nil
		} else {
			client.UseMarkStream(stream)
			defer stream.Stop()
		}
		gw = client
	default:
		gw = paper.New(paper.Config{}, logger)
	}

	// Journal
	var jr engine.Journal
	if cfg.Journal.Enabled {
		sj, err := journal.NewSQLiteJournal(cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open journal", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sj.Close() }()
		jr = sj
	}

	// Metrics server
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(metrics.ServerConfig{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
		}, logger)
		if err := srv.Start(); err != nil {
			logger.Warn("metrics server failed to start", "error", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Alerting
	var alerter alerting.Alerter
	if cfg.Alerting.Enabled {
		alerter = alerting.NewConsoleAlerter(logger)
	}

	eng := engine.New(cfg.ToEngineConfig(), gw, jr, alerter, logger)

	logger.Info("orderbot starting",
		"version", Version,
		"gateway", cfg.Gateway.Type,
	)

	plan, err := start(ctx, eng)
	if err != nil {
		logger.Error("failed to start plan", "error", err)
		os.Exit(1)
	}

	logger.Info("plan started", "plan_id", plan.ID(), "type", plan.Type().String())

	// Stream reports until the plan finishes or a signal arrives.
	for {
		select {
		case r, ok := <-plan.Reports():
			if !ok {
				waitAndExit(eng, plan, logger)
				return
			}
			logReport(logger, r)
		case <-ctx.Done():
			logger.Info("shutdown signal received, cancelling plan", "plan_id", plan.ID())
			if err := eng.Cancel(plan.ID()); err != nil {
				logger.Warn("cancel failed", "error", err)
			}
			drainReports(plan, logger)
			waitAndExit(eng, plan, logger)
			return
		}
	}
}

func newLogger(cfg *config.Config, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Level != "" {
		switch cfg.Logging.Level {
		case "debug":
			opts.Level = slog.LevelDebug
		case "warn":
			opts.Level = slog.LevelWarn
		case "error":
			opts.Level = slog.LevelError
		}
	}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func resolveBaseURL(cfg *config.Config) string {
	if cfg.Gateway.BaseURL != "" {
		return cfg.Gateway.BaseURL
	}
	if cfg.Gateway.Testnet {
		return binance.TestnetBaseURL
	}
	return binance.MainnetBaseURL
}

func resolveWSURL(cfg *config.Config) string {
	if cfg.Gateway.WSURL != "" {
		return cfg.Gateway.WSURL
	}
	if cfg.Gateway.Testnet {
		return binance.TestnetWSURL
	}
	return binance.MainnetWSURL
}

func logReport(logger *slog.Logger, r engine.Report) {
	attrs := []any{
		"plan_id", r.PlanID,
		"event", r.Event,
	}
	if r.Detail != "" {
		attrs = append(attrs, "detail", r.Detail)
	}
	if r.Order != nil {
		attrs = append(attrs,
			"order_id", r.Order.OrderID,
			"status", r.Order.Status.String(),
			"filled", r.Order.FilledQuantity.String(),
		)
	}
	logger.Info("report", attrs...)
}

func drainReports(plan *engine.Plan, logger *slog.Logger) {
	for {
		select {
		case r, ok := <-plan.Reports():
			if !ok {
				return
			}
			logReport(logger, r)
		case <-time.After(15 * time.Second):
			logger.Warn("timed out draining reports")
			return
		}
	}
}

func waitAndExit(eng *engine.Engine, plan *engine.Plan, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	status := plan.Status()
	logger.Info("plan finished",
		"plan_id", plan.ID(),
		"status", status.String(),
		"filled", plan.FilledQuantity().String(),
	)
	if err := plan.Err(); err != nil {
		logger.Error("plan error", "error", err)
		os.Exit(1)
	}
}
