package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"drop_engine/internal/auth"
	"drop_engine/internal/config"
	"drop_engine/internal/core"
	"drop_engine/internal/engine"
	"drop_engine/internal/infrastructure/metrics"
	"drop_engine/internal/receipts"
	"drop_engine/internal/storefront"
	"drop_engine/pkg/liveserver"
	"drop_engine/pkg/logging"
	"drop_engine/pkg/retry"
	"drop_engine/pkg/telemetry"
)

var version = "dev"

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	sellerFlag  = flag.String("seller", "", "Override the ordering seller slug")
	dryRunFlag  = flag.Bool("dry-run", false, "Stop before checkout, placing no order")
	yesFlag     = flag.Bool("yes", false, "Execute detected windows without prompting")
	versionFlag = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println("dropbot", version)
		return
	}

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *sellerFlag != "" {
		cfg.Order.Seller = *sellerFlag
		found := false
		for _, s := range cfg.Storefront.Sellers {
			if s == *sellerFlag {
				found = true
				break
			}
		}
		if !found {
			cfg.Storefront.Sellers = append(cfg.Storefront.Sellers, *sellerFlag)
		}
	}
	if *dryRunFlag {
		cfg.Order.DryRun = true
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)

	logger.Info("Starting dropbot",
		"version", version,
		"seller", cfg.Order.Seller,
		"watched", strings.Join(cfg.Storefront.Sellers, ","),
		"dry_run", cfg.Order.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tel *telemetry.Telemetry
	if cfg.Telemetry.EnableMetrics {
		tel, err = telemetry.Setup("dropbot")
		if err != nil {
			logger.Fatal("Failed to initialize telemetry", "error", err)
		}
		metricsSrv := metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Stop(shutdownCtx)
			_ = tel.Shutdown(shutdownCtx)
		}()
	}

	storefronts := make(map[string]core.IStorefront, len(cfg.Storefront.Sellers))
	for _, seller := range cfg.Storefront.Sellers {
		signer, err := auth.NewSessionSource(seller, cfg.Storefront.SessionToken.Reveal())
		if err != nil {
			logger.Fatal("No session available for seller", "seller", seller, "error", err)
		}
		storefronts[seller] = storefront.NewClient(storefront.Options{
			BaseURL:       cfg.Storefront.BaseURL,
			Seller:        seller,
			Timeout:       cfg.HTTPTimeout(),
			RatePerSecond: cfg.Timing.RateLimitPerSecond,
			Policy: retry.Policy{
				MaxAttempts:    cfg.Retry.MaxAttempts,
				InitialBackoff: cfg.InitialBackoff(),
				MaxBackoff:     retry.DefaultPolicy.MaxBackoff,
			},
			Signer: signer,
		}, logger)
	}

	var store core.IReceiptStore
	if cfg.Receipts.DBPath != "" {
		store, err = receipts.NewSQLiteStore(cfg.Receipts.DBPath)
		if err != nil {
			logger.Fatal("Failed to open receipt store", "path", cfg.Receipts.DBPath, "error", err)
		}
		defer store.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	var feed *liveserver.Server
	if cfg.Feed.Enabled {
		hub := liveserver.NewHub(logger)
		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
		feed = liveserver.NewServer(hub, logger, cfg.Feed.AllowedOrigins)
		addr := fmt.Sprintf(":%d", cfg.Feed.Port)
		g.Go(func() error {
			return feed.Start(ctx, addr)
		})
	}

	opts := engine.Options{
		Config:      cfg,
		Storefronts: storefronts,
		Receipts:    store,
		Logger:      logger,
	}
	if feed != nil {
		opts.Feed = feed
	}
	if !*yesFlag && !cfg.Order.DryRun {
		opts.Confirm = promptConfirm
	}
	eng := engine.New(opts)

	if healthy := engine.HealthySellers(eng.Preflight(ctx)); len(healthy) == 0 {
		logger.Fatal("No seller passed preflight, nothing to watch")
	}

	g.Go(func() error {
		return eng.Watch(ctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("Engine stopped", "error", err)
	}
	logger.Info("Shutdown complete")
}

// promptConfirm asks the operator whether to execute a detected window.
// Anything other than an explicit yes declines.
func promptConfirm(seller string, window *core.SellWindow) bool {
	fmt.Printf("Window %q (%s) goes live at %s for seller %s. Order? [y/N]: ",
		window.ID, window.Title, window.GoLiveAt.Format(time.RFC3339), seller)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
