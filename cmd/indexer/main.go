package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arcwallet/indexer-go/api"
	"github.com/arcwallet/indexer-go/client"
	"github.com/arcwallet/indexer-go/events"
	"github.com/arcwallet/indexer-go/fetch"
	"github.com/arcwallet/indexer-go/internal/config"
	"github.com/arcwallet/indexer-go/internal/logger"
	"github.com/arcwallet/indexer-go/internal/metrics"
	"github.com/arcwallet/indexer-go/storage"
)

// Version information (injected at build time).
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

const shutdownDeadline = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "Show version information and exit")
	envFile := flag.String("env", ".env", "Path to the env file (optional)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arcwallet-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	// Missing env file is fine; the environment may carry everything.
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:    cfg.Log.Level,
		ToFile:   cfg.Log.ToFile,
		FilePath: cfg.Log.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("factory", cfg.Indexer.FactoryAddress),
		zap.Strings("modules", cfg.ModuleAddresses()),
		zap.Uint64("start_block", cfg.Indexer.StartBlock),
		zap.Int("batch_size", cfg.Indexer.BatchSize),
		zap.Duration("poll_interval", cfg.Indexer.PollInterval),
		zap.Uint64("confirmation_depth", cfg.Indexer.ConfirmationDepth),
		zap.String("schema", cfg.Store.Schema))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := buildPipeline(cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer deps.close()

	healthServer := api.NewServer(api.Config{
		Port:              cfg.Health.Port,
		MaxBlocksBehind:   cfg.Health.MaxBlocksBehind,
		ConfirmationDepth: cfg.Indexer.ConfirmationDepth,
	}, deps.chain, deps.store, deps.scanner, deps.metrics.Handler(), logger.WithComponent(log, "health"))

	errCh := make(chan error, 2)
	go func() {
		errCh <- deps.scanner.Run(ctx)
	}()
	if cfg.Health.Enabled {
		go func() {
			errCh <- healthServer.Start()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("component failed", zap.Error(err))
		}
	}

	deps.scanner.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		_ = healthServer.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
		log.Info("shutdown complete")
	case <-time.After(shutdownDeadline):
		log.Error("shutdown deadline exceeded, exiting")
		os.Exit(1)
	}
}

type pipeline struct {
	chain   *client.Client
	db      *storage.DB
	store   *storage.Store
	scanner *fetch.Scanner
	metrics *metrics.Metrics
}

func (p *pipeline) close() {
	p.chain.Close()
	if err := p.store.Close(); err != nil {
		// Logged by the store itself; nothing more to do on the way out.
		_ = err
	}
}

// buildPipeline wires store, chain client, handlers, and scanner.
func buildPipeline(cfg *config.Config, log *zap.Logger) (*pipeline, error) {
	db, err := storage.New(storage.Config{
		URL:        cfg.Store.URL,
		ServiceKey: cfg.Store.ServiceKey,
		Schema:     cfg.Store.Schema,
		Logger:     logger.WithComponent(log, "storage"),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.RunMigrations(storage.DefaultMigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store := storage.NewStore(db)

	chain, err := client.NewClient(&client.Config{
		Endpoint:           cfg.RPC.URL,
		MethodPrefix:       cfg.RPC.MethodPrefix,
		RateLimitRequests:  cfg.RPC.RateLimitRequests,
		RateLimitWindow:    cfg.RPC.RateLimitWindow,
		TimestampCacheSize: cfg.RPC.TimestampCacheSize,
		Logger:             logger.WithComponent(log, "client"),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect chain RPC: %w", err)
	}

	handler := events.NewHandler(store, chain, cfg.ModuleAddresses(),
		cfg.Modules.RecoveryPeriodSecs, logger.WithComponent(log, "events"))

	m := metrics.New()
	scanner := fetch.NewScanner(chain, store, handler, fetch.Config{
		FactoryAddress:    cfg.Indexer.FactoryAddress,
		ModuleAddresses:   cfg.ModuleAddresses(),
		StartBlock:        cfg.Indexer.StartBlock,
		BatchSize:         uint64(cfg.Indexer.BatchSize),
		PollInterval:      cfg.Indexer.PollInterval,
		ConfirmationDepth: cfg.Indexer.ConfirmationDepth,
	}, m, logger.WithComponent(log, "scanner"))

	return &pipeline{chain: chain, db: db, store: store, scanner: scanner, metrics: m}, nil
}
