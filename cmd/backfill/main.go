package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arcwallet/indexer-go/client"
	"github.com/arcwallet/indexer-go/events"
	"github.com/arcwallet/indexer-go/fetch"
	"github.com/arcwallet/indexer-go/internal/config"
	"github.com/arcwallet/indexer-go/internal/logger"
	"github.com/arcwallet/indexer-go/internal/metrics"
	"github.com/arcwallet/indexer-go/storage"
)

func main() {
	envFile := flag.String("env", ".env", "Path to the env file (optional)")
	from := flag.Uint64("from", 0, "First block to backfill (overrides BACKFILL_FROM)")
	to := flag.Uint64("to", 0, "Last block to backfill (overrides BACKFILL_TO)")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	fromBlock := cfg.Indexer.BackfillFrom
	toBlock := cfg.Indexer.BackfillTo
	if *from > 0 {
		fromBlock = *from
	}
	if *to > 0 {
		toBlock = *to
	}
	if toBlock < fromBlock {
		fmt.Fprintf(os.Stderr, "invalid range: to block %d precedes from block %d\n", toBlock, fromBlock)
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

	log.Info("starting backfill",
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.String("factory", cfg.Indexer.FactoryAddress),
		zap.Strings("modules", cfg.ModuleAddresses()),
		zap.Int("batch_size", cfg.Indexer.BatchSize))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fromBlock, toBlock, log); err != nil {
		log.Error("backfill failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("backfill complete", zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
}

func run(ctx context.Context, cfg *config.Config, from, to uint64, log *zap.Logger) error {
	db, err := storage.New(storage.Config{
		URL:        cfg.Store.URL,
		ServiceKey: cfg.Store.ServiceKey,
		Schema:     cfg.Store.Schema,
		Logger:     logger.WithComponent(log, "storage"),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(storage.DefaultMigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
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
		return fmt.Errorf("connect chain RPC: %w", err)
	}
	defer chain.Close()

	handler := events.NewHandler(store, chain, cfg.ModuleAddresses(),
		cfg.Modules.RecoveryPeriodSecs, logger.WithComponent(log, "events"))

	scanner := fetch.NewScanner(chain, store, handler, fetch.Config{
		FactoryAddress:    cfg.Indexer.FactoryAddress,
		ModuleAddresses:   cfg.ModuleAddresses(),
		StartBlock:        cfg.Indexer.StartBlock,
		BatchSize:         uint64(cfg.Indexer.BatchSize),
		PollInterval:      cfg.Indexer.PollInterval,
		ConfirmationDepth: cfg.Indexer.ConfirmationDepth,
	}, metrics.New(), logger.WithComponent(log, "scanner"))

	return scanner.RunBackfill(ctx, from, to)
}
