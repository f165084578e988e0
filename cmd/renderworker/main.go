//go:build cgo

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/config"
	"github.com/glyphora/glyph-indexer/internal/content"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/providers/ethereum"
	"github.com/glyphora/glyph-indexer/internal/render"
	"github.com/glyphora/glyph-indexer/internal/scheduler"
	"github.com/glyphora/glyph-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadRenderWorkerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "render-worker",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Glyphora render worker")

	// Connect to database
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clock := adapter.NewClock()

	// Connect to the chain RPC endpoint for content fetches
	eth, err := adapter.NewEthClientDialer().Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to Ethereum RPC",
			zap.Error(err),
			zap.String("rpc_url", cfg.Ethereum.RPCURL))
	}
	chainClient := ethereum.NewClient(eth, ethereum.Config{
		ArtAddress:         cfg.Contracts.ArtAddress,
		MarketplaceAddress: cfg.Contracts.MarketplaceAddress,
	})
	defer chainClient.Close()

	// Build the render pipeline
	contentCache := content.NewCache(chainClient, dataStore)
	rasterizer, err := render.NewRasterizer(
		adapter.NewResvgClient(),
		adapter.NewImageEncoder(),
		adapter.NewFileSystem(),
		clock,
		render.RasterizerConfig{
			OutputDir: cfg.Render.OutputDir,
			Width:     cfg.Render.Width,
		},
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create rasterizer", zap.Error(err))
	}
	queue := render.NewQueue(dataStore, contentCache, rasterizer, render.Config{
		BatchSize:  cfg.Render.BatchSize,
		BatchDelay: cfg.Render.BatchDelay,
	}, clock)

	// Start the render loop
	loop := scheduler.NewRenderLoop(scheduler.RenderLoopConfig{
		Interval: cfg.Render.Interval,
	}, queue, clock)

	errCh := make(chan error, 1)
	go func() {
		if err := loop.Start(ctx); err != nil {
			errCh <- fmt.Errorf("scheduler %s: %w", loop.Name(), err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err)
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down render worker...")

	if err := loop.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("scheduler", loop.Name()))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("Render worker stopped")
}

// connectDatabase opens the database connection, retrying with exponential
// backoff so the worker survives a database that is still booting.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 1 * time.Minute

	var db *gorm.DB
	err := backoff.RetryNotify(
		func() error {
			var err error
			db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
			return err
		},
		backoff.WithContext(bo, ctx),
		func(err error, next time.Duration) {
			logger.WarnCtx(ctx, "Database not ready, retrying",
				zap.Error(err),
				zap.Duration("next_retry", next))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
