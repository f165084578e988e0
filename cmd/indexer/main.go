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
	"github.com/glyphora/glyph-indexer/internal/api/server"
	"github.com/glyphora/glyph-indexer/internal/config"
	"github.com/glyphora/glyph-indexer/internal/content"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/marketplace"
	"github.com/glyphora/glyph-indexer/internal/notifier"
	"github.com/glyphora/glyph-indexer/internal/providers/ethereum"
	"github.com/glyphora/glyph-indexer/internal/providers/jetstream"
	"github.com/glyphora/glyph-indexer/internal/scheduler"
	"github.com/glyphora/glyph-indexer/internal/stats"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/syncer"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
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
			"service": "indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Glyphora indexer")

	// Connect to database
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Connect to the chain RPC endpoint
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
	logger.InfoCtx(ctx, "Connected to Ethereum RPC", zap.String("rpc_url", cfg.Ethereum.RPCURL))

	// Connect to NATS for realtime notifications. Without a configured URL
	// the indexer still runs, it just doesn't broadcast.
	var notify notifier.Notifier
	if cfg.NATS.URL != "" {
		notify, err = jetstream.NewPublisher(ctx, jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), jsonAdapter, clock)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	} else {
		notify = notifier.NewNoop()
		logger.WarnCtx(ctx, "NATS URL not configured, realtime notifications disabled")
	}
	defer notify.Close()

	// Build the sync engine and derived-view materializers
	sync := syncer.NewSyncer(chainClient, dataStore, notify, syncer.Config{
		GenesisBlock: cfg.Syncer.GenesisBlock,
		MaxRange:     cfg.Syncer.MaxRange,
	}, clock)
	materializer := stats.NewMaterializer(dataStore)
	contentCache := content.NewCache(chainClient, dataStore)
	market := marketplace.NewSyncer(chainClient, dataStore, marketplace.Config{
		BatchSize:  cfg.Marketplace.BatchSize,
		BatchDelay: cfg.Marketplace.BatchDelay,
	}, clock)

	// Start background loops
	schedulers := []scheduler.Scheduler{
		scheduler.NewIndexLoop(scheduler.IndexLoopConfig{
			Interval: cfg.Syncer.Interval,
		}, sync, materializer, contentCache, clock),
		scheduler.NewListingsLoop(scheduler.ListingsLoopConfig{
			Interval: cfg.Marketplace.Interval,
		}, market, clock),
	}

	errCh := make(chan error, len(schedulers)+1)
	for _, s := range schedulers {
		go func(s scheduler.Scheduler) {
			if err := s.Start(ctx); err != nil {
				errCh <- fmt.Errorf("scheduler %s: %w", s.Name(), err)
			}
		}(s)
	}

	// Create and start the API server
	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}, dataStore, chainClient, sync)

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
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

	logger.InfoCtx(shutdownCtx, "Shutting down indexer...")

	for _, s := range schedulers {
		if err := s.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("scheduler", s.Name()))
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("Indexer stopped")
}

// connectDatabase opens the database connection, retrying with exponential
// backoff so the indexer survives a database that is still booting.
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
