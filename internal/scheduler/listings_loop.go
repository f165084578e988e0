package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/marketplace"
)

// ListingsLoopConfig holds configuration for the marketplace refresh loop
type ListingsLoopConfig struct {
	// Interval is the pause between listing sync runs
	Interval time.Duration
}

// listingsLoop periodically refreshes marketplace-derived token stats
type listingsLoop struct {
	config    ListingsLoopConfig
	market    marketplace.Syncer
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewListingsLoop creates a new marketplace refresh loop
func NewListingsLoop(cfg ListingsLoopConfig, market marketplace.Syncer, clock adapter.Clock) Scheduler {
	return &listingsLoop{
		config:    cfg,
		market:    market,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the scheduler's name
func (l *listingsLoop) Name() string {
	return "listings-loop"
}

// Start begins the marketplace refresh loop
func (l *listingsLoop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer func() {
		l.running.Store(false)
		close(l.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting listings loop",
		zap.Duration("interval", l.config.Interval))

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Listings loop stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-l.stopChan:
			logger.InfoCtx(ctx, "Listings loop stop requested")
			return nil
		default:
			if _, err := l.market.SyncListings(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, fmt.Errorf("listing sync failed: %w", err))
				}
			}
			if !l.sleep(ctx, l.config.Interval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the loop
func (l *listingsLoop) Stop(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping listings loop")
	close(l.stopChan)

	select {
	case <-l.stoppedCh:
		logger.InfoCtx(ctx, "Listings loop stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Listings loop stop interrupted by context timeout")
		return ctx.Err()
	}
}

func (l *listingsLoop) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-l.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-l.stopChan:
		return false
	}
}
