package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/content"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/stats"
	"github.com/glyphora/glyph-indexer/internal/syncer"
)

// IndexLoopConfig holds configuration for the event indexing loop
type IndexLoopConfig struct {
	// Interval is the pause between sync passes once caught up
	Interval time.Duration
}

// indexLoop periodically syncs events and recomputes derived stats. While a
// catch-up is in progress it re-invokes the syncer back to back instead of
// waiting out the interval.
type indexLoop struct {
	config       IndexLoopConfig
	syncer       syncer.Syncer
	materializer stats.Materializer
	contentCache content.Cache
	clock        adapter.Clock
	running      atomic.Bool
	stopChan     chan struct{}
	stoppedCh    chan struct{}
}

// NewIndexLoop creates a new event indexing loop
func NewIndexLoop(
	cfg IndexLoopConfig,
	sync syncer.Syncer,
	materializer stats.Materializer,
	contentCache content.Cache,
	clock adapter.Clock,
) Scheduler {
	return &indexLoop{
		config:       cfg,
		syncer:       sync,
		materializer: materializer,
		contentCache: contentCache,
		clock:        clock,
		stopChan:     make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// Name returns the scheduler's name
func (l *indexLoop) Name() string {
	return "index-loop"
}

// Start begins the indexing loop
func (l *indexLoop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer func() {
		l.running.Store(false)
		close(l.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting index loop",
		zap.Duration("interval", l.config.Interval))

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Index loop stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-l.stopChan:
			logger.InfoCtx(ctx, "Index loop stop requested")
			return nil
		default:
			needsMore := l.runCycle(ctx)
			if needsMore {
				// Still catching up, go straight into the next pass
				continue
			}
			if !l.sleep(ctx, l.config.Interval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the loop
func (l *indexLoop) Stop(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping index loop")
	close(l.stopChan)

	select {
	case <-l.stoppedCh:
		logger.InfoCtx(ctx, "Index loop stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Index loop stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runCycle performs one sync pass plus the follow-up content admission and
// stats recompute, and reports whether another pass should follow immediately
func (l *indexLoop) runCycle(ctx context.Context) bool {
	result, err := l.syncer.Sync(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, fmt.Errorf("sync pass failed: %w", err))
		}
		return false
	}

	if !result.Synced {
		return false
	}

	if result.EventsCount > 0 {
		// Newly minted tokens get their on-chain content admitted right away so
		// the render loop and listing sync can pick them up.
		for _, tokenID := range result.MintedTokenIDs {
			if _, err := l.contentCache.GetOrFetch(ctx, tokenID); err != nil {
				logger.ErrorCtx(ctx, fmt.Errorf("failed to admit content for token %s: %w", tokenID, err))
			}
		}

		if _, err := l.materializer.RecomputeTokenStats(ctx); err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("token stats recompute failed: %w", err))
		}
		if _, err := l.materializer.RecomputeAuthorStats(ctx); err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("author stats recompute failed: %w", err))
		}
	}

	return result.NeedsMoreSync
}

func (l *indexLoop) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-l.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-l.stopChan:
		return false
	}
}
