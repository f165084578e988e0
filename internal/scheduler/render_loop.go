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
	"github.com/glyphora/glyph-indexer/internal/render"
)

// RenderLoopConfig holds configuration for the render loop
type RenderLoopConfig struct {
	// Interval is the pause between enqueue-and-process runs
	Interval time.Duration
}

// renderLoop periodically enqueues render jobs for new tokens and drains the
// pending queue
type renderLoop struct {
	config    RenderLoopConfig
	queue     render.Queue
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewRenderLoop creates a new render loop
func NewRenderLoop(cfg RenderLoopConfig, queue render.Queue, clock adapter.Clock) Scheduler {
	return &renderLoop{
		config:    cfg,
		queue:     queue,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the scheduler's name
func (l *renderLoop) Name() string {
	return "render-loop"
}

// Start begins the render loop
func (l *renderLoop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer func() {
		l.running.Store(false)
		close(l.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting render loop",
		zap.Duration("interval", l.config.Interval))

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Render loop stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-l.stopChan:
			logger.InfoCtx(ctx, "Render loop stop requested")
			return nil
		default:
			l.runCycle(ctx)
			if !l.sleep(ctx, l.config.Interval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the loop
func (l *renderLoop) Stop(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping render loop")
	close(l.stopChan)

	select {
	case <-l.stoppedCh:
		logger.InfoCtx(ctx, "Render loop stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Render loop stop interrupted by context timeout")
		return ctx.Err()
	}
}

func (l *renderLoop) runCycle(ctx context.Context) {
	if _, err := l.queue.EnqueueMissing(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, fmt.Errorf("render enqueue failed: %w", err))
		}
		return
	}

	if _, err := l.queue.ProcessQueue(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, fmt.Errorf("render queue processing failed: %w", err))
		}
	}
}

func (l *renderLoop) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-l.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-l.stopChan:
		return false
	}
}
