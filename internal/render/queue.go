package render

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/content"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/store"
)

// Config holds the configuration for the render queue
type Config struct {
	// BatchSize is the number of pending jobs processed per batch
	BatchSize int
	// BatchDelay is the pause between batches while pending jobs remain
	BatchDelay time.Duration
}

// Result is the outcome of one queue processing run
type Result struct {
	Processed int    `json:"processed"`
	Reason    string `json:"reason,omitempty"`
}

// Queue drives render jobs through pending, generating and terminal states.
// A terminal state is final: recovery from failed is an operator action, not
// an automatic retry.
//
//go:generate mockgen -source=queue.go -destination=../mocks/render_queue.go -package=mocks -mock_names=Queue=MockRenderQueue
type Queue interface {
	// EnqueueMissing inserts a pending job for every token with cached
	// content and no job row yet. Returns the number of jobs created.
	EnqueueMissing(ctx context.Context) (int, error)
	// ProcessQueue works through pending jobs in bounded batches until none
	// remain. Concurrent calls are single-flight: the loser returns
	// immediately with a skip result.
	ProcessQueue(ctx context.Context) (*Result, error)
}

type queue struct {
	store    store.Store
	content  content.Cache
	renderer Renderer
	config   Config
	clock    adapter.Clock

	processing atomic.Bool
}

// NewQueue creates a new render queue
func NewQueue(st store.Store, cache content.Cache, renderer Renderer, cfg Config, clock adapter.Clock) Queue {
	return &queue{
		store:    st,
		content:  cache,
		renderer: renderer,
		config:   cfg,
		clock:    clock,
	}
}

// EnqueueMissing inserts a pending job for every token without one
func (q *queue) EnqueueMissing(ctx context.Context) (int, error) {
	tokenIDs, err := q.store.TokenIDsWithoutRenderJob(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to find tokens without render jobs: %w", err)
	}
	if len(tokenIDs) == 0 {
		return 0, nil
	}

	created, err := q.store.EnqueueRenderJobs(ctx, tokenIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue render jobs: %w", err)
	}

	logger.InfoCtx(ctx, "Render jobs enqueued", zap.Int("created", created))

	return created, nil
}

// ProcessQueue works through pending jobs in bounded batches until none remain
func (q *queue) ProcessQueue(ctx context.Context) (*Result, error) {
	if !q.processing.CompareAndSwap(false, true) {
		return &Result{Processed: 0, Reason: "already processing"}, nil
	}
	defer q.processing.Store(false)

	processed := 0
	for {
		jobs, err := q.store.ListPendingRenderJobs(ctx, q.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending render jobs: %w", err)
		}
		if len(jobs) == 0 {
			break
		}

		for _, job := range jobs {
			q.processJob(ctx, job.TokenID)
			processed++
		}

		pending, err := q.store.CountPendingRenderJobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending render jobs: %w", err)
		}
		if pending == 0 {
			break
		}

		q.clock.Sleep(q.config.BatchDelay)
	}

	if processed > 0 {
		logger.InfoCtx(ctx, "Render queue processed", zap.Int("jobs", processed))
	}

	return &Result{Processed: processed}, nil
}

// processJob renders one token preview. Render and content failures are
// terminal for the job; store failures while moving states are logged and
// leave the job for inspection.
func (q *queue) processJob(ctx context.Context, tokenID string) {
	if err := q.store.MarkRenderJobGenerating(ctx, tokenID); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to mark render job generating for token %s: %w", tokenID, err))
		return
	}

	record, err := q.content.GetOrFetch(ctx, tokenID)
	if err != nil {
		q.fail(ctx, tokenID, fmt.Sprintf("failed to load token content: %v", err))
		return
	}

	filePath, err := q.renderer.Render(ctx, record.Content, record.ContentType, Metadata{
		Name:        record.Name,
		Description: record.Description,
	})
	if err != nil {
		q.fail(ctx, tokenID, err.Error())
		return
	}

	if err := q.store.MarkRenderJobCompleted(ctx, tokenID, filePath, q.clock.Now()); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to mark render job completed for token %s: %w", tokenID, err))
	}
}

func (q *queue) fail(ctx context.Context, tokenID, message string) {
	logger.WarnCtx(ctx, "Render job failed",
		zap.String("tokenID", tokenID),
		zap.String("error", message))

	if err := q.store.MarkRenderJobFailed(ctx, tokenID, message); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to mark render job failed for token %s: %w", tokenID, err))
	}
}
