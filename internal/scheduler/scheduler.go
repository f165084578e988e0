package scheduler

import (
	"context"
)

// Scheduler defines the interface for long-running background loops that
// drive the indexing pipeline on a fixed interval
//
//go:generate mockgen -source=scheduler.go -destination=../mocks/scheduler.go -package=mocks -mock_names=Scheduler=MockScheduler
type Scheduler interface {
	// Start begins the scheduler's main loop
	// This is a blocking call that runs until the context is canceled
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	// This should wait for any in-progress work to complete
	Stop(ctx context.Context) error

	// Name returns the scheduler's name for logging and identification
	Name() string
}
