package notifier

import (
	"context"

	"github.com/glyphora/glyph-indexer/internal/domain"
)

// Notifier defines the interface for broadcasting indexing updates to
// downstream consumers
//
//go:generate mockgen -source=notifier.go -destination=../mocks/notifier.go -package=mocks -mock_names=Notifier=MockNotifier
type Notifier interface {
	// PublishNewEvents broadcasts a batch of newly ingested events
	PublishNewEvents(ctx context.Context, notices []domain.EventNotice) error
	// PublishSyncStatus broadcasts the current sync progress
	PublishSyncStatus(ctx context.Context, status domain.SyncStatus) error
	// Close closes the underlying connection
	Close()
}

// Noop is a Notifier that discards all messages. It is used when no
// message broker is configured.
type Noop struct{}

// NewNoop creates a no-op notifier
func NewNoop() Notifier {
	return &Noop{}
}

func (n *Noop) PublishNewEvents(ctx context.Context, notices []domain.EventNotice) error {
	return nil
}

func (n *Noop) PublishSyncStatus(ctx context.Context, status domain.SyncStatus) error {
	return nil
}

func (n *Noop) Close() {}
