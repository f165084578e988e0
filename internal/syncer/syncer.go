package syncer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/notifier"
	"github.com/glyphora/glyph-indexer/internal/providers/ethereum"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// Config holds the configuration for the event sync engine
type Config struct {
	// GenesisBlock is the block syncing starts from when no checkpoint exists
	GenesisBlock uint64
	// MaxRange is the upper bound on blocks fetched per sync pass
	MaxRange uint64
}

// Syncer ingests contract events from the chain into the event store
//
//go:generate mockgen -source=syncer.go -destination=../mocks/syncer.go -package=mocks -mock_names=Syncer=MockSyncer
type Syncer interface {
	// Sync performs one bounded sync pass. Concurrent calls are single-flight:
	// only one performs chain reads, the others return immediately.
	Sync(ctx context.Context) (*domain.SyncResult, error)
	// LastStatus returns the most recently observed sync status
	LastStatus() domain.SyncStatus
}

// fetchResult carries one event type's fetch outcome so a failing type can be
// degraded to an empty batch without aborting the others
type fetchResult struct {
	events []domain.Event
	err    error
}

type syncer struct {
	chain    ethereum.Client
	store    store.Store
	notifier notifier.Notifier
	config   Config
	clock    adapter.Clock
	pool     pond.ResultPool[fetchResult]

	syncing atomic.Bool

	mu         sync.RWMutex
	lastStatus domain.SyncStatus
}

// NewSyncer creates a new event sync engine
func NewSyncer(
	chain ethereum.Client,
	st store.Store,
	n notifier.Notifier,
	cfg Config,
	clock adapter.Clock,
) Syncer {
	return &syncer{
		chain:    chain,
		store:    st,
		notifier: n,
		config:   cfg,
		clock:    clock,
		pool:     pond.NewResultPool[fetchResult](len(domain.TrackedEventTypes)),
	}
}

// Sync performs one bounded sync pass
func (s *syncer) Sync(ctx context.Context) (*domain.SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return &domain.SyncResult{Synced: false, Reason: "already syncing"}, nil
	}
	defer s.syncing.Store(false)

	checkpoint, exists, err := s.store.GetCheckpoint(ctx, domain.SyncKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if !exists {
		checkpoint = s.config.GenesisBlock
		logger.InfoCtx(ctx, "No checkpoint found, starting from genesis",
			zap.Uint64("genesisBlock", checkpoint))
	}

	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain head: %w", err)
	}

	if head <= checkpoint {
		status := s.updateStatus(checkpoint, head, false)
		s.broadcastStatus(ctx, status)

		return &domain.SyncResult{
			Synced:    false,
			Reason:    "already up to date",
			LastBlock: checkpoint,
		}, nil
	}

	target := checkpoint + s.config.MaxRange
	if target > head {
		target = head
	}
	isCatchingUp := target-checkpoint >= s.config.MaxRange

	events := s.fetchAll(ctx, checkpoint+1, target)

	rows := make([]schema.Event, 0, len(events))
	for _, e := range events {
		rows = append(rows, toSchemaEvent(e))
	}

	inserted, err := s.store.InsertEvents(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert events: %w", err)
	}

	if err := s.store.SetCheckpoint(ctx, domain.SyncKey, target); err != nil {
		return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	logger.InfoCtx(ctx, "Sync pass completed",
		zap.Uint64("fromBlock", checkpoint+1),
		zap.Uint64("toBlock", target),
		zap.Uint64("head", head),
		zap.Int("eventsFetched", len(events)),
		zap.Int("eventsInserted", inserted),
		zap.Bool("isCatchingUp", isCatchingUp))

	status := s.updateStatus(target, head, isCatchingUp)
	s.broadcastEvents(ctx, events)
	s.broadcastStatus(ctx, status)

	return &domain.SyncResult{
		Synced:         true,
		EventsCount:    len(events),
		LastBlock:      target,
		IsCatchingUp:   isCatchingUp,
		NeedsMoreSync:  isCatchingUp && target < head,
		MintedTokenIDs: mintedTokenIDs(events),
	}, nil
}

// mintedTokenIDs extracts the distinct token ids minted in a batch, keeping
// the batch's (blockNumber, logIndex) order
func mintedTokenIDs(events []domain.Event) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, event := range events {
		if event.EventType != domain.EventTypeTransfer || event.Data["from"] != domain.ZeroAddress {
			continue
		}
		if _, ok := seen[event.TokenID]; ok {
			continue
		}
		seen[event.TokenID] = struct{}{}
		ids = append(ids, event.TokenID)
	}

	return ids
}

// LastStatus returns the most recently observed sync status
func (s *syncer) LastStatus() domain.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.lastStatus
	status.IsSyncing = s.syncing.Load()

	return status
}

// fetchAll fetches every tracked event type over [fromBlock, toBlock]
// concurrently. A failure for one type is logged and degraded to an empty
// batch; the merged result is ordered by (blockNumber, logIndex).
func (s *syncer) fetchAll(ctx context.Context, fromBlock, toBlock uint64) []domain.Event {
	tasks := make([]pond.Result[fetchResult], 0, len(domain.TrackedEventTypes))
	for _, eventType := range domain.TrackedEventTypes {
		tasks = append(tasks, s.pool.Submit(func() fetchResult {
			events, err := s.chain.FetchEvents(ctx, eventType, fromBlock, toBlock)
			return fetchResult{events: events, err: err}
		}))
	}

	var merged []domain.Event
	for i, task := range tasks {
		eventType := domain.TrackedEventTypes[i]
		result, err := task.Wait()
		if err == nil {
			err = result.err
		}
		if err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("failed to fetch %s events: %w", eventType, err),
				zap.Uint64("fromBlock", fromBlock),
				zap.Uint64("toBlock", toBlock))
			continue
		}

		merged = append(merged, result.events...)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].BlockNumber != merged[j].BlockNumber {
			return merged[i].BlockNumber < merged[j].BlockNumber
		}
		return merged[i].LogIndex < merged[j].LogIndex
	})

	return merged
}

func (s *syncer) updateStatus(syncedBlock, head uint64, isCatchingUp bool) domain.SyncStatus {
	progress := 100
	if head > syncedBlock {
		progress = int(math.Round(float64(syncedBlock) / float64(head) * 100))
	}

	status := domain.SyncStatus{
		LastSyncBlock:   syncedBlock,
		LastSyncTime:    s.clock.Now(),
		IsSyncing:       false,
		SyncProgress:    progress,
		BlocksRemaining: head - syncedBlock,
		IsCatchingUp:    isCatchingUp,
	}

	s.mu.Lock()
	s.lastStatus = status
	s.mu.Unlock()

	return status
}

// broadcastEvents emits a newEvents message for a non-empty batch.
// Delivery is best-effort: a broker failure never fails the sync.
func (s *syncer) broadcastEvents(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}

	notices := make([]domain.EventNotice, 0, len(events))
	for _, e := range events {
		notices = append(notices, domain.EventNotice{
			Type:          e.EventType,
			TokenID:       e.TokenID,
			BlockNumber:   e.BlockNumber,
			TransactionID: e.TransactionID,
		})
	}

	if err := s.notifier.PublishNewEvents(ctx, notices); err != nil {
		logger.WarnCtx(ctx, "Failed to broadcast new events", zap.Error(err))
	}
}

func (s *syncer) broadcastStatus(ctx context.Context, status domain.SyncStatus) {
	if err := s.notifier.PublishSyncStatus(ctx, status); err != nil {
		logger.WarnCtx(ctx, "Failed to broadcast sync status", zap.Error(err))
	}
}

func toSchemaEvent(e domain.Event) schema.Event {
	data := make(datatypes.JSONMap, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}

	return schema.Event{
		TransactionID: e.TransactionID,
		LogIndex:      e.LogIndex,
		BlockNumber:   e.BlockNumber,
		EventType:     e.EventType,
		TokenID:       e.TokenID,
		Data:          data,
	}
}
