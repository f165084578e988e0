package store

import (
	"context"
	"time"

	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// GetCheckpoint retrieves the last synced block for a sync stream.
	// The second return value is false when no checkpoint row exists yet.
	GetCheckpoint(ctx context.Context, key string) (uint64, bool, error)
	// SetCheckpoint stores the last synced block for a sync stream
	SetCheckpoint(ctx context.Context, key string, lastBlock uint64) error
	// ListCheckpoints returns all checkpoint rows
	ListCheckpoints(ctx context.Context) ([]schema.Checkpoint, error)

	// InsertEvents persists normalized events, silently skipping rows whose
	// (transaction_id, log_index) already exists. Returns the number of rows
	// actually inserted.
	InsertEvents(ctx context.Context, events []schema.Event) (int, error)
	// CountEvents returns the total number of persisted events
	CountEvents(ctx context.Context) (int64, error)
	// ListMintEvents returns all zero-origin transfer events ordered by block
	ListMintEvents(ctx context.Context) ([]schema.Event, error)
	// CountTokenTransfers counts all transfer events for a token
	CountTokenTransfers(ctx context.Context, tokenID string) (uint64, error)
	// GetLastSale returns the most recent purchase event for a token, or nil
	GetLastSale(ctx context.Context, tokenID string) (*schema.Event, error)
	// ListPurchaseEvents returns all purchase events for a token
	ListPurchaseEvents(ctx context.Context, tokenID string) ([]schema.Event, error)
	// FirstMintBlocks returns, per recipient address, the earliest block at
	// which that address received a zero-origin transfer
	FirstMintBlocks(ctx context.Context) (map[string]uint64, error)

	// GetToken retrieves a cached token content record, or nil when absent
	GetToken(ctx context.Context, tokenID string) (*schema.Token, error)
	// SaveToken caches a token content record (no-op if already cached)
	SaveToken(ctx context.Context, token *schema.Token) error
	// ListTokenIDs returns the ids of all tokens with cached content
	ListTokenIDs(ctx context.Context) ([]string, error)
	// CountTokens returns the number of cached token records
	CountTokens(ctx context.Context) (int64, error)
	// CountTokensByAuthor groups cached token records by author
	CountTokensByAuthor(ctx context.Context) (map[string]uint64, error)

	// UpsertTokenActivity writes the materializer-owned token_stats columns
	// (mint_block, transfer_count, last_sale_price, last_sale_block)
	UpsertTokenActivity(ctx context.Context, stats *schema.TokenStats) error
	// UpsertTokenMarket writes the listing-sync-owned token_stats columns
	// (total_supply, floor_price, listed_count, total_volume, royalty columns)
	UpsertTokenMarket(ctx context.Context, stats *schema.TokenStats) error
	// GetTokenStats retrieves the stats row for a token, or nil when absent
	GetTokenStats(ctx context.Context, tokenID string) (*schema.TokenStats, error)

	// UpsertAuthorStats writes author stats; total_minted is overwritten while
	// first_mint_block is preserved once set (first-write-wins)
	UpsertAuthorStats(ctx context.Context, stats *schema.AuthorStats) error
	// GetAuthorStats retrieves the stats row for an author, or nil when absent
	GetAuthorStats(ctx context.Context, address string) (*schema.AuthorStats, error)

	// TokenIDsWithoutRenderJob returns cached tokens that have no render job row
	TokenIDsWithoutRenderJob(ctx context.Context) ([]string, error)
	// EnqueueRenderJobs inserts one pending job per token id, skipping tokens
	// that already have a job row. Returns the number of jobs created.
	EnqueueRenderJobs(ctx context.Context, tokenIDs []string) (int, error)
	// ListPendingRenderJobs returns up to limit pending jobs, oldest first
	ListPendingRenderJobs(ctx context.Context, limit int) ([]schema.RenderJob, error)
	// CountPendingRenderJobs returns the number of pending jobs
	CountPendingRenderJobs(ctx context.Context) (int64, error)
	// GetRenderJob retrieves a job row, or nil when absent
	GetRenderJob(ctx context.Context, tokenID string) (*schema.RenderJob, error)
	// MarkRenderJobGenerating moves a job to the generating state
	MarkRenderJobGenerating(ctx context.Context, tokenID string) error
	// MarkRenderJobCompleted moves a job to the completed terminal state
	MarkRenderJobCompleted(ctx context.Context, tokenID string, filePath string, generatedAt time.Time) error
	// MarkRenderJobFailed moves a job to the failed terminal state
	MarkRenderJobFailed(ctx context.Context, tokenID string, errMsg string) error
}
