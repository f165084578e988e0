package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// GetCheckpoint retrieves the last synced block for a sync stream
func (s *pgStore) GetCheckpoint(ctx context.Context, key string) (uint64, bool, error) {
	var cp schema.Checkpoint
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return cp.LastBlock, true, nil
}

// SetCheckpoint stores the last synced block for a sync stream
func (s *pgStore) SetCheckpoint(ctx context.Context, key string, lastBlock uint64) error {
	cp := schema.Checkpoint{
		Key:       key,
		LastBlock: lastBlock,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_block", "updated_at"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}

	return nil
}

// ListCheckpoints returns all checkpoint rows
func (s *pgStore) ListCheckpoints(ctx context.Context) ([]schema.Checkpoint, error) {
	var cps []schema.Checkpoint
	if err := s.db.WithContext(ctx).Order("key").Find(&cps).Error; err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	return cps, nil
}

// InsertEvents persists normalized events idempotently
func (s *pgStore) InsertEvents(ctx context.Context, events []schema.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}, {Name: "log_index"}},
		DoNothing: true,
	}).Create(&events)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert events: %w", result.Error)
	}

	return int(result.RowsAffected), nil
}

// CountEvents returns the total number of persisted events
func (s *pgStore) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&schema.Event{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// ListMintEvents returns all zero-origin transfer events ordered by block
func (s *pgStore) ListMintEvents(ctx context.Context) ([]schema.Event, error) {
	var events []schema.Event
	err := s.db.WithContext(ctx).
		Where("event_type = ? AND data->>'from' = ?", domain.EventTypeTransfer, domain.ZeroAddress).
		Order("block_number, log_index").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mint events: %w", err)
	}

	return events, nil
}

// CountTokenTransfers counts all transfer events for a token
func (s *pgStore) CountTokenTransfers(ctx context.Context, tokenID string) (uint64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.Event{}).
		Where("event_type = ? AND token_id = ?", domain.EventTypeTransfer, tokenID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}

	return uint64(count), nil //nolint:gosec,G115
}

// GetLastSale returns the most recent purchase event for a token
func (s *pgStore) GetLastSale(ctx context.Context, tokenID string) (*schema.Event, error) {
	var event schema.Event
	err := s.db.WithContext(ctx).
		Where("event_type = ? AND token_id = ?", domain.EventTypePurchase, tokenID).
		Order("block_number DESC, log_index DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last sale: %w", err)
	}

	return &event, nil
}

// ListPurchaseEvents returns all purchase events for a token
func (s *pgStore) ListPurchaseEvents(ctx context.Context, tokenID string) ([]schema.Event, error) {
	var events []schema.Event
	err := s.db.WithContext(ctx).
		Where("event_type = ? AND token_id = ?", domain.EventTypePurchase, tokenID).
		Order("block_number, log_index").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase events: %w", err)
	}

	return events, nil
}

// FirstMintBlocks returns the earliest zero-origin transfer block per recipient
func (s *pgStore) FirstMintBlocks(ctx context.Context) (map[string]uint64, error) {
	var rows []struct {
		Address     string
		BlockNumber uint64
	}

	err := s.db.WithContext(ctx).Model(&schema.Event{}).
		Select("data->>'to' AS address, MIN(block_number) AS block_number").
		Where("event_type = ? AND data->>'from' = ?", domain.EventTypeTransfer, domain.ZeroAddress).
		Group("data->>'to'").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query first mint blocks: %w", err)
	}

	blocks := make(map[string]uint64, len(rows))
	for _, row := range rows {
		blocks[row.Address] = row.BlockNumber
	}

	return blocks, nil
}

// GetToken retrieves a cached token content record
func (s *pgStore) GetToken(ctx context.Context, tokenID string) (*schema.Token, error) {
	var token schema.Token
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &token, nil
}

// SaveToken caches a token content record. Content is immutable on-chain, so
// a concurrent duplicate write is skipped rather than overwritten.
func (s *pgStore) SaveToken(ctx context.Context, token *schema.Token) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoNothing: true,
	}).Create(token).Error
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// ListTokenIDs returns the ids of all tokens with cached content
func (s *pgStore) ListTokenIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Order("token_id").
		Pluck("token_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list token ids: %w", err)
	}

	return ids, nil
}

// CountTokens returns the number of cached token records
func (s *pgStore) CountTokens(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&schema.Token{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}

	return count, nil
}

// CountTokensByAuthor groups cached token records by author
func (s *pgStore) CountTokensByAuthor(ctx context.Context) (map[string]uint64, error) {
	var rows []struct {
		Author string
		Total  uint64
	}

	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Select("author, COUNT(*) AS total").
		Group("author").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tokens by author: %w", err)
	}

	totals := make(map[string]uint64, len(rows))
	for _, row := range rows {
		totals[row.Author] = row.Total
	}

	return totals, nil
}

// UpsertTokenActivity writes the materializer-owned token_stats columns
func (s *pgStore) UpsertTokenActivity(ctx context.Context, stats *schema.TokenStats) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mint_block", "transfer_count", "last_sale_price", "last_sale_block", "updated_at",
		}),
	}).Create(stats).Error
	if err != nil {
		return fmt.Errorf("failed to upsert token activity stats: %w", err)
	}

	return nil
}

// UpsertTokenMarket writes the listing-sync-owned token_stats columns
func (s *pgStore) UpsertTokenMarket(ctx context.Context, stats *schema.TokenStats) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_supply", "floor_price", "listed_count", "total_volume",
			"royalty_recipient", "royalty_bps", "updated_at",
		}),
	}).Create(stats).Error
	if err != nil {
		return fmt.Errorf("failed to upsert token market stats: %w", err)
	}

	return nil
}

// GetTokenStats retrieves the stats row for a token
func (s *pgStore) GetTokenStats(ctx context.Context, tokenID string) (*schema.TokenStats, error) {
	var stats schema.TokenStats
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token stats: %w", err)
	}

	return &stats, nil
}

// UpsertAuthorStats writes author stats with a first-write-wins merge on
// first_mint_block: once set, the stored value is preserved.
func (s *pgStore) UpsertAuthorStats(ctx context.Context, stats *schema.AuthorStats) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_minted":     stats.TotalMinted,
			"first_mint_block": gorm.Expr("COALESCE(author_stats.first_mint_block, EXCLUDED.first_mint_block)"),
			"updated_at":       gorm.Expr("now()"),
		}),
	}).Create(stats).Error
	if err != nil {
		return fmt.Errorf("failed to upsert author stats: %w", err)
	}

	return nil
}

// GetAuthorStats retrieves the stats row for an author
func (s *pgStore) GetAuthorStats(ctx context.Context, address string) (*schema.AuthorStats, error) {
	var stats schema.AuthorStats
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get author stats: %w", err)
	}

	return &stats, nil
}

// TokenIDsWithoutRenderJob returns cached tokens that have no render job row
func (s *pgStore) TokenIDsWithoutRenderJob(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Joins("LEFT JOIN render_jobs ON render_jobs.token_id = tokens.token_id").
		Where("render_jobs.token_id IS NULL").
		Order("tokens.token_id").
		Pluck("tokens.token_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find tokens without render jobs: %w", err)
	}

	return ids, nil
}

// EnqueueRenderJobs inserts one pending job per token id, insert-if-absent
func (s *pgStore) EnqueueRenderJobs(ctx context.Context, tokenIDs []string) (int, error) {
	if len(tokenIDs) == 0 {
		return 0, nil
	}

	jobs := make([]schema.RenderJob, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		jobs = append(jobs, schema.RenderJob{
			TokenID: id,
			Status:  schema.RenderJobStatusPending,
		})
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoNothing: true,
	}).Create(&jobs)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to enqueue render jobs: %w", result.Error)
	}

	return int(result.RowsAffected), nil
}

// ListPendingRenderJobs returns up to limit pending jobs, oldest first
func (s *pgStore) ListPendingRenderJobs(ctx context.Context, limit int) ([]schema.RenderJob, error) {
	var jobs []schema.RenderJob
	err := s.db.WithContext(ctx).
		Where("status = ?", schema.RenderJobStatusPending).
		Order("created_at, token_id").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending render jobs: %w", err)
	}

	return jobs, nil
}

// CountPendingRenderJobs returns the number of pending jobs
func (s *pgStore) CountPendingRenderJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.RenderJob{}).
		Where("status = ?", schema.RenderJobStatusPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending render jobs: %w", err)
	}

	return count, nil
}

// GetRenderJob retrieves a job row
func (s *pgStore) GetRenderJob(ctx context.Context, tokenID string) (*schema.RenderJob, error) {
	var job schema.RenderJob
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get render job: %w", err)
	}

	return &job, nil
}

// MarkRenderJobGenerating moves a job to the generating state
func (s *pgStore) MarkRenderJobGenerating(ctx context.Context, tokenID string) error {
	err := s.db.WithContext(ctx).Model(&schema.RenderJob{}).
		Where("token_id = ? AND status = ?", tokenID, schema.RenderJobStatusPending).
		Update("status", schema.RenderJobStatusGenerating).Error
	if err != nil {
		return fmt.Errorf("failed to mark render job generating: %w", err)
	}

	return nil
}

// MarkRenderJobCompleted moves a job to the completed terminal state
func (s *pgStore) MarkRenderJobCompleted(ctx context.Context, tokenID string, filePath string, generatedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&schema.RenderJob{}).
		Where("token_id = ?", tokenID).
		Updates(map[string]interface{}{
			"status":       schema.RenderJobStatusCompleted,
			"file_path":    filePath,
			"error":        nil,
			"generated_at": generatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark render job completed: %w", err)
	}

	return nil
}

// MarkRenderJobFailed moves a job to the failed terminal state
func (s *pgStore) MarkRenderJobFailed(ctx context.Context, tokenID string, errMsg string) error {
	err := s.db.WithContext(ctx).Model(&schema.RenderJob{}).
		Where("token_id = ?", tokenID).
		Updates(map[string]interface{}{
			"status": schema.RenderJobStatusFailed,
			"error":  errMsg,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark render job failed: %w", err)
	}

	return nil
}
