package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// Materializer rebuilds the derived stats tables from the event log. Both
// recomputes are full batch passes, not incremental updates, so running them
// twice over unchanged data yields identical rows. The component has no
// concurrency guard of its own; the scheduler invokes it serially.
//
//go:generate mockgen -source=materializer.go -destination=../mocks/materializer.go -package=mocks -mock_names=Materializer=MockMaterializer
type Materializer interface {
	// RecomputeTokenStats rebuilds per-token activity stats from the event
	// log. Returns the number of token rows written.
	RecomputeTokenStats(ctx context.Context) (int, error)
	// RecomputeAuthorStats rebuilds per-author stats from cached token
	// records and the mint history. Returns the number of author rows written.
	RecomputeAuthorStats(ctx context.Context) (int, error)
}

type materializer struct {
	store store.Store
}

// NewMaterializer creates a new stats materializer
func NewMaterializer(st store.Store) Materializer {
	return &materializer{store: st}
}

// RecomputeTokenStats rebuilds per-token activity stats from the event log
func (m *materializer) RecomputeTokenStats(ctx context.Context) (int, error) {
	mints, err := m.store.ListMintEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list mint events: %w", err)
	}

	// Mints are ordered by block, so the first occurrence per token is the
	// block the token was created at
	mintBlocks := make(map[string]uint64)
	order := make([]string, 0, len(mints))
	for _, mint := range mints {
		if _, seen := mintBlocks[mint.TokenID]; seen {
			continue
		}
		mintBlocks[mint.TokenID] = mint.BlockNumber
		order = append(order, mint.TokenID)
	}

	written := 0
	for _, tokenID := range order {
		transferCount, err := m.store.CountTokenTransfers(ctx, tokenID)
		if err != nil {
			return written, fmt.Errorf("failed to count transfers for token %s: %w", tokenID, err)
		}

		lastSale, err := m.store.GetLastSale(ctx, tokenID)
		if err != nil {
			return written, fmt.Errorf("failed to get last sale for token %s: %w", tokenID, err)
		}

		stats := &schema.TokenStats{
			TokenID:       tokenID,
			MintBlock:     mintBlocks[tokenID],
			TransferCount: transferCount,
		}
		if lastSale != nil {
			price := lastSale.DataString("price")
			stats.LastSalePrice = &price
			stats.LastSaleBlock = &lastSale.BlockNumber
		}

		if err := m.store.UpsertTokenActivity(ctx, stats); err != nil {
			return written, fmt.Errorf("failed to upsert stats for token %s: %w", tokenID, err)
		}
		written++
	}

	logger.InfoCtx(ctx, "Token stats recomputed", zap.Int("tokens", written))

	return written, nil
}

// RecomputeAuthorStats rebuilds per-author stats from cached token records
// and the mint history
func (m *materializer) RecomputeAuthorStats(ctx context.Context) (int, error) {
	counts, err := m.store.CountTokensByAuthor(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens by author: %w", err)
	}

	firstBlocks, err := m.store.FirstMintBlocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan first mint blocks: %w", err)
	}

	written := 0
	for author, minted := range counts {
		stats := &schema.AuthorStats{
			Address:     author,
			TotalMinted: minted,
		}
		if block, ok := firstBlocks[author]; ok {
			stats.FirstMintBlock = &block
		}

		if err := m.store.UpsertAuthorStats(ctx, stats); err != nil {
			return written, fmt.Errorf("failed to upsert stats for author %s: %w", author, err)
		}
		written++
	}

	logger.InfoCtx(ctx, "Author stats recomputed", zap.Int("authors", written))

	return written, nil
}
