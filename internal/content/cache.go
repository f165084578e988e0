package content

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/providers/ethereum"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// Cache is a read-through cache for on-chain artwork records. A record is
// fetched from the chain at most once: once cached it is immutable, matching
// the contract's own immutability of stored artwork.
//
//go:generate mockgen -source=cache.go -destination=../mocks/content.go -package=mocks -mock_names=Cache=MockContentCache
type Cache interface {
	// GetOrFetch returns the cached record for a token, fetching and caching
	// it from the chain on first access. Incomplete on-chain records are
	// rejected without caching so the next access retries.
	GetOrFetch(ctx context.Context, tokenID string) (*domain.TokenContent, error)
}

type cache struct {
	chain ethereum.Client
	store store.Store
}

// NewCache creates a new content cache
func NewCache(chain ethereum.Client, st store.Store) Cache {
	return &cache{chain: chain, store: st}
}

// GetOrFetch returns the cached record for a token, fetching it on first access
func (c *cache) GetOrFetch(ctx context.Context, tokenID string) (*domain.TokenContent, error) {
	cached, err := c.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached token: %w", err)
	}
	if cached != nil {
		return toDomain(cached), nil
	}

	record, err := c.chain.GetArtwork(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artwork for token %s: %w", tokenID, err)
	}
	if record == nil || !record.Valid() {
		return nil, fmt.Errorf("token %s: %w", tokenID, domain.ErrInvalidContent)
	}

	if err := c.store.SaveToken(ctx, &schema.Token{
		TokenID:     record.TokenID,
		Author:      record.Author,
		Name:        record.Name,
		Description: record.Description,
		ContentType: record.ContentType,
		Content:     record.Content,
		MintBlock:   record.MintBlock,
	}); err != nil {
		return nil, fmt.Errorf("failed to cache token %s: %w", tokenID, err)
	}

	logger.DebugCtx(ctx, "Cached on-chain artwork", zap.String("tokenID", tokenID))

	return record, nil
}

func toDomain(token *schema.Token) *domain.TokenContent {
	return &domain.TokenContent{
		TokenID:     token.TokenID,
		Author:      token.Author,
		Name:        token.Name,
		Description: token.Description,
		ContentType: token.ContentType,
		Content:     token.Content,
		MintBlock:   token.MintBlock,
	}
}
