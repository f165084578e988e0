package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/providers/ethereum"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// Config holds the configuration for the marketplace listing sync
type Config struct {
	// BatchSize is the number of tokens refreshed per batch
	BatchSize int
	// BatchDelay is the pause between batches, backpressure against RPC
	// rate limits
	BatchDelay time.Duration
}

// Result is the outcome of one listing sync run
type Result struct {
	Synced int `json:"synced"`
}

// Syncer refreshes marketplace-derived token stats from live contract state
//
//go:generate mockgen -source=listings.go -destination=../mocks/marketplace.go -package=mocks -mock_names=Syncer=MockMarketplaceSyncer
type Syncer interface {
	// SyncListings refreshes listing state for every token with cached
	// content. A failed token is logged and skipped, not retried.
	SyncListings(ctx context.Context) (*Result, error)
}

// tokenReads carries the three concurrent per-token contract reads
type tokenReads struct {
	totalSupply  string
	listingCount uint64
	royalty      *domain.RoyaltyInfo
}

type syncer struct {
	chain  ethereum.Client
	store  store.Store
	config Config
	clock  adapter.Clock
	pool   pond.Pool
}

// NewSyncer creates a new marketplace listing sync
func NewSyncer(chain ethereum.Client, st store.Store, cfg Config, clock adapter.Clock) Syncer {
	return &syncer{
		chain:  chain,
		store:  st,
		config: cfg,
		clock:  clock,
		pool:   pond.NewPool(cfg.BatchSize * 3),
	}
}

// SyncListings refreshes listing state for every token with cached content
func (s *syncer) SyncListings(ctx context.Context) (*Result, error) {
	tokenIDs, err := s.store.ListTokenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list token ids: %w", err)
	}

	synced := 0
	for start := 0; start < len(tokenIDs); start += s.config.BatchSize {
		if start > 0 {
			s.clock.Sleep(s.config.BatchDelay)
		}

		end := start + s.config.BatchSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}

		for _, tokenID := range tokenIDs[start:end] {
			if err := s.syncToken(ctx, tokenID); err != nil {
				logger.ErrorCtx(ctx, fmt.Errorf("failed to sync listings for token %s: %w", tokenID, err))
				continue
			}
			synced++
		}
	}

	logger.InfoCtx(ctx, "Listing sync completed",
		zap.Int("tokens", len(tokenIDs)),
		zap.Int("synced", synced))

	return &Result{Synced: synced}, nil
}

// syncToken refreshes the marketplace-owned token_stats columns for one token
func (s *syncer) syncToken(ctx context.Context, tokenID string) error {
	reads, err := s.readContractState(ctx, tokenID)
	if err != nil {
		return err
	}

	listings, err := s.fetchListings(ctx, tokenID, reads.listingCount)
	if err != nil {
		return err
	}

	var floorPrice *string
	var listedCount uint64
	var floor decimal.Decimal
	for _, listing := range listings {
		if !listing.Active() {
			continue
		}

		price, err := decimal.NewFromString(listing.Price)
		if err != nil {
			return fmt.Errorf("failed to parse listing price %q: %w", listing.Price, err)
		}

		listedCount += listing.Amount
		if floorPrice == nil || price.LessThan(floor) {
			floor = price
			value := listing.Price
			floorPrice = &value
		}
	}

	volume, err := s.totalVolume(ctx, tokenID)
	if err != nil {
		return err
	}

	stats := &schema.TokenStats{
		TokenID:     tokenID,
		TotalSupply: &reads.totalSupply,
		FloorPrice:  floorPrice,
		ListedCount: listedCount,
		TotalVolume: volume.String(),
	}
	if reads.royalty != nil {
		stats.RoyaltyRecipient = &reads.royalty.Recipient
		stats.RoyaltyBps = reads.royalty.Bps
	}

	if err := s.store.UpsertTokenMarket(ctx, stats); err != nil {
		return fmt.Errorf("failed to upsert market stats: %w", err)
	}

	return nil
}

// readContractState performs the three per-token contract reads concurrently
func (s *syncer) readContractState(ctx context.Context, tokenID string) (*tokenReads, error) {
	var reads tokenReads

	group := s.pool.NewGroup()
	group.SubmitErr(func() error {
		supply, err := s.chain.TotalSupply(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("failed to read total supply: %w", err)
		}
		reads.totalSupply = supply
		return nil
	})
	group.SubmitErr(func() error {
		count, err := s.chain.ListingCount(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("failed to read listing count: %w", err)
		}
		reads.listingCount = count
		return nil
	})
	group.SubmitErr(func() error {
		royalty, err := s.chain.RoyaltyInfo(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("failed to read royalty info: %w", err)
		}
		reads.royalty = royalty
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &reads, nil
}

// fetchListings reads up to the first MaxListingsPerToken listing slots
func (s *syncer) fetchListings(ctx context.Context, tokenID string, count uint64) ([]domain.Listing, error) {
	if count > domain.MaxListingsPerToken {
		count = domain.MaxListingsPerToken
	}

	listings := make([]domain.Listing, 0, count)
	for index := uint64(0); index < count; index++ {
		listing, err := s.chain.Listing(ctx, tokenID, index)
		if err != nil {
			return nil, fmt.Errorf("failed to read listing %d: %w", index, err)
		}
		if listing == nil {
			continue
		}
		listings = append(listings, *listing)
	}

	return listings, nil
}

// totalVolume sums price*amount over all persisted purchase events
func (s *syncer) totalVolume(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	purchases, err := s.store.ListPurchaseEvents(ctx, tokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list purchase events: %w", err)
	}

	volume := decimal.Zero
	for i := range purchases {
		price, err := decimal.NewFromString(purchases[i].DataString("price"))
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse purchase price: %w", err)
		}
		amount, err := decimal.NewFromString(purchases[i].DataString("amount"))
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse purchase amount: %w", err)
		}

		volume = volume.Add(price.Mul(amount))
	}

	return volume, nil
}
