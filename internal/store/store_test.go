package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

// buildTestEvent creates a test event row
func buildTestEvent(txID string, logIndex uint, block uint64, eventType domain.EventType, tokenID string, data map[string]interface{}) schema.Event {
	return schema.Event{
		TransactionID: txID,
		LogIndex:      logIndex,
		BlockNumber:   block,
		EventType:     eventType,
		TokenID:       tokenID,
		Data:          datatypes.JSONMap(data),
	}
}

// buildTestTransfer creates a transfer event row
func buildTestTransfer(txID string, logIndex uint, block uint64, tokenID, from, to string) schema.Event {
	return buildTestEvent(txID, logIndex, block, domain.EventTypeTransfer, tokenID, map[string]interface{}{
		"from":   from,
		"to":     to,
		"amount": "1",
	})
}

// buildTestPurchase creates a purchase event row
func buildTestPurchase(txID string, logIndex uint, block uint64, tokenID, buyer, price, amount string) schema.Event {
	return buildTestEvent(txID, logIndex, block, domain.EventTypePurchase, tokenID, map[string]interface{}{
		"buyer":  buyer,
		"price":  price,
		"amount": amount,
	})
}

// buildTestToken creates a test token content record
func buildTestToken(tokenID, author string) *schema.Token {
	return &schema.Token{
		TokenID:     tokenID,
		Author:      author,
		Name:        fmt.Sprintf("Glyph #%s", tokenID),
		Description: "test artwork",
		ContentType: "image/svg+xml",
		Content:     `<svg xmlns="http://www.w3.org/2000/svg"/>`,
		MintBlock:   100,
	}
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func strPtr(s string) *string {
	return &s
}

// =============================================================================
// Checkpoint Tests
// =============================================================================

func testCheckpoints(t *testing.T, st Store) {
	ctx := context.Background()

	// Missing checkpoint reports absence, not an error
	block, exists, err := st.GetCheckpoint(ctx, "glyphora:events")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, uint64(0), block)

	require.NoError(t, st.SetCheckpoint(ctx, "glyphora:events", 500))

	block, exists, err = st.GetCheckpoint(ctx, "glyphora:events")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(500), block)

	// Advancing overwrites the previous value
	require.NoError(t, st.SetCheckpoint(ctx, "glyphora:events", 1200))

	block, exists, err = st.GetCheckpoint(ctx, "glyphora:events")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(1200), block)

	// Streams are independent
	require.NoError(t, st.SetCheckpoint(ctx, "glyphora:backfill", 50))

	cps, err := st.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "glyphora:backfill", cps[0].Key)
	assert.Equal(t, uint64(50), cps[0].LastBlock)
	assert.Equal(t, "glyphora:events", cps[1].Key)
	assert.Equal(t, uint64(1200), cps[1].LastBlock)
}

// =============================================================================
// Event Tests
// =============================================================================

func testInsertEventsIdempotency(t *testing.T, st Store) {
	ctx := context.Background()

	events := []schema.Event{
		buildTestTransfer("0xaaa", 0, 100, "1", domain.ZeroAddress, "0xalice"),
		buildTestTransfer("0xaaa", 1, 100, "2", domain.ZeroAddress, "0xbob"),
		buildTestPurchase("0xbbb", 0, 110, "1", "0xbob", "1000", "1"),
	}

	inserted, err := st.InsertEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	// Re-ingesting the same logs is a no-op
	inserted, err = st.InsertEvents(ctx, []schema.Event{
		buildTestTransfer("0xaaa", 0, 100, "1", domain.ZeroAddress, "0xalice"),
		buildTestTransfer("0xaaa", 1, 100, "2", domain.ZeroAddress, "0xbob"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	// A partially overlapping batch only inserts the new logs
	inserted, err = st.InsertEvents(ctx, []schema.Event{
		buildTestPurchase("0xbbb", 0, 110, "1", "0xbob", "1000", "1"),
		buildTestTransfer("0xccc", 0, 120, "1", "0xalice", "0xbob"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	count, err := st.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	// Empty batch is a no-op
	inserted, err = st.InsertEvents(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func testMintEventQueries(t *testing.T, st Store) {
	ctx := context.Background()

	_, err := st.InsertEvents(ctx, []schema.Event{
		buildTestTransfer("0xtx1", 0, 300, "7", domain.ZeroAddress, "0xalice"),
		buildTestTransfer("0xtx2", 0, 100, "5", domain.ZeroAddress, "0xalice"),
		buildTestTransfer("0xtx3", 0, 200, "6", domain.ZeroAddress, "0xbob"),
		// Secondary transfers are not mints
		buildTestTransfer("0xtx4", 0, 150, "5", "0xalice", "0xbob"),
		// Purchases never count as mints
		buildTestPurchase("0xtx5", 0, 250, "5", "0xbob", "1000", "1"),
	})
	require.NoError(t, err)

	mints, err := st.ListMintEvents(ctx)
	require.NoError(t, err)
	require.Len(t, mints, 3)
	// Ordered by block, not insertion order
	assert.Equal(t, "5", mints[0].TokenID)
	assert.Equal(t, "6", mints[1].TokenID)
	assert.Equal(t, "7", mints[2].TokenID)
	assert.Equal(t, "0xalice", mints[0].DataString("to"))

	blocks, err := st.FirstMintBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	// Alice minted at blocks 100 and 300; the earlier block wins
	assert.Equal(t, uint64(100), blocks["0xalice"])
	assert.Equal(t, uint64(200), blocks["0xbob"])
}

func testTokenEventQueries(t *testing.T, st Store) {
	ctx := context.Background()

	_, err := st.InsertEvents(ctx, []schema.Event{
		buildTestTransfer("0xtx1", 0, 100, "9", domain.ZeroAddress, "0xalice"),
		buildTestTransfer("0xtx2", 0, 110, "9", "0xalice", "0xbob"),
		buildTestTransfer("0xtx3", 0, 120, "8", domain.ZeroAddress, "0xcarol"),
		buildTestPurchase("0xtx4", 0, 130, "9", "0xbob", "1000", "1"),
		buildTestPurchase("0xtx5", 3, 130, "9", "0xcarol", "1500", "2"),
		buildTestPurchase("0xtx6", 0, 125, "9", "0xdave", "900", "1"),
	})
	require.NoError(t, err)

	transfers, err := st.CountTokenTransfers(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), transfers)

	transfers, err = st.CountTokenTransfers(ctx, "8")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), transfers)

	// Last sale is the highest (block, log index) purchase
	sale, err := st.GetLastSale(ctx, "9")
	require.NoError(t, err)
	require.NotNil(t, sale)
	assert.Equal(t, "0xtx5", sale.TransactionID)
	assert.Equal(t, "1500", sale.DataString("price"))

	// Token without purchases has no last sale
	sale, err = st.GetLastSale(ctx, "8")
	require.NoError(t, err)
	assert.Nil(t, sale)

	purchases, err := st.ListPurchaseEvents(ctx, "9")
	require.NoError(t, err)
	require.Len(t, purchases, 3)
	assert.Equal(t, "0xtx6", purchases[0].TransactionID)
	assert.Equal(t, "0xtx4", purchases[1].TransactionID)
	assert.Equal(t, "0xtx5", purchases[2].TransactionID)
}

// =============================================================================
// Token Content Cache Tests
// =============================================================================

func testTokenContentCache(t *testing.T, st Store) {
	ctx := context.Background()

	// Cache miss reports absence, not an error
	token, err := st.GetToken(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, token)

	require.NoError(t, st.SaveToken(ctx, buildTestToken("1", "0xalice")))
	require.NoError(t, st.SaveToken(ctx, buildTestToken("2", "0xalice")))
	require.NoError(t, st.SaveToken(ctx, buildTestToken("3", "0xbob")))

	token, err = st.GetToken(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "0xalice", token.Author)
	assert.Equal(t, "image/svg+xml", token.ContentType)

	// Content is immutable, a duplicate write is skipped
	dup := buildTestToken("1", "0xmallory")
	dup.Content = "<svg>changed</svg>"
	require.NoError(t, st.SaveToken(ctx, dup))

	token, err = st.GetToken(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "0xalice", token.Author)

	ids, err := st.ListTokenIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	count, err := st.CountTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	totals, err := st.CountTokensByAuthor(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, uint64(2), totals["0xalice"])
	assert.Equal(t, uint64(1), totals["0xbob"])
}

// =============================================================================
// Token Stats Tests
// =============================================================================

func testTokenStatsColumnOwnership(t *testing.T, st Store) {
	ctx := context.Background()

	// The materializer writes its columns first
	require.NoError(t, st.UpsertTokenActivity(ctx, &schema.TokenStats{
		TokenID:       "1",
		MintBlock:     100,
		TransferCount: 3,
		LastSalePrice: strPtr("500"),
		LastSaleBlock: uint64Ptr(130),
	}))

	// The listing sync writes its columns over the same row
	require.NoError(t, st.UpsertTokenMarket(ctx, &schema.TokenStats{
		TokenID:          "1",
		TotalSupply:      strPtr("100"),
		FloorPrice:       strPtr("1000"),
		ListedCount:      2,
		TotalVolume:      "5000",
		RoyaltyRecipient: strPtr("0xalice"),
		RoyaltyBps:       500,
	}))

	stats, err := st.GetTokenStats(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint64(100), stats.MintBlock)
	assert.Equal(t, uint64(3), stats.TransferCount)
	require.NotNil(t, stats.LastSalePrice)
	assert.Equal(t, "500", *stats.LastSalePrice)
	require.NotNil(t, stats.FloorPrice)
	assert.Equal(t, "1000", *stats.FloorPrice)
	assert.Equal(t, uint64(2), stats.ListedCount)
	assert.Equal(t, "5000", stats.TotalVolume)
	assert.Equal(t, uint32(500), stats.RoyaltyBps)

	// A later activity recompute leaves the market columns untouched
	require.NoError(t, st.UpsertTokenActivity(ctx, &schema.TokenStats{
		TokenID:       "1",
		MintBlock:     100,
		TransferCount: 4,
		LastSalePrice: strPtr("800"),
		LastSaleBlock: uint64Ptr(140),
	}))

	stats, err = st.GetTokenStats(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint64(4), stats.TransferCount)
	require.NotNil(t, stats.FloorPrice)
	assert.Equal(t, "1000", *stats.FloorPrice)
	assert.Equal(t, "5000", stats.TotalVolume)

	// And a later market refresh leaves the activity columns untouched
	require.NoError(t, st.UpsertTokenMarket(ctx, &schema.TokenStats{
		TokenID:     "1",
		TotalSupply: strPtr("100"),
		FloorPrice:  nil,
		ListedCount: 0,
		TotalVolume: "6500",
	}))

	stats, err = st.GetTokenStats(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint64(4), stats.TransferCount)
	require.NotNil(t, stats.LastSalePrice)
	assert.Equal(t, "800", *stats.LastSalePrice)
	assert.Nil(t, stats.FloorPrice)
	assert.Equal(t, "6500", stats.TotalVolume)

	// Unknown token reports absence, not an error
	stats, err = st.GetTokenStats(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

// =============================================================================
// Author Stats Tests
// =============================================================================

func testAuthorStats(t *testing.T, st Store) {
	ctx := context.Background()

	require.NoError(t, st.UpsertAuthorStats(ctx, &schema.AuthorStats{
		Address:        "0xalice",
		TotalMinted:    2,
		FirstMintBlock: uint64Ptr(100),
	}))

	stats, err := st.GetAuthorStats(ctx, "0xalice")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint64(2), stats.TotalMinted)
	require.NotNil(t, stats.FirstMintBlock)
	assert.Equal(t, uint64(100), *stats.FirstMintBlock)

	// TotalMinted is recomputed, FirstMintBlock is first-write-wins
	require.NoError(t, st.UpsertAuthorStats(ctx, &schema.AuthorStats{
		Address:        "0xalice",
		TotalMinted:    5,
		FirstMintBlock: uint64Ptr(300),
	}))

	stats, err = st.GetAuthorStats(ctx, "0xalice")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint64(5), stats.TotalMinted)
	require.NotNil(t, stats.FirstMintBlock)
	assert.Equal(t, uint64(100), *stats.FirstMintBlock)

	// A nil first mint block fills in once a value becomes known
	require.NoError(t, st.UpsertAuthorStats(ctx, &schema.AuthorStats{
		Address:     "0xbob",
		TotalMinted: 1,
	}))
	require.NoError(t, st.UpsertAuthorStats(ctx, &schema.AuthorStats{
		Address:        "0xbob",
		TotalMinted:    1,
		FirstMintBlock: uint64Ptr(250),
	}))

	stats, err = st.GetAuthorStats(ctx, "0xbob")
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.NotNil(t, stats.FirstMintBlock)
	assert.Equal(t, uint64(250), *stats.FirstMintBlock)

	// Unknown author reports absence, not an error
	stats, err = st.GetAuthorStats(ctx, "0xnobody")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

// =============================================================================
// Render Job Tests
// =============================================================================

func testRenderJobEnqueue(t *testing.T, st Store) {
	ctx := context.Background()

	require.NoError(t, st.SaveToken(ctx, buildTestToken("1", "0xalice")))
	require.NoError(t, st.SaveToken(ctx, buildTestToken("2", "0xalice")))
	require.NoError(t, st.SaveToken(ctx, buildTestToken("3", "0xbob")))

	missing, err := st.TokenIDsWithoutRenderJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, missing)

	enqueued, err := st.EnqueueRenderJobs(ctx, missing)
	require.NoError(t, err)
	assert.Equal(t, 3, enqueued)

	// Existing jobs are never duplicated
	enqueued, err = st.EnqueueRenderJobs(ctx, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)

	missing, err = st.TokenIDsWithoutRenderJob(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	// A newly cached token shows up as missing again
	require.NoError(t, st.SaveToken(ctx, buildTestToken("4", "0xbob")))

	missing, err = st.TokenIDsWithoutRenderJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, missing)

	// Empty enqueue is a no-op
	enqueued, err = st.EnqueueRenderJobs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)

	pending, err := st.CountPendingRenderJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	jobs, err := st.ListPendingRenderJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].TokenID)
	assert.Equal(t, "2", jobs[1].TokenID)
	assert.Equal(t, schema.RenderJobStatusPending, jobs[0].Status)
}

func testRenderJobLifecycle(t *testing.T, st Store) {
	ctx := context.Background()

	_, err := st.EnqueueRenderJobs(ctx, []string{"1", "2"})
	require.NoError(t, err)

	// Unknown job reports absence, not an error
	job, err := st.GetRenderJob(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, st.MarkRenderJobGenerating(ctx, "1"))

	job, err = st.GetRenderJob(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, schema.RenderJobStatusGenerating, job.Status)

	// Generating jobs are off the pending queue
	jobs, err := st.ListPendingRenderJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "2", jobs[0].TokenID)

	generatedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.MarkRenderJobCompleted(ctx, "1", "previews/01ABC.png", generatedAt))

	job, err = st.GetRenderJob(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, schema.RenderJobStatusCompleted, job.Status)
	require.NotNil(t, job.FilePath)
	assert.Equal(t, "previews/01ABC.png", *job.FilePath)
	assert.Nil(t, job.Error)
	require.NotNil(t, job.GeneratedAt)
	assert.WithinDuration(t, generatedAt, *job.GeneratedAt, time.Second)

	// Completed jobs don't slide back to generating
	require.NoError(t, st.MarkRenderJobGenerating(ctx, "1"))

	job, err = st.GetRenderJob(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, schema.RenderJobStatusCompleted, job.Status)

	require.NoError(t, st.MarkRenderJobGenerating(ctx, "2"))
	require.NoError(t, st.MarkRenderJobFailed(ctx, "2", "failed to rasterize: malformed svg"))

	job, err = st.GetRenderJob(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, schema.RenderJobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "failed to rasterize: malformed svg", *job.Error)
	assert.Nil(t, job.GeneratedAt)

	pending, err := st.CountPendingRenderJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

// RunStoreTests runs the shared store test suite against an implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"Checkpoints", testCheckpoints},
		{"InsertEventsIdempotency", testInsertEventsIdempotency},
		{"MintEventQueries", testMintEventQueries},
		{"TokenEventQueries", testTokenEventQueries},
		{"TokenContentCache", testTokenContentCache},
		{"TokenStatsColumnOwnership", testTokenStatsColumnOwnership},
		{"AuthorStats", testAuthorStats},
		{"RenderJobEnqueue", testRenderJobEnqueue},
		{"RenderJobLifecycle", testRenderJobLifecycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
