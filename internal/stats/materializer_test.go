package stats_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/logger"
	"github.com/glyphora/glyph-indexer/internal/stats"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// fakeStore serves canned event scans and records upserts in memory
type fakeStore struct {
	store.Store

	mints          []schema.Event
	transferCounts map[string]uint64
	lastSales      map[string]*schema.Event
	authorCounts   map[string]uint64
	firstBlocks    map[string]uint64

	tokenUpserts  []*schema.TokenStats
	authorUpserts []*schema.AuthorStats
}

func (s *fakeStore) ListMintEvents(ctx context.Context) ([]schema.Event, error) {
	return s.mints, nil
}

func (s *fakeStore) CountTokenTransfers(ctx context.Context, tokenID string) (uint64, error) {
	return s.transferCounts[tokenID], nil
}

func (s *fakeStore) GetLastSale(ctx context.Context, tokenID string) (*schema.Event, error) {
	return s.lastSales[tokenID], nil
}

func (s *fakeStore) CountTokensByAuthor(ctx context.Context) (map[string]uint64, error) {
	return s.authorCounts, nil
}

func (s *fakeStore) FirstMintBlocks(ctx context.Context) (map[string]uint64, error) {
	return s.firstBlocks, nil
}

func (s *fakeStore) UpsertTokenActivity(ctx context.Context, st *schema.TokenStats) error {
	s.tokenUpserts = append(s.tokenUpserts, st)
	return nil
}

func (s *fakeStore) UpsertAuthorStats(ctx context.Context, st *schema.AuthorStats) error {
	s.authorUpserts = append(s.authorUpserts, st)
	return nil
}

func mintEvent(tokenID string, block uint64) schema.Event {
	return schema.Event{
		TransactionID: "0xmint-" + tokenID,
		BlockNumber:   block,
		EventType:     domain.EventTypeTransfer,
		TokenID:       tokenID,
		Data:          datatypes.JSONMap{"from": domain.ZeroAddress, "to": "0xauthor", "amount": "1"},
	}
}

func TestRecomputeTokenStats(t *testing.T) {
	st := &fakeStore{
		mints: []schema.Event{
			mintEvent("1", 100),
			mintEvent("2", 120),
			// A re-mint of token 1 at a later block must not move its mint block
			mintEvent("1", 130),
		},
		transferCounts: map[string]uint64{"1": 5, "2": 1},
		lastSales: map[string]*schema.Event{
			"1": {
				BlockNumber: 180,
				EventType:   domain.EventTypePurchase,
				TokenID:     "1",
				Data:        datatypes.JSONMap{"price": "2500000000000000000"},
			},
		},
	}

	written, err := stats.NewMaterializer(st).RecomputeTokenStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	require.Len(t, st.tokenUpserts, 2)

	first := st.tokenUpserts[0]
	assert.Equal(t, "1", first.TokenID)
	assert.Equal(t, uint64(100), first.MintBlock)
	assert.Equal(t, uint64(5), first.TransferCount)
	require.NotNil(t, first.LastSalePrice)
	assert.Equal(t, "2500000000000000000", *first.LastSalePrice)
	require.NotNil(t, first.LastSaleBlock)
	assert.Equal(t, uint64(180), *first.LastSaleBlock)

	second := st.tokenUpserts[1]
	assert.Equal(t, "2", second.TokenID)
	assert.Equal(t, uint64(120), second.MintBlock)
	assert.Equal(t, uint64(1), second.TransferCount)
	assert.Nil(t, second.LastSalePrice)
	assert.Nil(t, second.LastSaleBlock)
}

func TestRecomputeTokenStats_StableOverUnchangedData(t *testing.T) {
	st := &fakeStore{
		mints:          []schema.Event{mintEvent("1", 100)},
		transferCounts: map[string]uint64{"1": 3},
	}
	m := stats.NewMaterializer(st)

	_, err := m.RecomputeTokenStats(context.Background())
	require.NoError(t, err)
	_, err = m.RecomputeTokenStats(context.Background())
	require.NoError(t, err)

	require.Len(t, st.tokenUpserts, 2)
	assert.Equal(t, st.tokenUpserts[0], st.tokenUpserts[1])
}

func TestRecomputeAuthorStats(t *testing.T) {
	st := &fakeStore{
		authorCounts: map[string]uint64{
			"0xalice": 3,
			"0xbob":   1,
		},
		firstBlocks: map[string]uint64{
			"0xalice": 100,
		},
	}

	written, err := stats.NewMaterializer(st).RecomputeAuthorStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	byAuthor := make(map[string]*schema.AuthorStats)
	for _, u := range st.authorUpserts {
		byAuthor[u.Address] = u
	}

	require.NotNil(t, byAuthor["0xalice"])
	assert.Equal(t, uint64(3), byAuthor["0xalice"].TotalMinted)
	require.NotNil(t, byAuthor["0xalice"].FirstMintBlock)
	assert.Equal(t, uint64(100), *byAuthor["0xalice"].FirstMintBlock)

	require.NotNil(t, byAuthor["0xbob"])
	assert.Equal(t, uint64(1), byAuthor["0xbob"].TotalMinted)
	assert.Nil(t, byAuthor["0xbob"].FirstMintBlock)
}
