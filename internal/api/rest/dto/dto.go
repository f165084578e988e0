package dto

import (
	"time"

	"github.com/glyphora/glyph-indexer/internal/store/schema"
)

// Checkpoint is the API representation of a sync checkpoint row
type Checkpoint struct {
	Key       string    `json:"key"`
	LastBlock uint64    `json:"lastBlock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Status is the response of the status endpoint
type Status struct {
	Checkpoints     []Checkpoint `json:"checkpoints"`
	TotalEvents     int64        `json:"totalEvents"`
	TotalNfts       int64        `json:"totalNfts"`
	CurrentBlock    uint64       `json:"currentBlock"`
	SyncedBlock     uint64       `json:"syncedBlock"`
	BlocksRemaining uint64       `json:"blocksRemaining"`
	IsCatchingUp    bool         `json:"isCatchingUp"`
	IsSyncing       bool         `json:"isSyncing"`
	SyncProgress    int          `json:"syncProgress"`
}

// TokenStats is the API representation of a token_stats row
type TokenStats struct {
	TokenID          string    `json:"tokenId"`
	MintBlock        uint64    `json:"mintBlock"`
	TransferCount    uint64    `json:"transferCount"`
	LastSalePrice    *string   `json:"lastSalePrice,omitempty"`
	LastSaleBlock    *uint64   `json:"lastSaleBlock,omitempty"`
	TotalSupply      *string   `json:"totalSupply,omitempty"`
	FloorPrice       *string   `json:"floorPrice,omitempty"`
	ListedCount      uint64    `json:"listedCount"`
	TotalVolume      string    `json:"totalVolume"`
	RoyaltyRecipient *string   `json:"royaltyRecipient,omitempty"`
	RoyaltyBps       uint32    `json:"royaltyBps"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AuthorStats is the API representation of an author_stats row
type AuthorStats struct {
	Address        string    `json:"address"`
	TotalMinted    uint64    `json:"totalMinted"`
	FirstMintBlock *uint64   `json:"firstMintBlock,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RenderJob is the API representation of a render_jobs row
type RenderJob struct {
	TokenID     string     `json:"tokenId"`
	Status      string     `json:"status"`
	FilePath    *string    `json:"filePath,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
}

// FromCheckpoint maps a checkpoint row to its API representation
func FromCheckpoint(row schema.Checkpoint) Checkpoint {
	return Checkpoint{
		Key:       row.Key,
		LastBlock: row.LastBlock,
		UpdatedAt: row.UpdatedAt,
	}
}

// FromTokenStats maps a token_stats row to its API representation
func FromTokenStats(row *schema.TokenStats) TokenStats {
	return TokenStats{
		TokenID:          row.TokenID,
		MintBlock:        row.MintBlock,
		TransferCount:    row.TransferCount,
		LastSalePrice:    row.LastSalePrice,
		LastSaleBlock:    row.LastSaleBlock,
		TotalSupply:      row.TotalSupply,
		FloorPrice:       row.FloorPrice,
		ListedCount:      row.ListedCount,
		TotalVolume:      row.TotalVolume,
		RoyaltyRecipient: row.RoyaltyRecipient,
		RoyaltyBps:       row.RoyaltyBps,
		UpdatedAt:        row.UpdatedAt,
	}
}

// FromAuthorStats maps an author_stats row to its API representation
func FromAuthorStats(row *schema.AuthorStats) AuthorStats {
	return AuthorStats{
		Address:        row.Address,
		TotalMinted:    row.TotalMinted,
		FirstMintBlock: row.FirstMintBlock,
		UpdatedAt:      row.UpdatedAt,
	}
}

// FromRenderJob maps a render_jobs row to its API representation
func FromRenderJob(row *schema.RenderJob) RenderJob {
	return RenderJob{
		TokenID:     row.TokenID,
		Status:      string(row.Status),
		FilePath:    row.FilePath,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
		GeneratedAt: row.GeneratedAt,
	}
}
