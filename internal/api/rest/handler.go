package rest

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glyphora/glyph-indexer/internal/api/rest/dto"
	"github.com/glyphora/glyph-indexer/internal/domain"
	"github.com/glyphora/glyph-indexer/internal/providers/ethereum"
	"github.com/glyphora/glyph-indexer/internal/store"
	"github.com/glyphora/glyph-indexer/internal/syncer"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// TriggerSync runs one event sync pass
	// POST /api/v1/sync
	TriggerSync(c *gin.Context)

	// GetStatus reports checkpoints and overall indexing progress
	// GET /api/v1/status
	GetStatus(c *gin.Context)

	// GetTokenStats retrieves the derived stats for a token
	// GET /api/v1/tokens/:id/stats
	GetTokenStats(c *gin.Context)

	// GetAuthorStats retrieves the derived stats for an author address
	// GET /api/v1/authors/:address/stats
	GetAuthorStats(c *gin.Context)

	// GetRenderJob retrieves the render job state for a token
	// GET /api/v1/tokens/:id/render
	GetRenderJob(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store  store.Store
	chain  ethereum.Client
	syncer syncer.Syncer
}

// NewHandler creates a new REST API handler
func NewHandler(st store.Store, chain ethereum.Client, sync syncer.Syncer) Handler {
	return &handler{
		store:  st,
		chain:  chain,
		syncer: sync,
	}
}

// TriggerSync runs one event sync pass
func (h *handler) TriggerSync(c *gin.Context) {
	result, err := h.syncer.Sync(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Sync failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStatus reports checkpoints and overall indexing progress
func (h *handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	checkpoints, err := h.store.ListCheckpoints(ctx)
	if err != nil {
		respondInternalError(c, err, "Failed to read checkpoints")
		return
	}

	totalEvents, err := h.store.CountEvents(ctx)
	if err != nil {
		respondInternalError(c, err, "Failed to count events")
		return
	}

	totalNfts, err := h.store.CountTokens(ctx)
	if err != nil {
		respondInternalError(c, err, "Failed to count tokens")
		return
	}

	currentBlock, err := h.chain.BlockNumber(ctx)
	if err != nil {
		respondInternalError(c, err, "Failed to read chain head")
		return
	}

	var syncedBlock uint64
	rows := make([]dto.Checkpoint, 0, len(checkpoints))
	for _, row := range checkpoints {
		rows = append(rows, dto.FromCheckpoint(row))
		if row.Key == domain.SyncKey {
			syncedBlock = row.LastBlock
		}
	}

	var blocksRemaining uint64
	progress := 100
	if currentBlock > syncedBlock {
		blocksRemaining = currentBlock - syncedBlock
		progress = int(math.Round(float64(syncedBlock) / float64(currentBlock) * 100))
	}

	lastStatus := h.syncer.LastStatus()

	c.JSON(http.StatusOK, dto.Status{
		Checkpoints:     rows,
		TotalEvents:     totalEvents,
		TotalNfts:       totalNfts,
		CurrentBlock:    currentBlock,
		SyncedBlock:     syncedBlock,
		BlocksRemaining: blocksRemaining,
		IsCatchingUp:    lastStatus.IsCatchingUp,
		IsSyncing:       lastStatus.IsSyncing,
		SyncProgress:    progress,
	})
}

// GetTokenStats retrieves the derived stats for a token
func (h *handler) GetTokenStats(c *gin.Context) {
	tokenID := c.Param("id")
	if tokenID == "" {
		respondBadRequest(c, "Token id is required")
		return
	}

	stats, err := h.store.GetTokenStats(c.Request.Context(), tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to read token stats")
		return
	}
	if stats == nil {
		respondNotFound(c, "No stats for token "+tokenID)
		return
	}

	c.JSON(http.StatusOK, dto.FromTokenStats(stats))
}

// GetAuthorStats retrieves the derived stats for an author address
func (h *handler) GetAuthorStats(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		respondBadRequest(c, "Author address is required")
		return
	}

	stats, err := h.store.GetAuthorStats(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to read author stats")
		return
	}
	if stats == nil {
		respondNotFound(c, "No stats for author "+address)
		return
	}

	c.JSON(http.StatusOK, dto.FromAuthorStats(stats))
}

// GetRenderJob retrieves the render job state for a token
func (h *handler) GetRenderJob(c *gin.Context) {
	tokenID := c.Param("id")
	if tokenID == "" {
		respondBadRequest(c, "Token id is required")
		return
	}

	job, err := h.store.GetRenderJob(c.Request.Context(), tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to read render job")
		return
	}
	if job == nil {
		respondNotFound(c, "No render job for token "+tokenID)
		return
	}

	c.JSON(http.StatusOK, dto.FromRenderJob(job))
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
