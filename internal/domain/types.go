package domain

import "time"

// EventType identifies the kind of contract event being indexed
type EventType string

const (
	// EventTypeTransfer is an ERC-1155 TransferSingle on the art contract.
	// A transfer whose sender is the zero address is a mint.
	EventTypeTransfer EventType = "transfer"
	// EventTypePurchase is an ArtworkPurchased event on the marketplace contract
	EventTypePurchase EventType = "purchase"
	// EventTypeListed is an ArtworkListed event on the marketplace contract
	EventTypeListed EventType = "listed"
	// EventTypeDelisted is an ArtworkDelisted event on the marketplace contract
	EventTypeDelisted EventType = "delisted"
)

// TrackedEventTypes are the event types fetched on every sync pass
var TrackedEventTypes = []EventType{
	EventTypeTransfer,
	EventTypePurchase,
	EventTypeListed,
	EventTypeDelisted,
}

// Event is a normalized contract event. (TransactionID, LogIndex) is globally
// unique; re-ingesting the same log is a no-op. Numeric fields in Data are
// carried as decimal strings so uint256 values survive storage round-trips.
type Event struct {
	TransactionID string
	LogIndex      uint
	BlockNumber   uint64
	EventType     EventType
	TokenID       string
	Data          map[string]string
}

// SyncResult is the outcome of one event sync pass. MintedTokenIDs lists the
// tokens whose mint event appeared in this batch, in mint order, so the caller
// can admit their content into the cache and the render pipeline.
type SyncResult struct {
	Synced         bool     `json:"synced"`
	Reason         string   `json:"reason,omitempty"`
	EventsCount    int      `json:"eventsCount,omitempty"`
	LastBlock      uint64   `json:"lastBlock"`
	IsCatchingUp   bool     `json:"isCatchingUp"`
	NeedsMoreSync  bool     `json:"needsMoreSync,omitempty"`
	MintedTokenIDs []string `json:"-"`
}

// Listing is one marketplace listing slot for a token.
// It is active iff the seller is non-zero and the amount is positive.
type Listing struct {
	Seller string
	Price  string
	Amount uint64
}

// Active reports whether the listing counts toward listed supply and floor price
func (l Listing) Active() bool {
	return l.Seller != "" && l.Seller != ZeroAddress && l.Amount > 0
}

// RoyaltyInfo is the royalty configuration read from live contract state
type RoyaltyInfo struct {
	Recipient string
	Bps       uint32
}

// TokenContent is the on-chain artwork record for a token
type TokenContent struct {
	TokenID     string
	Author      string
	Name        string
	Description string
	ContentType string
	Content     string
	MintBlock   uint64
}

// Valid reports whether the record is complete enough to cache.
// Incomplete records are rejected so the next read retries the fetch
// instead of poisoning the cache.
func (c TokenContent) Valid() bool {
	return c.TokenID != "" && c.Content != "" && c.ContentType != ""
}

// EventNotice is one entry of a newEvents broadcast
type EventNotice struct {
	Type          EventType `json:"type"`
	TokenID       string    `json:"tokenId"`
	BlockNumber   uint64    `json:"blockNumber"`
	TransactionID string    `json:"transactionId"`
}

// SyncStatus is the syncStatus broadcast payload, emitted once per sync attempt
type SyncStatus struct {
	LastSyncBlock   uint64    `json:"lastSyncBlock"`
	LastSyncTime    time.Time `json:"lastSyncTime"`
	IsSyncing       bool      `json:"isSyncing"`
	SyncProgress    int       `json:"syncProgress"`
	BlocksRemaining uint64    `json:"blocksRemaining"`
	IsCatchingUp    bool      `json:"isCatchingUp"`
}
