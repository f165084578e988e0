package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/glyphora/glyph-indexer/internal/domain"
)

// Event represents the events table, the append-only source of truth for the
// whole system. (TransactionID, LogIndex) is globally unique so re-ingesting
// the same log is a no-op.
type Event struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TransactionID is the hash of the transaction that emitted the log
	TransactionID string `gorm:"column:transaction_id;not null;type:text;uniqueIndex:idx_events_tx_log"`
	// LogIndex is the position of the log within its block
	LogIndex uint `gorm:"column:log_index;not null;uniqueIndex:idx_events_tx_log"`
	// BlockNumber is the block the log was emitted in
	BlockNumber uint64 `gorm:"column:block_number;not null;type:bigint;index:idx_events_block_number"`
	// EventType identifies the contract event (transfer, purchase, listed, delisted)
	EventType domain.EventType `gorm:"column:event_type;not null;type:text;index:idx_events_event_type"`
	// TokenID is the token the event relates to (decimal string, up to 78 digits)
	TokenID string `gorm:"column:token_id;not null;type:text;index:idx_events_token_id"`
	// Data holds the decoded event arguments with numeric values as decimal strings
	Data datatypes.JSONMap `gorm:"column:data;type:jsonb"`
	// CreatedAt is the timestamp when this record was indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}

// DataString returns a decoded event argument as a string, or "" when the
// key is absent or not a string
func (e *Event) DataString(key string) string {
	value, ok := e.Data[key].(string)
	if !ok {
		return ""
	}

	return value
}
