package schema

import "time"

// Checkpoint stores the last fully ingested block per sync stream.
// LastBlock is monotonically non-decreasing across successful syncs.
type Checkpoint struct {
	Key       string    `gorm:"column:key;primaryKey;type:text"`
	LastBlock uint64    `gorm:"column:last_block;not null;type:bigint"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Checkpoint) TableName() string {
	return "checkpoints"
}
