package schema

import "time"

// AuthorStats represents the author_stats table. TotalMinted is recomputed
// unconditionally; FirstMintBlock is first-write-wins and is never overwritten
// once set, even if a later recompute would derive a different value.
type AuthorStats struct {
	// Address is the author's address (primary key)
	Address string `gorm:"column:address;primaryKey;type:text"`
	// TotalMinted is the number of tokens the author has minted
	TotalMinted uint64 `gorm:"column:total_minted;not null;default:0"`
	// FirstMintBlock is the earliest block at which the author received a zero-origin transfer
	FirstMintBlock *uint64 `gorm:"column:first_mint_block;type:bigint"`
	// UpdatedAt is the timestamp when this row was last recomputed
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the AuthorStats model
func (AuthorStats) TableName() string {
	return "author_stats"
}
