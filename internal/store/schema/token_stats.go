package schema

import "time"

// TokenStats represents the token_stats table. Every column is derived from
// the event log or live contract state and may be rebuilt at any time; rows
// are never hand-edited.
//
// Column ownership is split between two writers: the stats materializer owns
// mint_block, transfer_count, last_sale_price and last_sale_block; the
// marketplace listing sync owns total_supply, floor_price, listed_count,
// total_volume and the royalty columns. Each writer upserts only its own
// columns and leaves the other's untouched.
type TokenStats struct {
	// TokenID is the decimal-string token id (primary key)
	TokenID string `gorm:"column:token_id;primaryKey;type:text"`
	// MintBlock is the block of the zero-origin transfer that created the token
	MintBlock uint64 `gorm:"column:mint_block;type:bigint"`
	// TransferCount is the number of transfer events recorded for the token
	TransferCount uint64 `gorm:"column:transfer_count;not null;default:0"`
	// LastSalePrice is the price of the most recent purchase (decimal string)
	LastSalePrice *string `gorm:"column:last_sale_price;type:numeric(78,0)"`
	// LastSaleBlock is the block of the most recent purchase
	LastSaleBlock *uint64 `gorm:"column:last_sale_block;type:bigint"`
	// TotalSupply is the live total supply read from the art contract
	TotalSupply *string `gorm:"column:total_supply;type:numeric(78,0)"`
	// FloorPrice is the minimum price among active listings (nil when none)
	FloorPrice *string `gorm:"column:floor_price;type:numeric(78,0)"`
	// ListedCount is the sum of active listing amounts
	ListedCount uint64 `gorm:"column:listed_count;not null;default:0"`
	// TotalVolume is the sum of price*amount over all purchases (decimal string)
	TotalVolume string `gorm:"column:total_volume;not null;default:0;type:numeric(78,0)"`
	// RoyaltyRecipient is the royalty payout address from live contract state
	RoyaltyRecipient *string `gorm:"column:royalty_recipient;type:text"`
	// RoyaltyBps is the royalty share in basis points
	RoyaltyBps uint32 `gorm:"column:royalty_bps;not null;default:0"`
	// UpdatedAt is the timestamp when this row was last recomputed
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TokenStats model
func (TokenStats) TableName() string {
	return "token_stats"
}
