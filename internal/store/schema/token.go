package schema

import "time"

// Token represents the tokens table, the cache of on-chain artwork content.
// Records are written only after validation; an incomplete on-chain read is
// rejected so the next request retries the fetch instead of caching a
// poisoned entry.
type Token struct {
	// TokenID is the decimal-string token id (primary key)
	TokenID string `gorm:"column:token_id;primaryKey;type:text"`
	// Author is the address that minted the token
	Author string `gorm:"column:author;not null;type:text;index:idx_tokens_author"`
	// Name is the artwork title
	Name string `gorm:"column:name;type:text"`
	// Description is the artwork description
	Description string `gorm:"column:description;type:text"`
	// ContentType is the MIME type of the stored content
	ContentType string `gorm:"column:content_type;not null;type:text"`
	// Content is the raw on-chain artwork payload
	Content string `gorm:"column:content;not null;type:text"`
	// MintBlock is the block the token was minted in
	MintBlock uint64 `gorm:"column:mint_block;type:bigint"`
	// CreatedAt is the timestamp when this record was cached
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Token model
func (Token) TableName() string {
	return "tokens"
}
