package domain

const (
	// ZeroAddress is the EVM zero address. Transfers originating from it are
	// mints; listings whose seller is the zero address are inactive.
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// SyncKey is the checkpoint key for the single global event sync stream
	SyncKey = "glyphora:events"

	// MaxListingsPerToken caps how many marketplace listing slots are read per token
	MaxListingsPerToken = 10
)
