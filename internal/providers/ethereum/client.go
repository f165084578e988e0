package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/glyphora/glyph-indexer/internal/adapter"
	"github.com/glyphora/glyph-indexer/internal/domain"
)

var (
	// TransferSingle(address operator, address from, address to, uint256 id, uint256 value)
	transferSingleEventSignature = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))

	// ArtworkPurchased(uint256 tokenId, address buyer, address seller, uint256 price, uint256 amount)
	artworkPurchasedEventSignature = crypto.Keccak256Hash([]byte("ArtworkPurchased(uint256,address,address,uint256,uint256)"))

	// ArtworkListed(uint256 tokenId, address seller, uint256 price, uint256 amount)
	artworkListedEventSignature = crypto.Keccak256Hash([]byte("ArtworkListed(uint256,address,uint256,uint256)"))

	// ArtworkDelisted(uint256 tokenId, address seller)
	artworkDelistedEventSignature = crypto.Keccak256Hash([]byte("ArtworkDelisted(uint256,address)"))
)

// royaltySampleSalePrice is the reference sale price passed to the ERC-2981
// royaltyInfo call; with a 10000 base the returned amount equals the share in
// basis points.
var royaltySampleSalePrice = big.NewInt(10000)

// Client provides read-only access to the two Glyphora contracts
//
//go:generate mockgen -source=client.go -destination=../../mocks/chain_client.go -package=mocks -mock_names=Client=MockChainClient
type Client interface {
	// BlockNumber returns the current chain head
	BlockNumber(ctx context.Context) (uint64, error)

	// FetchEvents fetches and normalizes all logs of one tracked event type
	// over the inclusive block range [fromBlock, toBlock]
	FetchEvents(ctx context.Context, eventType domain.EventType, fromBlock, toBlock uint64) ([]domain.Event, error)

	// TotalSupply reads the live total supply for a token from the art contract
	TotalSupply(ctx context.Context, tokenID string) (string, error)

	// RoyaltyInfo reads the ERC-2981 royalty configuration for a token
	RoyaltyInfo(ctx context.Context, tokenID string) (*domain.RoyaltyInfo, error)

	// ListingCount reads the number of listing slots for a token
	ListingCount(ctx context.Context, tokenID string) (uint64, error)

	// Listing reads one marketplace listing slot
	Listing(ctx context.Context, tokenID string, index uint64) (*domain.Listing, error)

	// GetArtwork reads the on-chain artwork record for a token
	GetArtwork(ctx context.Context, tokenID string) (*domain.TokenContent, error)

	// Close closes the connection
	Close()
}

type client struct {
	eth                adapter.EthClient
	artAddress         common.Address
	marketplaceAddress common.Address
}

// Config holds the contract addresses the client reads from
type Config struct {
	ArtAddress         string
	MarketplaceAddress string
}

// NewClient creates a new contract client
func NewClient(eth adapter.EthClient, cfg Config) Client {
	return &client{
		eth:                eth,
		artAddress:         common.HexToAddress(cfg.ArtAddress),
		marketplaceAddress: common.HexToAddress(cfg.MarketplaceAddress),
	}
}

// BlockNumber returns the current chain head
func (c *client) BlockNumber(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}

	return head, nil
}

// FetchEvents fetches and normalizes all logs of one tracked event type
func (c *client) FetchEvents(ctx context.Context, eventType domain.EventType, fromBlock, toBlock uint64) ([]domain.Event, error) {
	address, signature, err := c.eventFilter(eventType)
	if err != nil {
		return nil, err
	}

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{signature}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s logs: %w", eventType, err)
	}

	events := make([]domain.Event, 0, len(logs))
	for _, vLog := range logs {
		event, err := c.parseEventLog(vLog)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s log %s[%d]: %w", eventType, vLog.TxHash.Hex(), vLog.Index, err)
		}
		events = append(events, *event)
	}

	return events, nil
}

// eventFilter maps a tracked event type to its contract address and topic
func (c *client) eventFilter(eventType domain.EventType) (common.Address, common.Hash, error) {
	switch eventType {
	case domain.EventTypeTransfer:
		return c.artAddress, transferSingleEventSignature, nil
	case domain.EventTypePurchase:
		return c.marketplaceAddress, artworkPurchasedEventSignature, nil
	case domain.EventTypeListed:
		return c.marketplaceAddress, artworkListedEventSignature, nil
	case domain.EventTypeDelisted:
		return c.marketplaceAddress, artworkDelistedEventSignature, nil
	default:
		return common.Address{}, common.Hash{}, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// parseEventLog normalizes a raw log into an Event record. Large-integer
// fields are converted to decimal strings for storage.
func (c *client) parseEventLog(vLog types.Log) (*domain.Event, error) {
	event := &domain.Event{
		TransactionID: vLog.TxHash.Hex(),
		LogIndex:      vLog.Index,
		BlockNumber:   vLog.BlockNumber,
		Data:          map[string]string{},
	}

	switch vLog.Topics[0] {
	case transferSingleEventSignature:
		// TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid TransferSingle event: expected 4 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid TransferSingle event: insufficient data")
		}

		event.EventType = domain.EventTypeTransfer
		event.TokenID = new(big.Int).SetBytes(vLog.Data[0:32]).String()
		event.Data["operator"] = common.BytesToAddress(vLog.Topics[1].Bytes()).Hex()
		event.Data["from"] = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
		event.Data["to"] = common.BytesToAddress(vLog.Topics[3].Bytes()).Hex()
		event.Data["amount"] = new(big.Int).SetBytes(vLog.Data[32:64]).String()

	case artworkPurchasedEventSignature:
		// ArtworkPurchased(uint256 indexed tokenId, address indexed buyer, address indexed seller, uint256 price, uint256 amount)
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid ArtworkPurchased event: expected 4 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid ArtworkPurchased event: insufficient data")
		}

		event.EventType = domain.EventTypePurchase
		event.TokenID = new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String()
		event.Data["buyer"] = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
		event.Data["seller"] = common.BytesToAddress(vLog.Topics[3].Bytes()).Hex()
		event.Data["price"] = new(big.Int).SetBytes(vLog.Data[0:32]).String()
		event.Data["amount"] = new(big.Int).SetBytes(vLog.Data[32:64]).String()

	case artworkListedEventSignature:
		// ArtworkListed(uint256 indexed tokenId, address indexed seller, uint256 price, uint256 amount)
		if len(vLog.Topics) != 3 {
			return nil, fmt.Errorf("invalid ArtworkListed event: expected 3 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid ArtworkListed event: insufficient data")
		}

		event.EventType = domain.EventTypeListed
		event.TokenID = new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String()
		event.Data["seller"] = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
		event.Data["price"] = new(big.Int).SetBytes(vLog.Data[0:32]).String()
		event.Data["amount"] = new(big.Int).SetBytes(vLog.Data[32:64]).String()

	case artworkDelistedEventSignature:
		// ArtworkDelisted(uint256 indexed tokenId, address indexed seller)
		if len(vLog.Topics) != 3 {
			return nil, fmt.Errorf("invalid ArtworkDelisted event: expected 3 topics, got %d", len(vLog.Topics))
		}

		event.EventType = domain.EventTypeDelisted
		event.TokenID = new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String()
		event.Data["seller"] = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()

	default:
		return nil, fmt.Errorf("unknown event signature: %s", vLog.Topics[0].Hex())
	}

	return event, nil
}

// TotalSupply reads the live total supply for a token from the art contract
func (c *client) TotalSupply(ctx context.Context, tokenID string) (string, error) {
	// ERC1155 supply extension: totalSupply(uint256) returns (uint256)
	supplyABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"id","type":"uint256"}],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("invalid token id: %s", tokenID)
	}

	data, err := supplyABI.Pack("totalSupply", id)
	if err != nil {
		return "", fmt.Errorf("failed to pack data: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.artAddress,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call contract: %w", err)
	}

	var supply *big.Int
	if err := supplyABI.UnpackIntoInterface(&supply, "totalSupply", result); err != nil {
		return "", fmt.Errorf("failed to unpack result: %w", err)
	}

	return supply.String(), nil
}

// RoyaltyInfo reads the ERC-2981 royalty configuration for a token.
// The call is made with a 10000 sample sale price so the returned royalty
// amount is directly the share in basis points.
func (c *client) RoyaltyInfo(ctx context.Context, tokenID string) (*domain.RoyaltyInfo, error) {
	// ERC2981: royaltyInfo(uint256,uint256) returns (address,uint256)
	royaltyABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"},{"name":"salePrice","type":"uint256"}],"name":"royaltyInfo","outputs":[{"name":"receiver","type":"address"},{"name":"royaltyAmount","type":"uint256"}],"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id: %s", tokenID)
	}

	data, err := royaltyABI.Pack("royaltyInfo", id, royaltySampleSalePrice)
	if err != nil {
		return nil, fmt.Errorf("failed to pack data: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.artAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}

	out, err := royaltyABI.Unpack("royaltyInfo", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	receiver := out[0].(common.Address)
	amount := out[1].(*big.Int)

	return &domain.RoyaltyInfo{
		Recipient: receiver.Hex(),
		Bps:       uint32(amount.Uint64()), //nolint:gosec,G115
	}, nil
}

// ListingCount reads the number of listing slots for a token
func (c *client) ListingCount(ctx context.Context, tokenID string) (uint64, error) {
	// listingCount(uint256) returns (uint256)
	countABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"listingCount","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return 0, fmt.Errorf("failed to parse ABI: %w", err)
	}

	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return 0, fmt.Errorf("invalid token id: %s", tokenID)
	}

	data, err := countABI.Pack("listingCount", id)
	if err != nil {
		return 0, fmt.Errorf("failed to pack data: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.marketplaceAddress,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call contract: %w", err)
	}

	var count *big.Int
	if err := countABI.UnpackIntoInterface(&count, "listingCount", result); err != nil {
		return 0, fmt.Errorf("failed to unpack result: %w", err)
	}

	return count.Uint64(), nil
}

// Listing reads one marketplace listing slot
func (c *client) Listing(ctx context.Context, tokenID string, index uint64) (*domain.Listing, error) {
	// listings(uint256,uint256) returns (address,uint256,uint256)
	listingABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"},{"name":"index","type":"uint256"}],"name":"listings","outputs":[{"name":"seller","type":"address"},{"name":"price","type":"uint256"},{"name":"amount","type":"uint256"}],"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id: %s", tokenID)
	}

	data, err := listingABI.Pack("listings", id, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, fmt.Errorf("failed to pack data: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.marketplaceAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}

	out, err := listingABI.Unpack("listings", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	seller := out[0].(common.Address)
	price := out[1].(*big.Int)
	amount := out[2].(*big.Int)

	return &domain.Listing{
		Seller: seller.Hex(),
		Price:  price.String(),
		Amount: amount.Uint64(),
	}, nil
}

// GetArtwork reads the on-chain artwork record for a token
func (c *client) GetArtwork(ctx context.Context, tokenID string) (*domain.TokenContent, error) {
	// getArtwork(uint256) returns (address,string,string,string,string,uint256)
	artworkABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getArtwork","outputs":[{"name":"author","type":"address"},{"name":"name_","type":"string"},{"name":"description","type":"string"},{"name":"contentType","type":"string"},{"name":"content","type":"string"},{"name":"mintBlock","type":"uint256"}],"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id: %s", tokenID)
	}

	data, err := artworkABI.Pack("getArtwork", id)
	if err != nil {
		return nil, fmt.Errorf("failed to pack data: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.artAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}

	out, err := artworkABI.Unpack("getArtwork", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	author := out[0].(common.Address)
	mintBlock := out[5].(*big.Int)

	return &domain.TokenContent{
		TokenID:     tokenID,
		Author:      author.Hex(),
		Name:        out[1].(string),
		Description: out[2].(string),
		ContentType: out[3].(string),
		Content:     out[4].(string),
		MintBlock:   mintBlock.Uint64(),
	}, nil
}

// Close closes the connection
func (c *client) Close() {
	c.eth.Close()
}
