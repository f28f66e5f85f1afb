package core

import (
	"math/big"

	"github.com/tonkeeper/tongo/ton"
)

type ListingKind string

const (
	FixedPriceListing ListingKind = "fixed_price"
	AuctionListing    ListingKind = "auction"
)

type FixedPriceData struct {
	IsComplete         bool
	CreatedAt          uint32
	Marketplace        ton.AccountID
	NFT                ton.AccountID
	Owner              *ton.AccountID
	FullPrice          *big.Int
	MarketplaceFeeAddr ton.AccountID
	MarketplaceFee     *big.Int
	RoyaltyAddr        ton.AccountID
	RoyaltyAmount      *big.Int
}

type AuctionData struct {
	End                bool
	EndTime            uint32
	Marketplace        ton.AccountID
	NFT                ton.AccountID
	Owner              *ton.AccountID
	LastBid            *big.Int
	LastMember         *ton.AccountID
	MinStep            *big.Int
	MarketplaceFeeAddr ton.AccountID
	MarketplaceFeeNum  *big.Int
	MarketplaceFeeDen  *big.Int
	RoyaltyAddr        ton.AccountID
	RoyaltyNum         *big.Int
	RoyaltyDen         *big.Int
	MaxBid             *big.Int
	MinBid             *big.Int
	CreatedAt          uint32
	LastBidAt          uint32
	IsCanceled         bool
}

// Listing is the minimal view of a sale contract. Auction fields are zero for fixed price.
type Listing struct {
	Kind       ListingKind
	Address    ton.AccountID
	NFT        ton.AccountID
	Owner      *ton.AccountID
	FullPrice  *big.Int
	MinBid     *big.Int
	LastBid    *big.Int
	LastMember *ton.AccountID
	MaxBid     *big.Int
	MinStep    *big.Int
	EndTime    uint32
}

func (l Listing) IsAuction() bool {
	return l.Kind == AuctionListing
}
