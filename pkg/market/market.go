// Package market buys, bids on and cancels NFT sales.
package market

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/listing"
	"github.com/txsociety/ton-agent/pkg/txn"
)

var (
	// GasMargin is added on top of prices and bids. It is not refunded when execution fails.
	GasMargin = core.Nano(1)
	CancelGas = core.MilliTON(100)
)

type executor interface {
	Wallet() ton.AccountID
	Execute(ctx context.Context, req txn.Request) (core.OperationResult, error)
}

type listings interface {
	ListingForNFT(ctx context.Context, nft ton.AccountID) (core.Listing, error)
	GetListing(ctx context.Context, address ton.AccountID) (core.Listing, error)
	NFTOwner(ctx context.Context, nft ton.AccountID) (ton.AccountID, error)
}

// Service reads the listing again on every call, sale state changes between blocks.
type Service struct {
	executor executor
	listings listings
	now      func() time.Time
}

func New(e executor, l listings) *Service {
	return &Service{executor: e, listings: l, now: time.Now}
}

func (s *Service) Buy(ctx context.Context, nft ton.AccountID) (core.OperationResult, error) {
	l, err := s.listings.ListingForNFT(ctx, nft)
	if err != nil {
		return core.OperationResult{}, fail(core.BuyOperation, map[string]ton.AccountID{"nft": nft}, nil, err)
	}
	addresses := map[string]ton.AccountID{"nft": nft, "listing": l.Address}
	if l.FullPrice == nil || l.FullPrice.Sign() <= 0 {
		return core.OperationResult{}, fail(core.BuyOperation, addresses, nil, fmt.Errorf("%w: listing has no buy-now price", core.ErrWrongListingKind))
	}
	value := new(big.Int).Add(l.FullPrice, GasMargin)
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.BuyOperation,
		Messages:  []txn.InternalMessage{{Destination: l.Address, Value: value, Bounce: true}},
		Addresses: addresses,
		Amounts:   map[string]*big.Int{"price": l.FullPrice, "value": value},
		Details:   map[string]string{"listing_kind": string(l.Kind)},
		Effect:    s.ownedBy(nft, s.executor.Wallet()),
	})
}

// ownedBy expects nft to be transferred to owner.
func (s *Service) ownedBy(nft, owner ton.AccountID) *txn.Effect {
	return &txn.Effect{
		Description: fmt.Sprintf("nft %v to be owned by %v", nft.ToRaw(), owner.ToRaw()),
		Observe: func(ctx context.Context) (bool, error) {
			current, err := s.listings.NFTOwner(ctx, nft)
			if err != nil {
				return false, err
			}
			return current == owner, nil
		},
	}
}

func (s *Service) Cancel(ctx context.Context, nft ton.AccountID) (core.OperationResult, error) {
	l, err := s.listings.ListingForNFT(ctx, nft)
	if err != nil {
		return core.OperationResult{}, fail(core.CancelOperation, map[string]ton.AccountID{"nft": nft}, nil, err)
	}
	addresses := map[string]ton.AccountID{"nft": nft, "listing": l.Address}
	body, err := cellcodec.CancelSaleBody(cellcodec.NewQueryID(), l.IsAuction())
	if err != nil {
		return core.OperationResult{}, fail(core.CancelOperation, addresses, nil, err)
	}
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.CancelOperation,
		Messages:  []txn.InternalMessage{{Destination: l.Address, Value: CancelGas, Bounce: true, Body: body}},
		Addresses: addresses,
		Amounts:   map[string]*big.Int{"value": CancelGas},
		Details:   map[string]string{"listing_kind": string(l.Kind)},
		Effect: &txn.Effect{
			Description: fmt.Sprintf("nft %v to leave sale contract %v", nft.ToRaw(), l.Address.ToRaw()),
			Observe: func(ctx context.Context) (bool, error) {
				current, err := s.listings.NFTOwner(ctx, nft)
				if err != nil {
					return false, err
				}
				return current != l.Address, nil
			},
		},
	})
}

// Bid places amount on an auction. Domain checks run before anything is signed.
func (s *Service) Bid(ctx context.Context, nft ton.AccountID, amount *big.Int) (core.OperationResult, error) {
	amounts := map[string]*big.Int{"amount": amount}
	if amount == nil || amount.Sign() <= 0 {
		return core.OperationResult{}, fail(core.BidOperation, map[string]ton.AccountID{"nft": nft}, amounts, fmt.Errorf("%w: bid must be positive", core.ErrBidTooLow))
	}
	l, err := s.listings.ListingForNFT(ctx, nft)
	if err != nil {
		return core.OperationResult{}, fail(core.BidOperation, map[string]ton.AccountID{"nft": nft}, amounts, err)
	}
	addresses := map[string]ton.AccountID{"nft": nft, "listing": l.Address}
	if !l.IsAuction() {
		return core.OperationResult{}, fail(core.BidOperation, addresses, amounts, fmt.Errorf("%w: %s listing does not take bids", core.ErrWrongListingKind, l.Kind))
	}
	ended, err := listing.IsAuctionEnded(l, s.now())
	if err != nil {
		return core.OperationResult{}, fail(core.BidOperation, addresses, amounts, err)
	}
	if ended {
		return core.OperationResult{}, fail(core.BidOperation, addresses, amounts, fmt.Errorf("%w at %d", core.ErrAuctionEnded, l.EndTime))
	}
	next, err := listing.NextValidBid(l)
	if err != nil {
		return core.OperationResult{}, fail(core.BidOperation, addresses, amounts, err)
	}
	amounts["min_bid"] = l.MinBid
	amounts["next_bid"] = next
	if l.MinBid != nil && amount.Cmp(l.MinBid) < 0 {
		return core.OperationResult{}, fail(core.BidOperation, addresses, amounts, fmt.Errorf("%w: %v is below min bid %v", core.ErrBidTooLow, amount, l.MinBid))
	}
	if amount.Cmp(next) < 0 {
		return core.OperationResult{}, fail(core.BidOperation, addresses, amounts, fmt.Errorf("%w: %v is below next valid bid %v", core.ErrBidTooLow, amount, next))
	}
	value := new(big.Int).Add(amount, GasMargin)
	amounts["value"] = value
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.BidOperation,
		Messages:  []txn.InternalMessage{{Destination: l.Address, Value: value, Bounce: true}},
		Addresses: addresses,
		Amounts:   amounts,
		Details:   map[string]string{"end_time": strconv.FormatUint(uint64(l.EndTime), 10)},
		Effect:    s.bidPlaced(l.Address, amount),
	})
}

// bidPlaced expects the auction to show a bid of at least amount from the agent wallet.
// A higher bid from someone else also proves the agent bid went through and was refunded.
func (s *Service) bidPlaced(auction ton.AccountID, amount *big.Int) *txn.Effect {
	wallet := s.executor.Wallet()
	return &txn.Effect{
		Description: fmt.Sprintf("bid of %v from %v on %v", amount, wallet.ToRaw(), auction.ToRaw()),
		Observe: func(ctx context.Context) (bool, error) {
			l, err := s.listings.GetListing(ctx, auction)
			if err != nil {
				return false, err
			}
			if l.LastBid == nil || l.LastBid.Cmp(amount) < 0 {
				return false, nil
			}
			if l.LastMember != nil && *l.LastMember == wallet {
				return true, nil
			}
			return l.LastBid.Cmp(amount) > 0, nil
		},
	}
}

func fail(kind core.OperationKind, addresses map[string]ton.AccountID, amounts map[string]*big.Int, err error) error {
	return &core.OperationError{Op: string(kind), Addresses: addresses, Amounts: amounts, Cause: err}
}
