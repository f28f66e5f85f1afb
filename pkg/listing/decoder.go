// Package listing interprets get_sale_data replies of marketplace sale contracts.
package listing

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
)

const (
	fixedPriceArity = 11
	auctionArity    = 20

	fixedPriceTag = 0x46495850 // "FIXP"
	auctionTag    = 0x415543   // "AUC"
)

type fieldKind int

const (
	intField fieldKind = iota
	boolField
	addressField
	optAddressField
)

// field describes one stack position. bits bounds unsigned integers, zero means any int257.
type field struct {
	kind fieldKind
	bits int
}

var (
	u32     = field{kind: intField, bits: 32}
	u64     = field{kind: intField, bits: 64}
	int257  = field{kind: intField}
	flag    = field{kind: boolField}
	addr    = field{kind: addressField}
	optAddr = field{kind: optAddressField}
)

var fixedPriceLayout = []field{
	u64,     // magic
	flag,    // is_complete
	u32,     // created_at
	addr,    // marketplace
	addr,    // nft
	optAddr, // owner
	int257,  // full_price
	addr,    // market fee address
	u64,     // market fee
	addr,    // royalty address
	u64,     // royalty amount
}

var auctionLayout = []field{
	u64,     // magic
	flag,    // end
	u32,     // end_time
	addr,    // marketplace
	addr,    // nft
	optAddr, // owner
	u64,     // last_bid
	optAddr, // last_member
	u64,     // min_step
	addr,    // market fee address
	u32,     // mp_fee_factor
	u32,     // mp_fee_base
	addr,    // royalty address
	u32,     // royalty_fee_factor
	u32,     // royalty_fee_base
	u64,     // max_bid
	u64,     // min_bid
	u32,     // created_at
	u32,     // last_bid_at
	flag,    // is_canceled
}

// IsAuction reports whether the reply has the auction layout.
func IsAuction(reply core.Stack) bool {
	return len(reply) == auctionArity
}

// Decode dispatches on the reply arity. Unknown arities fail with ErrUnrecognizedListing.
func Decode(address ton.AccountID, reply core.Stack) (core.Listing, error) {
	switch len(reply) {
	case fixedPriceArity:
		d, err := DecodeFixedPrice(reply)
		if err != nil {
			return core.Listing{}, err
		}
		return fixedPriceListing(address, d), nil
	case auctionArity:
		d, err := DecodeAuction(reply)
		if err != nil {
			return core.Listing{}, err
		}
		return auctionListing(address, d), nil
	default:
		return core.Listing{}, fmt.Errorf("%w: %d fields", core.ErrUnrecognizedListing, len(reply))
	}
}

func fixedPriceListing(address ton.AccountID, d core.FixedPriceData) core.Listing {
	return core.Listing{
		Kind:      core.FixedPriceListing,
		Address:   address,
		NFT:       d.NFT,
		Owner:     d.Owner,
		FullPrice: d.FullPrice,
	}
}

func auctionListing(address ton.AccountID, d core.AuctionData) core.Listing {
	return core.Listing{
		Kind:       core.AuctionListing,
		Address:    address,
		NFT:        d.NFT,
		Owner:      d.Owner,
		FullPrice:  d.MaxBid,
		MinBid:     d.MinBid,
		LastBid:    d.LastBid,
		LastMember: d.LastMember,
		MaxBid:     d.MaxBid,
		MinStep:    d.MinStep,
		EndTime:    d.EndTime,
	}
}

func DecodeFixedPrice(reply core.Stack) (core.FixedPriceData, error) {
	if len(reply) != fixedPriceArity {
		return core.FixedPriceData{}, fmt.Errorf("%w: fixed price reply has %d fields, got %d", core.ErrWrongListingKind, fixedPriceArity, len(reply))
	}
	stack, err := checkReply(reply, fixedPriceLayout)
	if err != nil {
		return core.FixedPriceData{}, fmt.Errorf("decode fixed price: %w", err)
	}
	_, res, err := abi.DecodeGetSaleData_GetgemsResult(stack)
	if err != nil {
		return core.FixedPriceData{}, fmt.Errorf("decode fixed price: %w: %v", core.ErrUnrecognizedListing, err)
	}
	return fromGetgems(res.(abi.GetSaleData_GetgemsResult))
}

func DecodeAuction(reply core.Stack) (core.AuctionData, error) {
	if len(reply) != auctionArity {
		return core.AuctionData{}, fmt.Errorf("%w: auction reply has %d fields, got %d", core.ErrWrongListingKind, auctionArity, len(reply))
	}
	stack, err := checkReply(reply, auctionLayout)
	if err != nil {
		return core.AuctionData{}, fmt.Errorf("decode auction: %w", err)
	}
	_, res, err := abi.DecodeGetSaleData_GetgemsAuctionResult(stack)
	if err != nil {
		return core.AuctionData{}, fmt.Errorf("decode auction: %w: %v", core.ErrUnrecognizedListing, err)
	}
	return fromGetgemsAuction(res.(abi.GetSaleData_GetgemsAuctionResult))
}

// checkReply validates every position against layout before the abi decoders see
// the stack: they narrow integers without range checks and refuse null addresses.
func checkReply(reply core.Stack, layout []field) (tlb.VmStack, error) {
	normalized := make(core.Stack, len(reply))
	for i, v := range reply {
		f := layout[i]
		switch f.kind {
		case intField, boolField:
			n, err := v.BigInt()
			if err != nil {
				return nil, fmt.Errorf("%w: field %d: %v", core.ErrUnrecognizedListing, i, err)
			}
			if f.bits > 0 && (n.Sign() < 0 || n.BitLen() > f.bits) {
				return nil, fmt.Errorf("%w: field %d: %v does not fit uint%d", core.ErrUnrecognizedListing, i, n, f.bits)
			}
			if f.bits == 64 && n.Cmp(maxInt64) > 0 {
				return nil, fmt.Errorf("%w: field %d: %v out of range", core.ErrUnrecognizedListing, i, n)
			}
		case addressField, optAddressField:
			if v.Kind == core.StackNull && f.kind == optAddressField {
				v = core.NoneAddressValue()
			}
			a, err := v.Address()
			if err != nil {
				return nil, fmt.Errorf("%w: field %d: %v", core.ErrUnrecognizedListing, i, err)
			}
			if a == nil && f.kind == addressField {
				return nil, fmt.Errorf("%w: field %d: address is none", core.ErrUnrecognizedListing, i)
			}
			v = core.SliceValue(v.Cell)
		}
		normalized[i] = v
	}
	return normalized.VmStack()
}

var maxInt64 = big.NewInt(math.MaxInt64)

func checkTag(got uint64, want uint64) error {
	if got != want {
		return fmt.Errorf("%w: unexpected sale tag 0x%x", core.ErrUnrecognizedListing, got)
	}
	return nil
}

// addresses converts the abi addresses of a reply and keeps the first failure.
type addresses struct {
	err error
}

func (a *addresses) opt(m tlb.MsgAddress) *ton.AccountID {
	if a.err != nil {
		return nil
	}
	id, err := cellcodec.Address(m)
	if err != nil {
		a.err = fmt.Errorf("%w: %v", core.ErrUnrecognizedListing, err)
	}
	return id
}

func (a *addresses) must(m tlb.MsgAddress) ton.AccountID {
	id := a.opt(m)
	if id == nil {
		if a.err == nil {
			a.err = fmt.Errorf("%w: address is none", core.ErrUnrecognizedListing)
		}
		return ton.AccountID{}
	}
	return *id
}

func uint64Int(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func fromGetgems(r abi.GetSaleData_GetgemsResult) (core.FixedPriceData, error) {
	if err := checkTag(r.Magic, fixedPriceTag); err != nil {
		return core.FixedPriceData{}, err
	}
	var a addresses
	price := big.Int(r.FullPrice)
	d := core.FixedPriceData{
		IsComplete:         r.IsComplete,
		CreatedAt:          uint32(r.CreatedAt),
		Marketplace:        a.must(r.Marketplace),
		NFT:                a.must(r.Nft),
		Owner:              a.opt(r.Owner),
		FullPrice:          new(big.Int).Set(&price),
		MarketplaceFeeAddr: a.must(r.MarketFeeAddress),
		MarketplaceFee:     uint64Int(r.MarketFee),
		RoyaltyAddr:        a.must(r.RoyaltyAddress),
		RoyaltyAmount:      uint64Int(r.RoyaltyAmount),
	}
	if a.err != nil {
		return core.FixedPriceData{}, fmt.Errorf("decode fixed price: %w", a.err)
	}
	return d, nil
}

func fromGetgemsAuction(r abi.GetSaleData_GetgemsAuctionResult) (core.AuctionData, error) {
	if err := checkTag(r.Magic, auctionTag); err != nil {
		return core.AuctionData{}, err
	}
	var a addresses
	d := core.AuctionData{
		End:                r.End,
		EndTime:            r.EndTime,
		Marketplace:        a.must(r.Marketplace),
		NFT:                a.must(r.Nft),
		Owner:              a.opt(r.Owner),
		LastBid:            uint64Int(r.LastBid),
		LastMember:         a.opt(r.LastMember),
		MinStep:            uint64Int(r.MinStep),
		MarketplaceFeeAddr: a.must(r.MarketFeeAddress),
		MarketplaceFeeNum:  uint64Int(uint64(r.MpFeeFactor)),
		MarketplaceFeeDen:  uint64Int(uint64(r.MpFeeBase)),
		RoyaltyAddr:        a.must(r.RoyaltyAddress),
		RoyaltyNum:         uint64Int(uint64(r.RoyaltyFeeFactor)),
		RoyaltyDen:         uint64Int(uint64(r.RoyaltyFeeBase)),
		MaxBid:             uint64Int(r.MaxBid),
		MinBid:             uint64Int(r.MinBid),
		CreatedAt:          r.CreatedAt,
		LastBidAt:          r.LastBidAt,
		IsCanceled:         r.IsCanceled,
	}
	if a.err != nil {
		return core.AuctionData{}, fmt.Errorf("decode auction: %w", a.err)
	}
	return d, nil
}

// NextValidBid is min_bid before the first bid, then last_bid grown by min_step percent.
func NextValidBid(l core.Listing) (*big.Int, error) {
	if !l.IsAuction() {
		return nil, core.ErrWrongListingKind
	}
	if l.LastBid == nil || l.LastBid.Sign() == 0 {
		return new(big.Int).Set(orZero(l.MinBid)), nil
	}
	step := new(big.Int).Mul(l.LastBid, orZero(l.MinStep))
	step.Quo(step, big.NewInt(100))
	return step.Add(step, l.LastBid), nil
}

// IsAuctionEnded is true strictly after end_time.
func IsAuctionEnded(l core.Listing, now time.Time) (bool, error) {
	if !l.IsAuction() {
		return false, core.ErrWrongListingKind
	}
	return now.Unix() > int64(l.EndTime), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
