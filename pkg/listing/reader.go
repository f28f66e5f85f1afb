package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
)

// Reader fetches listings. Results are never cached: bids change every block.
type Reader struct {
	ledger abi.Executor
}

func NewReader(l abi.Executor) *Reader {
	return &Reader{ledger: l}
}

// saleDataExecutor validates get_sale_data replies before abi.GetSaleData decodes them,
// so only the fixed price and auction layouts reach it and nothing is narrowed silently.
type saleDataExecutor struct {
	abi.Executor
}

func (e saleDataExecutor) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	code, stack, err := e.Executor.RunSmcMethodByID(ctx, account, methodID, params)
	if err != nil || (code != 0 && code != 1) {
		return code, stack, err
	}
	reply, err := core.StackFromVm(stack)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", core.ErrUnrecognizedListing, err)
	}
	var layout []field
	switch len(reply) {
	case fixedPriceArity:
		layout = fixedPriceLayout
	case auctionArity:
		layout = auctionLayout
	default:
		return 0, nil, fmt.Errorf("%w: %d fields", core.ErrUnrecognizedListing, len(reply))
	}
	checked, err := checkReply(reply, layout)
	if err != nil {
		return 0, nil, err
	}
	return code, checked, nil
}

func (r *Reader) GetListing(ctx context.Context, address ton.AccountID) (core.Listing, error) {
	res, err := core.Query[any](ctx, saleDataExecutor{r.ledger}, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetSaleData(ctx, exec, address)
	})
	if err != nil {
		return core.Listing{}, fmt.Errorf("get_sale_data of %v: %w", address.ToRaw(), err)
	}
	var l core.Listing
	switch data := res.(type) {
	case abi.GetSaleData_GetgemsResult:
		var d core.FixedPriceData
		if d, err = fromGetgems(data); err == nil {
			l = fixedPriceListing(address, d)
		}
	case abi.GetSaleData_GetgemsAuctionResult:
		var d core.AuctionData
		if d, err = fromGetgemsAuction(data); err == nil {
			l = auctionListing(address, d)
		}
	default:
		err = fmt.Errorf("%w: %T", core.ErrUnrecognizedListing, res)
	}
	if err != nil {
		return core.Listing{}, fmt.Errorf("listing %v: %w", address.ToRaw(), err)
	}
	return l, nil
}

// NFTOwner reads the current owner of nft.
func (r *Reader) NFTOwner(ctx context.Context, nft ton.AccountID) (ton.AccountID, error) {
	data, err := core.Query[abi.GetNftDataResult](ctx, r.ledger, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetNftData(ctx, exec, nft)
	})
	if err != nil {
		return ton.AccountID{}, fmt.Errorf("get_nft_data of %v: %w", nft.ToRaw(), err)
	}
	owner, err := cellcodec.Address(data.OwnerAddress)
	if err != nil {
		return ton.AccountID{}, fmt.Errorf("nft owner: %w", err)
	}
	if owner == nil {
		return ton.AccountID{}, errors.New("nft has no owner")
	}
	return *owner, nil
}

// ListingForNFT resolves the sale contract that currently owns nft and reads it.
func (r *Reader) ListingForNFT(ctx context.Context, nft ton.AccountID) (core.Listing, error) {
	owner, err := r.NFTOwner(ctx, nft)
	if err != nil {
		return core.Listing{}, err
	}
	l, err := r.GetListing(ctx, owner)
	if err != nil {
		return core.Listing{}, fmt.Errorf("nft %v is not on sale: %w", nft.ToRaw(), err)
	}
	if l.NFT != nft {
		return core.Listing{}, fmt.Errorf("%w: sale contract %v sells %v", core.ErrUnrecognizedListing, owner.ToRaw(), l.NFT.ToRaw())
	}
	return l, nil
}
