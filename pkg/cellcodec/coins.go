// Package cellcodec encodes and decodes the cells exchanged with jetton, NFT sale and DEX contracts.
package cellcodec

import (
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

const maxCoinsBytes = 15

// Coins converts an amount to VarUInteger 16. nil is zero.
func Coins(v *big.Int) (tlb.VarUInteger16, error) {
	if v == nil {
		return tlb.VarUInteger16{}, nil
	}
	if v.Sign() < 0 {
		return tlb.VarUInteger16{}, fmt.Errorf("%w: negative amount %v", core.ErrEncoding, v)
	}
	if len(v.Bytes()) > maxCoinsBytes {
		return tlb.VarUInteger16{}, fmt.Errorf("%w: amount %v does not fit into coins", core.ErrEncoding, v)
	}
	return tlb.VarUInteger16(*new(big.Int).Set(v)), nil
}

// Grams converts an amount of nanotons. Message values are limited to 64 bits.
func Grams(v *big.Int) (tlb.Grams, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: amount %v does not fit into grams", core.ErrEncoding, v)
	}
	return tlb.Grams(v.Uint64()), nil
}

func FromCoins(v tlb.VarUInteger16) *big.Int {
	i := big.Int(v)
	return new(big.Int).Set(&i)
}

// Address reads a std address. addr_none yields nil.
func Address(a tlb.MsgAddress) (*ton.AccountID, error) {
	id, err := ton.AccountIDFromTlb(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	return id, nil
}

// AnyCell embeds c whole, whatever was already read from it.
func AnyCell(c *boc.Cell) tlb.Any {
	c.ResetCounters()
	return tlb.Any(*c)
}

// Encode marshals v into a fresh cell.
func Encode(v any) (*boc.Cell, error) {
	c := boc.NewCell()
	if err := tlb.Marshal(c, v); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	return c, nil
}

// Decode unmarshals c from its first bit into v.
func Decode(c *boc.Cell, v any) error {
	c.ResetCounters()
	if err := tlb.Unmarshal(c, v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	return nil
}

// CellFromAny materializes a tlb.Any read from a reply or a message.
func CellFromAny(a tlb.Any) (*boc.Cell, error) {
	c := boc.NewCell()
	if err := tlb.Marshal(c, a); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	return c, nil
}
