package cellcodec

import (
	"fmt"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

// StateInit holds the code and data a contract is deployed with.
type StateInit struct {
	Code *boc.Cell
	Data *boc.Cell
}

// TLB is the StateInit without split_depth, special and libraries.
func (s StateInit) TLB() (tlb.StateInit, error) {
	var init tlb.StateInit
	if s.Code == nil || s.Data == nil {
		return init, fmt.Errorf("%w: state init requires code and data", core.ErrEncoding)
	}
	s.Code.ResetCounters()
	s.Data.ResetCounters()
	init.Code.Exists = true
	init.Code.Value.Value = *s.Code
	init.Data.Exists = true
	init.Data.Value.Value = *s.Data
	return init, nil
}

func (s StateInit) Cell() (*boc.Cell, error) {
	init, err := s.TLB()
	if err != nil {
		return nil, err
	}
	return Encode(init)
}

// Address is the deterministic address of the contract in workchain.
func (s StateInit) Address(workchain int32) (ton.AccountID, error) {
	c, err := s.Cell()
	if err != nil {
		return ton.AccountID{}, err
	}
	h, err := c.Hash()
	if err != nil {
		return ton.AccountID{}, err
	}
	return ton.AccountID{Workchain: workchain, Address: ton.Bits256(h)}, nil
}

// FromTLB keeps code and data. Split depth, special and libraries are rejected.
func FromTLB(init tlb.StateInit) (StateInit, error) {
	var s StateInit
	if init.SplitDepth.Exists || init.Special.Exists || len(init.Library.Keys()) > 0 {
		return s, fmt.Errorf("%w: split_depth, special and libraries are not supported", core.ErrEncoding)
	}
	if init.Code.Exists {
		code := init.Code.Value.Value
		s.Code = &code
	}
	if init.Data.Exists {
		data := init.Data.Value.Value
		s.Data = &data
	}
	return s, nil
}

// ReadStateInit parses a StateInit written by Cell.
func ReadStateInit(c *boc.Cell) (StateInit, error) {
	var init tlb.StateInit
	if err := Decode(c, &init); err != nil {
		return StateInit{}, err
	}
	return FromTLB(init)
}

// DecodeCode parses a single-root BOC given as hex or base64.
func DecodeCode(s string) (*boc.Cell, error) {
	cells, err := boc.DeserializeBocHex(s)
	if err != nil {
		cells, err = boc.DeserializeBocBase64(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid code boc: %v", core.ErrEncoding, err)
	}
	if len(cells) != 1 {
		return nil, fmt.Errorf("%w: code boc must have one root, got %d", core.ErrEncoding, len(cells))
	}
	return cells[0], nil
}
