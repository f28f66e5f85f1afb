package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

type StackKind int

const (
	StackNull StackKind = iota
	StackInt
	StackCell
	StackSlice
)

func (k StackKind) String() string {
	switch k {
	case StackNull:
		return "null"
	case StackInt:
		return "int"
	case StackCell:
		return "cell"
	case StackSlice:
		return "slice"
	}
	return "unknown"
}

// StackValue is one entry of a get-method reply or argument list.
type StackValue struct {
	Kind StackKind
	Int  *big.Int
	Cell *boc.Cell
}

type Stack []StackValue

func IntValue(v *big.Int) StackValue {
	return StackValue{Kind: StackInt, Int: new(big.Int).Set(v)}
}

func Int64Value(v int64) StackValue {
	return StackValue{Kind: StackInt, Int: big.NewInt(v)}
}

func CellValue(c *boc.Cell) StackValue {
	return StackValue{Kind: StackCell, Cell: c}
}

func SliceValue(c *boc.Cell) StackValue {
	return StackValue{Kind: StackSlice, Cell: c}
}

func NullValue() StackValue {
	return StackValue{Kind: StackNull}
}

// AddressValue packs an address into a slice argument.
func AddressValue(a ton.AccountID) StackValue {
	return msgAddressValue(a.ToMsgAddress())
}

// NoneAddressValue is addr_none as contracts return it for an unset address.
func NoneAddressValue() StackValue {
	return msgAddressValue((*ton.AccountID)(nil).ToMsgAddress())
}

func msgAddressValue(a tlb.MsgAddress) StackValue {
	c := boc.NewCell()
	_ = tlb.Marshal(c, a)
	return SliceValue(c)
}

func (v StackValue) BigInt() (*big.Int, error) {
	if v.Kind != StackInt {
		return nil, fmt.Errorf("expected int, got %v", v.Kind)
	}
	return new(big.Int).Set(v.Int), nil
}

func (v StackValue) Uint64() (uint64, error) {
	i, err := v.BigInt()
	if err != nil {
		return 0, err
	}
	if i.Sign() < 0 || !i.IsUint64() {
		return 0, fmt.Errorf("int %v out of uint64 range", i)
	}
	return i.Uint64(), nil
}

// Bool follows the TVM convention: zero is false, anything else true.
func (v StackValue) Bool() (bool, error) {
	i, err := v.BigInt()
	if err != nil {
		return false, err
	}
	return i.Sign() != 0, nil
}

// Address reads a MsgAddress from a slice or cell entry. addr_none yields nil.
func (v StackValue) Address() (*ton.AccountID, error) {
	if v.Kind != StackSlice && v.Kind != StackCell {
		return nil, fmt.Errorf("expected slice, got %v", v.Kind)
	}
	if v.Cell == nil {
		return nil, errors.New("empty slice")
	}
	v.Cell.ResetCounters()
	var a tlb.MsgAddress
	if err := tlb.Unmarshal(v.Cell, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	id, err := ton.AccountIDFromTlb(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return id, nil
}

func (v StackValue) RefCell() (*boc.Cell, error) {
	if v.Kind != StackCell && v.Kind != StackSlice {
		return nil, fmt.Errorf("expected cell, got %v", v.Kind)
	}
	v.Cell.ResetCounters()
	return v.Cell, nil
}

// VmStack converts get-method arguments to the TVM stack representation.
func (s Stack) VmStack() (tlb.VmStack, error) {
	stack := make(tlb.VmStack, 0, len(s))
	for i, v := range s {
		var item tlb.VmStackValue
		switch v.Kind {
		case StackNull:
			item.SumType = "VmStkNull"
		case StackInt:
			if v.Int.IsInt64() {
				item.SumType = "VmStkTinyInt"
				item.VmStkTinyInt = v.Int.Int64()
			} else {
				item.SumType = "VmStkInt"
				item.VmStkInt = tlb.Int257(*new(big.Int).Set(v.Int))
			}
		case StackCell:
			item.SumType = "VmStkCell"
			item.VmStkCell = tlb.Ref[boc.Cell]{Value: *orEmpty(v.Cell)}
		case StackSlice:
			c := orEmpty(v.Cell)
			c.ResetCounters()
			slice, err := tlb.CellToVmCellSlice(c)
			if err != nil {
				return nil, fmt.Errorf("%w: value %d: %v", ErrEncoding, i, err)
			}
			item.SumType = "VmStkSlice"
			item.VmStkSlice = slice.VmStkSlice
		default:
			return nil, fmt.Errorf("%w: value %d has kind %v", ErrEncoding, i, v.Kind)
		}
		stack = append(stack, item)
	}
	return stack, nil
}

func orEmpty(c *boc.Cell) *boc.Cell {
	if c == nil {
		return boc.NewCell()
	}
	return c
}

// StackFromVm converts a TVM stack back. Tuples and continuations are not supported.
func StackFromVm(stack tlb.VmStack) (Stack, error) {
	res := make(Stack, 0, len(stack))
	for i, item := range stack {
		switch item.SumType {
		case "VmStkNull":
			res = append(res, NullValue())
		case "VmStkTinyInt":
			res = append(res, Int64Value(item.VmStkTinyInt))
		case "VmStkInt":
			v := big.Int(item.VmStkInt)
			res = append(res, IntValue(&v))
		case "VmStkCell":
			c := item.VmStkCell.Value
			res = append(res, CellValue(&c))
		case "VmStkSlice":
			res = append(res, SliceValue(item.VmStkSlice.Cell()))
		default:
			return nil, fmt.Errorf("%w: value %d has unsupported type %v", ErrEncoding, i, item.SumType)
		}
	}
	return res, nil
}
