package cellcodec

import (
	"fmt"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/txsociety/ton-agent/pkg/core"
)

const (
	OnchainTag  byte = 0x00
	OffchainTag byte = 0x01

	// CellBits is the data capacity of a single cell.
	CellBits = 1023

	// maxSnakeCells keeps chains well below the ledger's cell depth limit.
	maxSnakeCells = 1000
)

// NewSnakeCell stores tag followed by data, chaining a child cell whenever one fills up.
func NewSnakeCell(tag byte, data []byte) (*boc.Cell, error) {
	if err := checkSnakeSize(data); err != nil {
		return nil, err
	}
	root := boc.NewCell()
	if err := root.WriteUint(uint64(tag), 8); err != nil {
		return nil, err
	}
	if err := tlb.Marshal(root, snakeData(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	return root, nil
}

// SnakeCells is the length of the chain that stores bits behind an 8-bit tag.
func SnakeCells(bits int) int {
	if bits <= CellBits-8 {
		return 1
	}
	return 1 + (bits-(CellBits-8)+CellBits-1)/CellBits
}

func checkSnakeSize(data []byte) error {
	if SnakeCells(len(data)*8) > maxSnakeCells {
		return fmt.Errorf("%w: value of %d bytes is too large for a snake chain", core.ErrEncoding, len(data))
	}
	return nil
}

func snakeData(data []byte) tlb.SnakeData {
	bs := boc.NewBitString(len(data) * 8)
	_ = bs.WriteBytes(data)
	return tlb.SnakeData(bs)
}

// ReadSnake reads the remaining bits of c and of its first-reference chain.
func ReadSnake(c *boc.Cell) ([]byte, error) {
	var data tlb.SnakeData
	if err := tlb.Unmarshal(c, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	bs := boc.BitString(data)
	if bs.BitsAvailableForRead()%8 != 0 {
		return nil, fmt.Errorf("%w: snake holds %d bits, not whole bytes", core.ErrEncoding, bs.BitsAvailableForRead())
	}
	return bs.GetTopUppedArray()
}

// ReadTaggedSnake reads the tag byte then the snake payload.
func ReadTaggedSnake(c *boc.Cell) (byte, []byte, error) {
	c.ResetCounters()
	tag, err := c.ReadUint(8)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: missing content tag", core.ErrEncoding)
	}
	data, err := ReadSnake(c)
	if err != nil {
		return 0, nil, err
	}
	return byte(tag), data, nil
}
