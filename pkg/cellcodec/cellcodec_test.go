package cellcodec

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

func testAccount(b byte) ton.AccountID {
	var a ton.AccountID
	for i := range a.Address {
		a.Address[i] = b
	}
	return a
}

func reload(t *testing.T, c *boc.Cell) *boc.Cell {
	t.Helper()
	raw, err := c.ToBoc()
	require.NoError(t, err)
	cells, err := boc.DeserializeBoc(raw)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	return cells[0]
}

func chainLength(c *boc.Cell) int {
	n := 1
	for c.RefsAvailableForRead() > 0 {
		next, err := c.NextRef()
		if err != nil {
			break
		}
		c = next
		n++
	}
	return n
}

func TestMetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   map[string]string
	}{
		{
			name:   "typical jetton",
			fields: map[string]string{"name": "Agent Coin", "symbol": "AGC", "decimals": "9", "description": "test token"},
			want:   map[string]string{"name": "Agent Coin", "symbol": "AGC", "decimals": "9", "description": "test token"},
		},
		{
			name:   "unsupported keys and empty values are dropped",
			fields: map[string]string{"name": "X", "website": "https://example.com", "image": ""},
			want:   map[string]string{"name": "X"},
		},
		{
			name:   "single key",
			fields: map[string]string{"uri": "https://example.com/meta.json"},
			want:   map[string]string{"uri": "https://example.com/meta.json"},
		},
		{
			name: "all keys",
			fields: map[string]string{
				"uri": "u", "name": "n", "description": "d", "image": "i", "image_data": "id",
				"symbol": "s", "decimals": "6", "amount_style": "n", "render_type": "currency",
			},
			want: map[string]string{
				"uri": "u", "name": "n", "description": "d", "image": "i", "image_data": "id",
				"symbol": "s", "decimals": "6", "amount_style": "n", "render_type": "currency",
			},
		},
		{
			name:   "nothing supported",
			fields: map[string]string{"foo": "bar"},
			want:   map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := EncodeOnchainMetadata(tt.fields)
			require.NoError(t, err)
			got, err := DecodeMetadata(reload(t, c))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetadataChunking(t *testing.T) {
	long := strings.Repeat("abcdefghij", 40)
	c, err := EncodeOnchainMetadata(map[string]string{"description": long, "name": "N"})
	require.NoError(t, err)
	got, err := DecodeMetadata(reload(t, c))
	require.NoError(t, err)
	assert.Equal(t, long, got["description"])

	value, err := NewSnakeCell(OnchainTag, []byte(long))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, chainLength(value), 2)
}

func TestSnakeBoundaries(t *testing.T) {
	for _, n := range []int{0, 1, 126, 127, 128, 254, 255, 256, 1000} {
		data := bytes.Repeat([]byte{0x5a}, n)
		c, err := NewSnakeCell(OnchainTag, data)
		require.NoError(t, err)
		assert.Equal(t, SnakeCells(n*8), chainLength(c), "length %d", n)

		tag, got, err := ReadTaggedSnake(reload(t, c))
		require.NoError(t, err)
		assert.Equal(t, OnchainTag, tag)
		assert.Equal(t, len(data), len(got))
		assert.True(t, bytes.Equal(data, got))
	}
	assert.Equal(t, 1, SnakeCells(CellBits-8))
	assert.Equal(t, 2, SnakeCells(CellBits-7))
	assert.Equal(t, 3, SnakeCells(2*CellBits))

	_, err := NewSnakeCell(OnchainTag, make([]byte, 200_000))
	assert.True(t, errors.Is(err, core.ErrEncoding))
}

func TestOffchainMetadata(t *testing.T) {
	uri := "https://example.com/" + strings.Repeat("x", 300) + ".json"
	c, err := EncodeOffchainMetadata(uri)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, chainLength(c), 2)
	got, err := DecodeMetadata(reload(t, c))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"uri": uri}, got)

	_, err = EncodeOffchainMetadata("")
	assert.True(t, errors.Is(err, core.ErrEncoding))
}

func TestDecodeMetadataUnknownTag(t *testing.T) {
	c := boc.NewCell()
	require.NoError(t, c.WriteUint(0x02, 8))
	_, err := DecodeMetadata(c)
	assert.True(t, errors.Is(err, core.ErrEncoding))
}

func TestOnchainMetadataDictionary(t *testing.T) {
	fields := map[string]string{"name": "N", "symbol": "S", "decimals": "9", "website": "dropped"}
	c, err := EncodeOnchainMetadata(fields)
	require.NoError(t, err)

	var content tlb.FullContent
	require.NoError(t, Decode(reload(t, c), &content))
	require.Equal(t, "Onchain", string(content.SumType))
	items := content.Onchain.Data.Items()
	require.Len(t, items, 3)
	for _, item := range items {
		var name string
		for _, k := range []string{"name", "symbol", "decimals"} {
			if tlb.Bits256(sha256.Sum256([]byte(k))) == item.Key {
				name = k
			}
		}
		require.NotEmpty(t, name)
		value, err := item.Value.Value.Bytes()
		require.NoError(t, err)
		assert.Equal(t, fields[name], string(value))
	}
}

func TestCoins(t *testing.T) {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 120), big.NewInt(1))
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), core.Nano(1_000_000_000), limit} {
		coins, err := Coins(v)
		require.NoError(t, err)
		c, err := Encode(coins)
		require.NoError(t, err)
		var got tlb.VarUInteger16
		require.NoError(t, Decode(c, &got))
		assert.Equal(t, 0, v.Cmp(FromCoins(got)), v.String())
	}
	_, err := Coins(new(big.Int).Lsh(big.NewInt(1), 120))
	assert.True(t, errors.Is(err, core.ErrEncoding))
	_, err = Coins(big.NewInt(-1))
	assert.True(t, errors.Is(err, core.ErrEncoding))

	g, err := Grams(core.Nano(5))
	require.NoError(t, err)
	assert.Equal(t, tlb.Grams(5), g)
	_, err = Grams(new(big.Int).Lsh(big.NewInt(1), 64))
	assert.True(t, errors.Is(err, core.ErrEncoding))
}

func TestMintBodyLayout(t *testing.T) {
	to := testAccount(0x11)
	resp := testAccount(0x22)
	c, err := MintBody(42, to, big.NewInt(1_000_000_000), core.MilliTON(50), &resp)
	require.NoError(t, err)
	c = reload(t, c)

	op, err := PeekOp(c)
	require.NoError(t, err)
	assert.Equal(t, OpMint, op)
	var mint MintMsgBody
	require.NoError(t, DecodeBody(c, &mint))
	assert.Equal(t, uint64(42), mint.QueryId)
	dst, err := Address(mint.ToAddress)
	require.NoError(t, err)
	assert.Equal(t, to, *dst)
	assert.Equal(t, uint64(core.MilliTON(50).Int64()), uint64(mint.TonAmount))

	require.Equal(t, abi.JettonInternalTransferMsgOp, mint.MasterMsg.SumType)
	require.NotNil(t, mint.MasterMsg.OpCode)
	assert.Equal(t, OpInternalTransfer, *mint.MasterMsg.OpCode)
	internal, ok := mint.MasterMsg.Value.(abi.JettonInternalTransferMsgBody)
	require.True(t, ok)
	assert.Equal(t, uint64(42), internal.QueryId)
	assert.Equal(t, int64(1_000_000_000), FromCoins(internal.Amount).Int64())
	from, err := Address(internal.From)
	require.NoError(t, err)
	assert.Nil(t, from)
	r, err := Address(internal.ResponseAddress)
	require.NoError(t, err)
	assert.Equal(t, resp, *r)
}

func TestBurnAndAdminBodies(t *testing.T) {
	resp := testAccount(0x33)
	c, err := BurnBody(7, big.NewInt(500), &resp)
	require.NoError(t, err)
	body, err := DecodeKnownBody(reload(t, c))
	require.NoError(t, err)
	require.Equal(t, abi.JettonBurnMsgOp, body.SumType)
	burn := body.Value.(abi.JettonBurnMsgBody)
	assert.Equal(t, uint64(7), burn.QueryId)
	assert.Equal(t, int64(500), FromCoins(burn.Amount).Int64())

	admin := testAccount(0x44)
	c, err = ChangeAdminBody(8, admin)
	require.NoError(t, err)
	op, err := PeekOp(c)
	require.NoError(t, err)
	assert.Equal(t, OpChangeAdmin, op)
	var change abi.JettonChangeAdminMsgBody
	require.NoError(t, DecodeBody(c, &change))
	got, err := Address(change.NewAdminAddress)
	require.NoError(t, err)
	assert.Equal(t, admin, *got)

	content, err := EncodeOffchainMetadata("ipfs://meta")
	require.NoError(t, err)
	c, err = UpdateMetadataBody(9, content)
	require.NoError(t, err)
	op, err = PeekOp(c)
	require.NoError(t, err)
	assert.Equal(t, OpChangeContent, op)
	assert.Equal(t, 1, c.RefsAvailableForRead())
	var update ChangeContentMsgBody
	require.NoError(t, DecodeBody(reload(t, c), &update))
	stored := boc.Cell(update.Content)
	meta, err := DecodeMetadata(&stored)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta", meta["uri"])
}

func TestJettonTransferPayloads(t *testing.T) {
	raw := boc.NewCell()
	require.NoError(t, raw.WriteUint(0xdeadbeef, 32))
	require.NoError(t, raw.WriteUint(7, 16))
	tokenWallet := testAccount(0x55)

	tests := []struct {
		name    string
		payload *abi.JettonPayload
		raw     *boc.Cell
		want    abi.JettonOpName
	}{
		{name: "no payload", want: abi.EmptyJettonOp},
		{name: "raw cell", raw: raw, want: abi.UnknownJettonOp},
		{
			name: "typed payload",
			payload: &abi.JettonPayload{
				SumType: abi.StonfiProvideLiquidityJettonOp,
				Value: abi.StonfiProvideLiquidityJettonPayload{
					TokenWallet: tokenWallet.ToMsgAddress(),
					MinLpOut:    tlb.VarUInteger16(*big.NewInt(1)),
				},
			},
			want: abi.StonfiProvideLiquidityJettonOp,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := JettonTransferBody(JettonTransfer{
				QueryID:        3,
				Amount:         big.NewInt(900),
				Destination:    testAccount(0x66),
				ForwardTON:     core.MilliTON(10),
				ForwardPayload: tt.raw,
				Payload:        tt.payload,
			})
			require.NoError(t, err)
			body, err := DecodeKnownBody(reload(t, c))
			require.NoError(t, err)
			require.Equal(t, abi.JettonTransferMsgOp, body.SumType)
			transfer := body.Value.(abi.JettonTransferMsgBody)
			assert.Equal(t, int64(900), FromCoins(transfer.Amount).Int64())
			dst, err := Address(transfer.Destination)
			require.NoError(t, err)
			assert.Equal(t, testAccount(0x66), *dst)
			assert.Equal(t, tt.want, transfer.ForwardPayload.Value.SumType)
		})
	}
}

func TestCancelSaleBody(t *testing.T) {
	c, err := CancelSaleBody(1, true)
	require.NoError(t, err)
	op, err := PeekOp(c)
	require.NoError(t, err)
	assert.Equal(t, OpCancelAuction, op)

	c, err = CancelSaleBody(1, false)
	require.NoError(t, err)
	op, err = PeekOp(c)
	require.NoError(t, err)
	assert.Equal(t, OpCancelFixedPrice, op)
	var cancel CancelSaleMsgBody
	require.NoError(t, DecodeBody(c, &cancel))
	assert.Equal(t, uint64(1), cancel.QueryId)
}

func TestStateInitAddress(t *testing.T) {
	code := boc.NewCell()
	require.NoError(t, code.WriteUint(0xff00, 16))
	data1, err := MinterData(big.NewInt(0), testAccount(1), boc.NewCell(), code)
	require.NoError(t, err)
	data2, err := MinterData(big.NewInt(0), testAccount(2), boc.NewCell(), code)
	require.NoError(t, err)

	a1, err := StateInit{Code: code, Data: data1}.Address(0)
	require.NoError(t, err)
	again, err := StateInit{Code: code, Data: data1}.Address(0)
	require.NoError(t, err)
	a2, err := StateInit{Code: code, Data: data2}.Address(0)
	require.NoError(t, err)
	assert.Equal(t, a1, again)
	assert.NotEqual(t, a1, a2)

	c, err := StateInit{Code: code, Data: data1}.Cell()
	require.NoError(t, err)
	s, err := ReadStateInit(reload(t, c))
	require.NoError(t, err)
	require.NotNil(t, s.Code)
	require.NotNil(t, s.Data)

	var storage MinterStorage
	require.NoError(t, Decode(s.Data, &storage))
	admin, err := Address(storage.Admin)
	require.NoError(t, err)
	assert.Equal(t, testAccount(1), *admin)

	_, err = StateInit{Code: code}.Cell()
	assert.True(t, errors.Is(err, core.ErrEncoding))
}

func TestNewQueryIDIncreases(t *testing.T) {
	prev := NewQueryID()
	for i := 0; i < 100; i++ {
		next := NewQueryID()
		assert.Greater(t, next, prev)
		prev = next
	}
}
