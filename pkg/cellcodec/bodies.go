package cellcodec

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

// Jetton minter and wallet opcodes. Mint, change_admin and change_content follow
// the reference minter, which numbers them sequentially.
const (
	OpMint             uint32 = 21
	OpChangeAdmin      uint32 = 3
	OpChangeContent    uint32 = 4
	OpInternalTransfer        = abi.JettonInternalTransferMsgOpCode
	OpJettonTransfer          = abi.JettonTransferMsgOpCode
	OpJettonBurn              = abi.JettonBurnMsgOpCode
	OpTransferNotify          = abi.JettonNotifyMsgOpCode
	OpExcesses                = abi.ExcessMsgOpCode
)

// Sale contract opcodes.
const (
	OpCancelAuction    uint32 = 1
	OpCancelFixedPrice uint32 = 3
)

const (
	mintMsgOp          abi.MsgOpName = "JettonMint"
	changeAdminMsgOp   abi.MsgOpName = "JettonChangeAdmin"
	changeContentMsgOp abi.MsgOpName = "JettonChangeContent"
	cancelSaleMsgOp    abi.MsgOpName = "SaleCancel"
)

// MintMsgBody is mint#15 without the opcode. MasterMsg is the internal_transfer
// the minter forwards to the new wallet.
type MintMsgBody struct {
	QueryId   uint64
	ToAddress tlb.MsgAddress
	TonAmount tlb.Grams
	MasterMsg abi.InMsgBody `tlb:"^"`
}

type ChangeContentMsgBody struct {
	QueryId uint64
	Content tlb.Any `tlb:"^"`
}

type CancelSaleMsgBody struct {
	QueryId uint64
}

// MinterStorage is the persistent data of a standard jetton minter.
type MinterStorage struct {
	TotalSupply tlb.VarUInteger16
	Admin       tlb.MsgAddress
	Content     tlb.Any `tlb:"^"`
	WalletCode  tlb.Any `tlb:"^"`
}

var lastQueryID atomic.Uint64

// NewQueryID returns a unique, increasing query id.
func NewQueryID() uint64 {
	for {
		prev := lastQueryID.Load()
		next := uint64(time.Now().UnixNano())
		if next <= prev {
			next = prev + 1
		}
		if lastQueryID.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func encodeBody(op uint32, name abi.MsgOpName, v any) (*boc.Cell, error) {
	return Encode(abi.InMsgBody{SumType: name, OpCode: &op, Value: v})
}

// MintBody asks the minter to credit amount to the wallet of to.
// forwardTON is attached to the internal_transfer towards the new wallet.
func MintBody(queryID uint64, to ton.AccountID, amount, forwardTON *big.Int, responseTo *ton.AccountID) (*boc.Cell, error) {
	coins, err := Coins(amount)
	if err != nil {
		return nil, err
	}
	tonAmount, err := Grams(forwardTON)
	if err != nil {
		return nil, err
	}
	op := OpInternalTransfer
	return encodeBody(OpMint, mintMsgOp, MintMsgBody{
		QueryId:   queryID,
		ToAddress: to.ToMsgAddress(),
		TonAmount: tonAmount,
		MasterMsg: abi.InMsgBody{
			SumType: abi.JettonInternalTransferMsgOp,
			OpCode:  &op,
			Value: abi.JettonInternalTransferMsgBody{
				QueryId:         queryID,
				Amount:          coins,
				From:            (*ton.AccountID)(nil).ToMsgAddress(),
				ResponseAddress: responseTo.ToMsgAddress(),
			},
		},
	})
}

// BurnBody is sent to the holder's jetton wallet.
func BurnBody(queryID uint64, amount *big.Int, responseTo *ton.AccountID) (*boc.Cell, error) {
	coins, err := Coins(amount)
	if err != nil {
		return nil, err
	}
	return encodeBody(OpJettonBurn, abi.JettonBurnMsgOp, abi.JettonBurnMsgBody{
		QueryId:             queryID,
		Amount:              coins,
		ResponseDestination: responseTo.ToMsgAddress(),
	})
}

func ChangeAdminBody(queryID uint64, newAdmin ton.AccountID) (*boc.Cell, error) {
	return encodeBody(OpChangeAdmin, changeAdminMsgOp, abi.JettonChangeAdminMsgBody{
		QueryId:         queryID,
		NewAdminAddress: newAdmin.ToMsgAddress(),
	})
}

func UpdateMetadataBody(queryID uint64, content *boc.Cell) (*boc.Cell, error) {
	if content == nil {
		return nil, fmt.Errorf("%w: empty content", core.ErrEncoding)
	}
	return encodeBody(OpChangeContent, changeContentMsgOp, ChangeContentMsgBody{
		QueryId: queryID,
		Content: AnyCell(content),
	})
}

// JettonTransfer describes a transfer#0f8a7ea5 message. Payload takes precedence
// over the raw ForwardPayload cell.
type JettonTransfer struct {
	QueryID        uint64
	Amount         *big.Int
	Destination    ton.AccountID
	ResponseTo     *ton.AccountID
	ForwardTON     *big.Int
	ForwardPayload *boc.Cell
	Payload        *abi.JettonPayload
}

func JettonTransferBody(t JettonTransfer) (*boc.Cell, error) {
	amount, err := Coins(t.Amount)
	if err != nil {
		return nil, err
	}
	forward, err := Coins(t.ForwardTON)
	if err != nil {
		return nil, err
	}
	body := abi.JettonTransferMsgBody{
		QueryId:             t.QueryID,
		Amount:              amount,
		Destination:         t.Destination.ToMsgAddress(),
		ResponseDestination: t.ResponseTo.ToMsgAddress(),
		ForwardTonAmount:    forward,
	}
	switch {
	case t.Payload != nil:
		body.ForwardPayload = tlb.EitherRef[abi.JettonPayload]{IsRight: true, Value: *t.Payload}
	case t.ForwardPayload != nil:
		body.ForwardPayload = tlb.EitherRef[abi.JettonPayload]{
			IsRight: true,
			Value:   abi.JettonPayload{SumType: abi.UnknownJettonOp, Value: AnyCell(t.ForwardPayload)},
		}
	}
	return encodeBody(OpJettonTransfer, abi.JettonTransferMsgOp, body)
}

func CancelSaleBody(queryID uint64, auction bool) (*boc.Cell, error) {
	op := OpCancelFixedPrice
	if auction {
		op = OpCancelAuction
	}
	return encodeBody(op, cancelSaleMsgOp, CancelSaleMsgBody{QueryId: queryID})
}

// MinterData is the persistent data of a standard jetton minter.
func MinterData(totalSupply *big.Int, admin ton.AccountID, content, walletCode *boc.Cell) (*boc.Cell, error) {
	if content == nil || walletCode == nil {
		return nil, fmt.Errorf("%w: minter data requires content and wallet code", core.ErrEncoding)
	}
	supply, err := Coins(totalSupply)
	if err != nil {
		return nil, err
	}
	return Encode(MinterStorage{
		TotalSupply: supply,
		Admin:       admin.ToMsgAddress(),
		Content:     AnyCell(content),
		WalletCode:  AnyCell(walletCode),
	})
}

// PeekOp returns the opcode heading a message body and rewinds c.
func PeekOp(c *boc.Cell) (uint32, error) {
	c.ResetCounters()
	defer c.ResetCounters()
	op, err := c.ReadUint(32)
	if err != nil {
		return 0, fmt.Errorf("%w: body without opcode", core.ErrEncoding)
	}
	return uint32(op), nil
}

// DecodeBody skips the opcode of c and unmarshals the rest into v.
func DecodeBody(c *boc.Cell, v any) error {
	c.ResetCounters()
	if _, err := c.ReadUint(32); err != nil {
		return fmt.Errorf("%w: body without opcode", core.ErrEncoding)
	}
	if err := tlb.Unmarshal(c, v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	return nil
}

// DecodeKnownBody decodes the standard jetton and DEX messages tongo knows about.
func DecodeKnownBody(c *boc.Cell) (abi.InMsgBody, error) {
	var body abi.InMsgBody
	if err := Decode(c, &body); err != nil {
		return abi.InMsgBody{}, err
	}
	return body, nil
}
