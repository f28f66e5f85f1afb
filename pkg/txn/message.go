// Package txn builds, signs and submits wallet transfers and waits for them to land.
package txn

import (
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
)

const (
	// MaxMessages is the number of out messages a v4 wallet accepts in one transfer.
	MaxMessages = 4

	// DefaultSendMode pays forward fees separately and ignores action errors.
	DefaultSendMode uint8 = 3
)

// InternalMessage is one out message of a wallet transfer.
type InternalMessage struct {
	Destination ton.AccountID
	Value       *big.Int
	Bounce      bool
	Body        *boc.Cell
	StateInit   *cellcodec.StateInit
}

func (m InternalMessage) walletMessage(mode uint8) (wallet.Message, error) {
	amount, err := cellcodec.Grams(m.Value)
	if err != nil {
		return wallet.Message{}, err
	}
	msg := wallet.Message{
		Amount:  amount,
		Address: m.Destination,
		Body:    m.Body,
		Bounce:  m.Bounce,
		Mode:    mode,
	}
	if m.Body != nil {
		m.Body.ResetCounters()
	}
	if m.StateInit != nil {
		if m.StateInit.Code == nil || m.StateInit.Data == nil {
			return wallet.Message{}, fmt.Errorf("%w: state init requires code and data", core.ErrEncoding)
		}
		msg.Code, msg.Data = m.StateInit.Code, m.StateInit.Data
	}
	return msg, nil
}

// ToInternal makes the message a wallet.Sendable with the default send mode.
func (m InternalMessage) ToInternal() (tlb.Message, uint8, error) {
	msg, err := m.walletMessage(DefaultSendMode)
	if err != nil {
		return tlb.Message{}, 0, err
	}
	return msg.ToInternal()
}

// Cell serializes the message as MessageRelaxed with addr_none source.
func (m InternalMessage) Cell() (*boc.Cell, error) {
	msg, _, err := m.ToInternal()
	if err != nil {
		return nil, err
	}
	return cellcodec.Encode(msg)
}

// ParseInternalMessage reads a message written by InternalMessage.Cell.
func ParseInternalMessage(c *boc.Cell) (InternalMessage, error) {
	var msg tlb.Message
	if err := cellcodec.Decode(c, &msg); err != nil {
		return InternalMessage{}, err
	}
	return fromMessage(msg)
}

func fromMessage(msg tlb.Message) (InternalMessage, error) {
	var m InternalMessage
	if msg.Info.SumType != "IntMsgInfo" {
		return m, fmt.Errorf("%w: not an internal message", core.ErrEncoding)
	}
	info := msg.Info.IntMsgInfo
	dest, err := cellcodec.Address(info.Dest)
	if err != nil {
		return m, err
	}
	if dest == nil {
		return m, fmt.Errorf("%w: internal message without destination", core.ErrEncoding)
	}
	if len(info.Value.Other.Dict.Keys()) > 0 {
		return m, fmt.Errorf("%w: extra currencies are not supported", core.ErrEncoding)
	}
	m.Destination = *dest
	m.Bounce = info.Bounce
	m.Value = new(big.Int).SetUint64(uint64(info.Value.Grams))
	if msg.Init.Exists {
		if !msg.Init.Value.IsRight {
			return m, fmt.Errorf("%w: inline state init is not supported", core.ErrEncoding)
		}
		init, err := cellcodec.FromTLB(msg.Init.Value.Value)
		if err != nil {
			return m, err
		}
		m.StateInit = &init
	}
	body := boc.Cell(msg.Body.Value)
	if msg.Body.IsRight || body.BitsAvailableForRead() > 0 || body.RefsAvailableForRead() > 0 {
		body.ResetCounters()
		m.Body = &body
	}
	return m, nil
}

func validateMessages(msgs []InternalMessage) error {
	if len(msgs) == 0 || len(msgs) > MaxMessages {
		return fmt.Errorf("%w: a transfer carries 1..%d messages, got %d", core.ErrEncoding, MaxMessages, len(msgs))
	}
	for i, m := range msgs {
		if m.Value == nil || m.Value.Sign() < 0 {
			return fmt.Errorf("%w: message %d has no value", core.ErrEncoding, i)
		}
	}
	return nil
}
