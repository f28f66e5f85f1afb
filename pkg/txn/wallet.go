package txn

import (
	"fmt"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"golang.org/x/crypto/ed25519"
)

// DefaultSubwalletID is the subwallet id of v4 wallets in workchain 0.
const DefaultSubwalletID uint32 = wallet.DefaultSubWallet

// Wallet signs v4r2 transfers for one account.
type Wallet struct {
	key     ed25519.PrivateKey
	address ton.AccountID
	wallet  wallet.Wallet
}

// NewWallet derives the v4r2 address from key unless address is given explicitly.
func NewWallet(key ed25519.PrivateKey, address *ton.AccountID) (*Wallet, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(key))
	}
	// bodies are only built here, submission goes through the Ledger
	w, err := wallet.New(key, wallet.V4R2, nil, wallet.WithSubWalletID(DefaultSubwalletID))
	if err != nil {
		return nil, fmt.Errorf("can not derive wallet address: %w", err)
	}
	res := &Wallet{key: key, address: w.GetAddress(), wallet: w}
	if address != nil {
		res.address = *address
	}
	return res, nil
}

func (w *Wallet) Address() ton.AccountID {
	return w.address
}

func (w *Wallet) PublicKey() ed25519.PublicKey {
	return w.key.Public().(ed25519.PublicKey)
}

// Transfer is a signed external message ready for submission.
type Transfer struct {
	Seqno      uint32
	ValidUntil time.Time
	MsgHash    ton.Bits256
	Boc        []byte
}

// BuildTransfer signs msgs for seqno and wraps them into an external message.
func (w *Wallet) BuildTransfer(seqno uint32, validUntil time.Time, mode uint8, msgs []InternalMessage) (Transfer, error) {
	if err := validateMessages(msgs); err != nil {
		return Transfer{}, err
	}
	sendables := make([]wallet.Sendable, 0, len(msgs))
	for i, m := range msgs {
		msg, err := m.walletMessage(mode)
		if err != nil {
			return Transfer{}, fmt.Errorf("message %d: %w", i, err)
		}
		sendables = append(sendables, msg)
	}
	validUntil = time.Unix(validUntil.Unix(), 0)
	body, err := w.wallet.CreateMessageBody(wallet.MessageConfig{Seqno: seqno, ValidUntil: validUntil}, sendables...)
	if err != nil {
		return Transfer{}, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	ext, err := ton.CreateExternalMessage(w.address, body, nil, tlb.VarUInteger16{})
	if err != nil {
		return Transfer{}, err
	}
	cell, err := cellcodec.Encode(ext)
	if err != nil {
		return Transfer{}, err
	}
	msgHash, err := cell.Hash256()
	if err != nil {
		return Transfer{}, err
	}
	raw, err := cell.ToBoc()
	if err != nil {
		return Transfer{}, err
	}
	return Transfer{
		Seqno:      seqno,
		ValidUntil: validUntil,
		MsgHash:    ton.Bits256(msgHash),
		Boc:        raw,
	}, nil
}

// SignedTransfer is a decoded wallet transfer.
type SignedTransfer struct {
	Wallet      ton.AccountID
	SubwalletID uint32
	ValidUntil  uint32
	Seqno       uint32
	Mode        []uint8
	Messages    []InternalMessage
	MsgHash     ton.Bits256

	body wallet.SignedMsgBody
}

// Verify checks the signature against pub.
func (t SignedTransfer) Verify(pub ed25519.PublicKey) bool {
	return t.body.Verify(pub) == nil
}

// DecodeTransfer parses an external message produced by BuildTransfer.
func DecodeTransfer(raw []byte) (SignedTransfer, error) {
	var t SignedTransfer
	cells, err := boc.DeserializeBoc(raw)
	if err != nil {
		return t, fmt.Errorf("%w: %v", core.ErrEncoding, err)
	}
	if len(cells) != 1 {
		return t, fmt.Errorf("%w: expected one root cell", core.ErrEncoding)
	}
	h, err := cells[0].Hash256()
	if err != nil {
		return t, err
	}
	t.MsgHash = ton.Bits256(h)
	var ext tlb.Message
	if err := cellcodec.Decode(cells[0], &ext); err != nil {
		return t, err
	}
	if ext.Info.SumType != "ExtInMsgInfo" {
		return t, fmt.Errorf("%w: not an external inbound message", core.ErrEncoding)
	}
	dest, err := cellcodec.Address(ext.Info.ExtInMsgInfo.Dest)
	if err != nil {
		return t, err
	}
	if dest == nil {
		return t, fmt.Errorf("%w: external message without destination", core.ErrEncoding)
	}
	t.Wallet = *dest
	if ext.Init.Exists {
		return t, fmt.Errorf("%w: state init in external message is not supported", core.ErrEncoding)
	}
	if !ext.Body.IsRight {
		return t, fmt.Errorf("%w: inline external body is not supported", core.ErrEncoding)
	}
	body := boc.Cell(ext.Body.Value)
	if err := cellcodec.Decode(&body, &t.body); err != nil {
		return t, err
	}
	if t.body.Sign == (tlb.Bits512{}) {
		return t, fmt.Errorf("%w: transfer is not signed", core.ErrEncoding)
	}
	payload := boc.Cell(t.body.Message)
	var msg wallet.MessageV4
	if err := cellcodec.Decode(&payload, &msg); err != nil {
		return t, err
	}
	if msg.Op != 0 {
		return t, fmt.Errorf("%w: unsupported wallet operation %d", core.ErrEncoding, msg.Op)
	}
	t.SubwalletID, t.ValidUntil, t.Seqno = msg.SubWalletId, msg.ValidUntil, msg.Seqno
	for _, rm := range msg.RawMessages {
		m, err := ParseInternalMessage(rm.Message)
		if err != nil {
			return t, err
		}
		t.Mode = append(t.Mode, rm.Mode)
		t.Messages = append(t.Messages, m)
	}
	return t, nil
}
