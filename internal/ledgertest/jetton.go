package ledgertest

import (
	"crypto/sha256"
	"math/big"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
)

// Minter simulates a standard jetton minter together with its wallets.
type Minter struct {
	Address     ton.AccountID
	TotalSupply *big.Int
	Admin       *ton.AccountID
	Content     *boc.Cell
	WalletCode  *boc.Cell
	balances    map[ton.AccountID]*big.Int
}

// MinterConstructor parses data written by cellcodec.MinterData.
func MinterConstructor(address ton.AccountID, data *boc.Cell) (Contract, error) {
	var storage cellcodec.MinterStorage
	if err := cellcodec.Decode(data, &storage); err != nil {
		return nil, err
	}
	admin, err := cellcodec.Address(storage.Admin)
	if err != nil {
		return nil, err
	}
	content, err := cellcodec.CellFromAny(storage.Content)
	if err != nil {
		return nil, err
	}
	code, err := cellcodec.CellFromAny(storage.WalletCode)
	if err != nil {
		return nil, err
	}
	return &Minter{
		Address:     address,
		TotalSupply: cellcodec.FromCoins(storage.TotalSupply),
		Admin:       admin,
		Content:     content,
		WalletCode:  code,
		balances:    make(map[ton.AccountID]*big.Int),
	}, nil
}

// JettonWalletAddress is how the simulated minter derives wallet addresses.
func JettonWalletAddress(minter, owner ton.AccountID) ton.AccountID {
	seed := append(append([]byte{}, minter.Address[:]...), owner.Address[:]...)
	return ton.AccountID{Workchain: 0, Address: ton.Bits256(sha256.Sum256(seed))}
}

func (m *Minter) Balance(owner ton.AccountID) *big.Int {
	if b, ok := m.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (m *Minter) credit(l *Ledger, owner ton.AccountID, amount *big.Int) {
	b, ok := m.balances[owner]
	if !ok {
		b = big.NewInt(0)
		m.balances[owner] = b
	}
	b.Add(b, amount)
	addr := JettonWalletAddress(m.Address, owner)
	if l.ContractLocked(addr) == nil {
		l.DeployLocked(addr, &JettonWallet{Minter: m, Owner: owner})
	}
}

func (m *Minter) GetMethod(l *Ledger, method string, args core.Stack) (core.Stack, error) {
	switch method {
	case "get_jetton_data":
		admin := core.NoneAddressValue()
		if m.Admin != nil {
			admin = core.AddressValue(*m.Admin)
		}
		return core.Stack{
			core.IntValue(m.TotalSupply),
			core.Int64Value(-1),
			admin,
			core.CellValue(m.Content),
			core.CellValue(m.WalletCode),
		}, nil
	case "get_wallet_address":
		if len(args) != 1 {
			return nil, core.ExitCodeError(7)
		}
		owner, err := args[0].Address()
		if err != nil || owner == nil {
			return nil, core.ExitCodeError(9)
		}
		return core.Stack{core.AddressValue(JettonWalletAddress(m.Address, *owner))}, nil
	}
	return nil, UnknownMethod(method)
}

func (m *Minter) Receive(l *Ledger, msg Inbound) error {
	if msg.Body == nil {
		return nil
	}
	op, err := cellcodec.PeekOp(msg.Body)
	if err != nil {
		return nil
	}
	if op == cellcodec.OpMint || op == cellcodec.OpChangeAdmin || op == cellcodec.OpChangeContent {
		if m.Admin == nil || *m.Admin != msg.From {
			return core.ExitCodeError(73)
		}
	}
	switch op {
	case cellcodec.OpMint:
		var body cellcodec.MintMsgBody
		if err := cellcodec.DecodeBody(msg.Body, &body); err != nil {
			return core.ExitCodeError(9)
		}
		to, err := cellcodec.Address(body.ToAddress)
		if err != nil || to == nil {
			return core.ExitCodeError(9)
		}
		internal, ok := body.MasterMsg.Value.(abi.JettonInternalTransferMsgBody)
		if !ok {
			return core.ExitCodeError(9)
		}
		amount := cellcodec.FromCoins(internal.Amount)
		m.TotalSupply = new(big.Int).Add(m.TotalSupply, amount)
		m.credit(l, *to, amount)
	case cellcodec.OpChangeAdmin:
		var body abi.JettonChangeAdminMsgBody
		if err := cellcodec.DecodeBody(msg.Body, &body); err != nil {
			return core.ExitCodeError(9)
		}
		admin, err := cellcodec.Address(body.NewAdminAddress)
		if err != nil {
			return core.ExitCodeError(9)
		}
		m.Admin = admin
	case cellcodec.OpChangeContent:
		var body cellcodec.ChangeContentMsgBody
		if err := cellcodec.DecodeBody(msg.Body, &body); err != nil {
			return core.ExitCodeError(9)
		}
		content, err := cellcodec.CellFromAny(body.Content)
		if err != nil {
			return core.ExitCodeError(9)
		}
		m.Content = content
	default:
		return core.ExitCodeError(0xffff)
	}
	return nil
}

// JettonWallet is the per-owner wallet of a Minter.
type JettonWallet struct {
	Minter *Minter
	Owner  ton.AccountID
}

func (w *JettonWallet) GetMethod(l *Ledger, method string, args core.Stack) (core.Stack, error) {
	if method != "get_wallet_data" {
		return nil, UnknownMethod(method)
	}
	return core.Stack{
		core.IntValue(w.Minter.Balance(w.Owner)),
		core.AddressValue(w.Owner),
		core.AddressValue(w.Minter.Address),
		core.CellValue(w.Minter.WalletCode),
	}, nil
}

func (w *JettonWallet) Receive(l *Ledger, msg Inbound) error {
	if msg.Body == nil {
		return nil
	}
	if _, err := cellcodec.PeekOp(msg.Body); err != nil {
		return nil
	}
	body, err := cellcodec.DecodeKnownBody(msg.Body)
	if err != nil {
		return core.ExitCodeError(0xffff)
	}
	var (
		amount *big.Int
		to     *ton.AccountID
	)
	switch b := body.Value.(type) {
	case abi.JettonBurnMsgBody:
		amount = cellcodec.FromCoins(b.Amount)
	case abi.JettonTransferMsgBody:
		amount = cellcodec.FromCoins(b.Amount)
		to, err = cellcodec.Address(b.Destination)
		if err != nil || to == nil {
			return core.ExitCodeError(9)
		}
	default:
		return core.ExitCodeError(0xffff)
	}
	if msg.From != w.Owner {
		return core.ExitCodeError(705)
	}
	balance := w.Minter.balances[w.Owner]
	if balance == nil || balance.Cmp(amount) < 0 {
		return core.ExitCodeError(706)
	}
	balance.Sub(balance, amount)
	if to == nil {
		w.Minter.TotalSupply = new(big.Int).Sub(w.Minter.TotalSupply, amount)
		return nil
	}
	w.Minter.credit(l, *to, amount)
	return nil
}
