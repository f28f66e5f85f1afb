// Package ledgertest is an in-memory chain for tests. It accepts real signed wallet
// transfers, enforces seqno, expiry and signature, and runs simplified contracts.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/utils"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
	"golang.org/x/crypto/ed25519"
)

// Contract is a simulated smart contract. Both methods run with the ledger locked,
// so they must use the Inbound/Ledger helpers that do not lock again.
type Contract interface {
	GetMethod(l *Ledger, method string, args core.Stack) (core.Stack, error)
	Receive(l *Ledger, msg Inbound) error
}

// Constructor instantiates a contract deployed with the given data cell.
type Constructor func(address ton.AccountID, data *boc.Cell) (Contract, error)

type Inbound struct {
	Self   ton.AccountID
	From   ton.AccountID
	Value  *big.Int
	Bounce bool
	Body   *boc.Cell
}

type walletAccount struct {
	pub         ed25519.PublicKey
	seqno       uint32
	subwalletID uint32
}

type Ledger struct {
	mu sync.Mutex
	// ApplyDelay postpones execution of accepted transfers, like block production does.
	ApplyDelay time.Duration
	now        func() time.Time

	wallets   map[ton.AccountID]*walletAccount
	contracts map[ton.AccountID]Contract
	codes     map[ton.Bits256]Constructor
	txs       map[ton.AccountID][]core.Transaction
	lt        uint64

	accepted  int
	dropped   int
	failSends int
	sends     int
	pending   sync.WaitGroup
}

func New() *Ledger {
	return &Ledger{
		now:       time.Now,
		wallets:   make(map[ton.AccountID]*walletAccount),
		contracts: make(map[ton.AccountID]Contract),
		codes:     make(map[ton.Bits256]Constructor),
		txs:       make(map[ton.AccountID][]core.Transaction),
	}
}

// AddWallet registers a deployed v4 wallet.
func (l *Ledger) AddWallet(address ton.AccountID, pub ed25519.PublicKey, seqno uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[address] = &walletAccount{pub: pub, seqno: seqno, subwalletID: txn.DefaultSubwalletID}
}

func (l *Ledger) Deploy(address ton.AccountID, c Contract) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contracts[address] = c
}

// RegisterCode makes deployments with this code create contracts through ctor.
func (l *Ledger) RegisterCode(code *boc.Cell, ctor Constructor) error {
	h, err := code.Hash()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes[ton.Bits256(h)] = ctor
	return nil
}

// FailNextSends makes the next n SendMessage calls fail with a transport error.
func (l *Ledger) FailNextSends(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSends = n
}

// Settle waits for delayed transfers to execute.
func (l *Ledger) Settle() {
	l.pending.Wait()
}

// Stats returns the number of executed and dropped transfers and send attempts.
func (l *Ledger) Stats() (accepted, dropped, sends int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepted, l.dropped, l.sends
}

func (l *Ledger) Contract(address ton.AccountID) Contract {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contracts[address]
}

func (l *Ledger) Transactions(address ton.AccountID) []core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Transaction(nil), l.txs[address]...)
}

func (l *Ledger) GetSeqno(ctx context.Context, account ton.AccountID) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[account]
	if !ok {
		return 0, fmt.Errorf("%w: %v is not a wallet", core.ErrMethodUnavailable, account.ToRaw())
	}
	return w.seqno, nil
}

func rejected(code int) error {
	return fmt.Errorf("cannot apply external message to current state: External message was not accepted, exitcode=%d", code)
}

func (l *Ledger) SendMessage(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends++
	if l.failSends > 0 {
		l.failSends--
		return errors.New("liteserver connection reset")
	}
	t, err := txn.DecodeTransfer(payload)
	if err != nil {
		return err
	}
	w, ok := l.wallets[t.Wallet]
	if !ok {
		return rejected(0)
	}
	if err := l.check(w, t); err != nil {
		return err
	}
	if !t.Verify(w.pub) {
		return rejected(35)
	}
	if l.ApplyDelay <= 0 {
		l.apply(t)
		return nil
	}
	l.pending.Add(1)
	time.AfterFunc(l.ApplyDelay, func() {
		defer l.pending.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		l.apply(t)
	})
	return nil
}

func (l *Ledger) check(w *walletAccount, t txn.SignedTransfer) error {
	switch {
	case t.Seqno != w.seqno:
		return rejected(33)
	case t.SubwalletID != w.subwalletID:
		return rejected(34)
	case int64(t.ValidUntil) < l.now().Unix():
		return rejected(36)
	}
	return nil
}

func (l *Ledger) nextTx(account ton.AccountID, inHash ton.Bits256, success bool, exitCode int32) core.Transaction {
	l.lt++
	var seed [40]byte
	copy(seed[:32], inHash[:])
	binary.BigEndian.PutUint64(seed[32:], l.lt)
	tx := core.Transaction{
		Lt:        l.lt,
		Hash:      ton.Bits256(sha256.Sum256(seed[:])),
		Utime:     uint32(l.now().Unix()),
		Success:   success,
		ExitCode:  exitCode,
		InMessage: core.Message{Hash: inHash, Destination: &account},
	}
	if prev := l.txs[account]; len(prev) > 0 {
		tx.PrevTxLt = prev[len(prev)-1].Lt
		tx.PrevTxHash = prev[len(prev)-1].Hash
	}
	l.txs[account] = append(l.txs[account], tx)
	return tx
}

func (l *Ledger) apply(t txn.SignedTransfer) {
	w := l.wallets[t.Wallet]
	if l.check(w, t) != nil {
		// another transfer consumed the seqno first
		l.dropped++
		return
	}
	w.seqno++
	l.accepted++
	l.nextTx(t.Wallet, t.MsgHash, true, 0)
	for _, m := range t.Messages {
		l.Dispatch(t.Wallet, m)
	}
}

// Dispatch delivers an internal message. It must be called with the ledger locked,
// which is the case inside Contract.Receive.
func (l *Ledger) Dispatch(from ton.AccountID, m txn.InternalMessage) {
	var msgHash ton.Bits256
	if c, err := m.Cell(); err == nil {
		if h, err := c.Hash(); err == nil {
			msgHash = ton.Bits256(h)
		}
	}
	c, ok := l.contracts[m.Destination]
	if !ok && m.StateInit != nil {
		deployed, err := l.deployLocked(m.Destination, *m.StateInit)
		if err != nil {
			l.nextTx(m.Destination, msgHash, false, 9)
			return
		}
		c, ok = deployed, true
	}
	if !ok {
		// plain value transfer to an account without code
		return
	}
	value := m.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if m.Body != nil {
		m.Body.ResetCounters()
	}
	err := c.Receive(l, Inbound{Self: m.Destination, From: from, Value: value, Bounce: m.Bounce, Body: m.Body})
	if err != nil {
		code := int32(1)
		var execErr *core.ContractExecutionError
		if errors.As(err, &execErr) {
			code = int32(execErr.Code)
		}
		l.nextTx(m.Destination, msgHash, false, code)
		return
	}
	l.nextTx(m.Destination, msgHash, true, 0)
}

func (l *Ledger) deployLocked(address ton.AccountID, init cellcodec.StateInit) (Contract, error) {
	want, err := init.Address(address.Workchain)
	if err != nil {
		return nil, err
	}
	if want != address {
		return nil, fmt.Errorf("state init does not match %v", address.ToRaw())
	}
	h, err := init.Code.Hash()
	if err != nil {
		return nil, err
	}
	ctor, ok := l.codes[ton.Bits256(h)]
	if !ok {
		return nil, errors.New("unknown code")
	}
	init.Data.ResetCounters()
	c, err := ctor(address, init.Data)
	if err != nil {
		return nil, err
	}
	l.contracts[address] = c
	return c, nil
}

// DeployLocked installs a contract from inside Contract.Receive.
func (l *Ledger) DeployLocked(address ton.AccountID, c Contract) {
	l.contracts[address] = c
}

// ContractLocked returns a contract from inside Contract.Receive or GetMethod.
func (l *Ledger) ContractLocked(address ton.AccountID) Contract {
	return l.contracts[address]
}

func (l *Ledger) RunGetMethod(ctx context.Context, account ton.AccountID, method string, args core.Stack) (core.Stack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[account]
	if !ok {
		return nil, fmt.Errorf("%w: account %v is not active", core.ErrMethodUnavailable, account.ToRaw())
	}
	return c.GetMethod(l, method, args)
}

// methodNames are the get-methods the simulated contracts answer, by method id.
var methodNames = func() map[int]string {
	names := []string{
		"seqno",
		"get_jetton_data",
		"get_wallet_address",
		"get_wallet_data",
		"get_nft_data",
		"get_sale_data",
		"get_pool_address",
		"get_vault_address",
	}
	m := make(map[int]string, len(names))
	for _, n := range names {
		m[utils.MethodIdFromName(n)] = n
	}
	return m
}()

// RunSmcMethodByID serves the generated abi getters. Contract failures come back
// as exit codes, like a lite server reports them.
func (l *Ledger) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	args, err := core.StackFromVm(params)
	if err != nil {
		return 0, nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[account]
	if !ok {
		return 0, nil, fmt.Errorf("%w: account %v is not active", core.ErrMethodUnavailable, account.ToRaw())
	}
	name, ok := methodNames[methodID]
	if !ok {
		return 11, nil, nil
	}
	reply, err := c.GetMethod(l, name, args)
	var execErr *core.ContractExecutionError
	switch {
	case errors.As(err, &execErr):
		return uint32(execErr.Code), nil, nil
	case errors.Is(err, core.ErrMethodUnavailable):
		return 11, nil, nil
	case err != nil:
		return 0, nil, err
	}
	stack, err := reply.VmStack()
	if err != nil {
		return 0, nil, err
	}
	return 0, stack, nil
}

func (l *Ledger) GetAccountState(ctx context.Context, account ton.AccountID) (core.AccountState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, isWallet := l.wallets[account]
	_, isContract := l.contracts[account]
	state := core.AccountState{Status: core.AccountNonexist}
	if isWallet || isContract {
		state.Status = core.AccountActive
	}
	if txs := l.txs[account]; len(txs) > 0 {
		last := txs[len(txs)-1]
		state.LastTx = core.TxID{Lt: last.Lt, Hash: last.Hash}
	}
	return state, nil
}

func (l *Ledger) FindTransaction(ctx context.Context, account ton.AccountID, msgHash ton.Bits256) (*core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	txs := l.txs[account]
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].InMessage.Hash == msgHash {
			tx := txs[i]
			return &tx, nil
		}
	}
	return nil, nil
}

// UnknownMethod is the error returned for get-methods a contract does not have.
func UnknownMethod(method string) error {
	return fmt.Errorf("%w: %s: exit code 11", core.ErrMethodUnavailable, method)
}

// Address derives a stable test address from a label.
func Address(label string) ton.AccountID {
	return ton.AccountID{Workchain: 0, Address: ton.Bits256(sha256.Sum256([]byte(label)))}
}

// NewWallet creates a key pair and registers its v4 wallet with seqno 0.
func (l *Ledger) NewWallet() (*txn.Wallet, error) {
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	w, err := txn.NewWallet(key, nil)
	if err != nil {
		return nil, err
	}
	l.AddWallet(w.Address(), w.PublicKey(), 0)
	return w, nil
}
