package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/snksoft/crc"
	"github.com/tonkeeper/tongo"
	"github.com/tonkeeper/tongo/boc"
	tongoCode "github.com/tonkeeper/tongo/code"
	"github.com/tonkeeper/tongo/config"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/tvm"
	"github.com/tonkeeper/tongo/txemulator"
	"github.com/txsociety/ton-agent/pkg/core"
)

// Client is the ledger RPC adapter over lite servers. Reads are pinned to the last
// masterchain block seen by the block watcher.
type Client struct {
	connection *liteapi.Client
	// emulate runs get-methods in a local TVM instead of on the lite server.
	emulate bool

	lastMasterchainBlockLock sync.RWMutex
	lastMasterchainBlock     *ton.BlockIDExt
	// checkpoint is the newest block persisted by a previous run.
	checkpoint *ton.BlockIDExt
}

type storage interface {
	SaveMasterchainCheckpoint(ctx context.Context, block ton.BlockIDExt) error
	MasterchainCheckpoint(ctx context.Context) (*ton.BlockIDExt, error)
}

func New(ls []config.LiteServer, emulate bool) (*Client, error) {
	options := make([]liteapi.Option, 0)
	if len(ls) > 0 {
		options = append(options, liteapi.WithLiteServers(ls))
		options = append(options, liteapi.WithMaxConnectionsNumber(len(ls)))
	} else {
		options = append(options, liteapi.Mainnet())
		slog.Warn("liteservers are not set, retrieving liteservers from global config")
	}
	api, err := liteapi.NewClient(options...)
	if err != nil {
		return nil, err
	}
	c := &Client{
		connection: api,
		emulate:    emulate,
	}
	return c, nil
}

// RunBlockWatcher blocks until the first masterchain block is known. storage may be nil.
func (c *Client) RunBlockWatcher(ctx context.Context, storage storage, wg *sync.WaitGroup) {
	slog.Info("initializing client. Can require few minutes for checking proofs")
	if storage != nil {
		block, err := storage.MasterchainCheckpoint(ctx)
		if err != nil {
			slog.Warn("can not read masterchain checkpoint", "error", err)
		} else if block != nil {
			slog.Info("masterchain checkpoint loaded", "mc_seqno", block.Seqno)
			c.checkpoint = block
		}
	}
	wait := make(chan struct{})
	wg.Add(1)
	go c.runBlockWatcher(ctx, storage, wg, wait)
	select {
	case <-wait:
		slog.Info("client initialized")
	case <-ctx.Done():
	}
}

func (c *Client) runBlockWatcher(ctx context.Context, storage storage, wg *sync.WaitGroup, wait chan struct{}) {
	slog.Info("block watcher started")
	defer wg.Done()

	initialized := false
	for {
		if !initialized {
			err := c.updateMasterchainBlock(ctx, storage, 10*time.Minute)
			if err != nil {
				slog.Error("can not get proofed block", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
				continue
			}
			initialized = true
			close(wait)
		}
		select {
		case <-ctx.Done():
			slog.Info("block watcher stopped")
			return
		case <-time.After(5 * time.Second):
			err := c.updateMasterchainBlock(ctx, storage, 10*time.Minute)
			if err != nil {
				slog.Error("can not update block", "error", err)
			}
		}
	}
}

func (c *Client) updateMasterchainBlock(ctx context.Context, storage storage, timeout time.Duration) error {
	ctx1, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	info, err := c.connection.GetMasterchainInfo(ctx1)
	if err != nil {
		return fmt.Errorf("can not get masterchain info: %w", err)
	}
	block := info.Last.ToBlockIdExt()
	if err := behindCheckpoint(c.checkpoint, block); err != nil {
		return err
	}
	c.lastMasterchainBlockLock.Lock()
	c.lastMasterchainBlock = &block
	c.lastMasterchainBlockLock.Unlock()
	if storage == nil {
		return nil
	}
	err = storage.SaveMasterchainCheckpoint(ctx1, block)
	if err != nil {
		return fmt.Errorf("can not save masterchain checkpoint: %w", err)
	}
	return nil
}

// behindCheckpoint rejects a lite server that serves a masterchain block older than one
// the agent has already seen.
func behindCheckpoint(checkpoint *ton.BlockIDExt, block ton.BlockIDExt) error {
	if checkpoint == nil || block.Seqno >= checkpoint.Seqno {
		return nil
	}
	return fmt.Errorf("lite server is behind: masterchain block %d is older than checkpoint %d", block.Seqno, checkpoint.Seqno)
}

func (c *Client) getLastMasterchainBlock() (ton.BlockIDExt, error) {
	c.lastMasterchainBlockLock.RLock()
	defer c.lastMasterchainBlockLock.RUnlock()
	if c.lastMasterchainBlock == nil {
		return ton.BlockIDExt{}, errors.New("blockchain client not initialized")
	}
	return *c.lastMasterchainBlock, nil
}

func (c *Client) getShardAccount(ctx context.Context, accountID ton.AccountID) (tlb.ShardAccount, error) {
	block, err := c.getLastMasterchainBlock()
	if err != nil {
		return tlb.ShardAccount{}, err
	}
	return c.connection.WithBlock(block).GetAccountState(ctx, accountID)
}

func (c *Client) GetAccountState(ctx context.Context, accountID ton.AccountID) (core.AccountState, error) {
	shardAcc, err := c.getShardAccount(ctx, accountID)
	if err != nil {
		return core.AccountState{}, err
	}
	state := core.AccountState{
		Status: convertStatus(shardAcc.Account.Status()),
		LastTx: core.TxID{Lt: shardAcc.LastTransLt, Hash: ton.Bits256(shardAcc.LastTransHash)},
	}
	if shardAcc.Account.SumType == "Account" {
		state.Balance = uint64(shardAcc.Account.Account.Storage.Balance.Grams)
	}
	return state, nil
}

func convertStatus(s tlb.AccountStatus) core.AccountStatus {
	switch s {
	case tlb.AccountActive:
		return core.AccountActive
	case tlb.AccountUninit:
		return core.AccountUninit
	case tlb.AccountFrozen:
		return core.AccountFrozen
	}
	return core.AccountNonexist
}

func (c *Client) GetSeqno(ctx context.Context, account ton.AccountID) (uint32, error) {
	stack, err := c.RunGetMethod(ctx, account, "seqno", nil)
	if err != nil {
		return 0, err
	}
	if len(stack) == 0 {
		return 0, fmt.Errorf("%w: empty seqno result", core.ErrMethodUnavailable)
	}
	return seqnoValue(stack[0])
}

// seqnoValue rejects seqno replies that do not fit the wallet's 32-bit counter.
func seqnoValue(v core.StackValue) (uint32, error) {
	seqno, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if seqno > math.MaxUint32 {
		return 0, fmt.Errorf("%w: seqno %d out of range", core.ErrMethodUnavailable, seqno)
	}
	return uint32(seqno), nil
}

// SendMessage submits a serialized external message.
func (c *Client) SendMessage(ctx context.Context, payload []byte) error {
	_, err := c.connection.SendMessage(ctx, payload)
	return err
}

// MethodID is the get-method id of a named method.
func MethodID(name string) int {
	return int(crc.CalculateCRC(crc.XMODEM, []byte(name))&0xffff) | 0x10000
}

func (c *Client) RunGetMethod(ctx context.Context, account ton.AccountID, method string, args core.Stack) (core.Stack, error) {
	params, err := args.VmStack()
	if err != nil {
		return nil, err
	}
	exitCode, result, err := c.RunSmcMethodByID(ctx, account, MethodID(method), params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if exitCode != 0 && exitCode != 1 {
		return nil, fmt.Errorf("%s on %v: %w", method, account.ToRaw(), core.ExitCodeError(int(exitCode)))
	}
	return core.StackFromVm(result)
}

// RunSmcMethodByID makes the client an abi.Executor. Inactive accounts map to
// core.ErrMethodUnavailable.
func (c *Client) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	var (
		exitCode uint32
		result   tlb.VmStack
		err      error
	)
	if c.emulate {
		exitCode, result, err = c.emulateMethod(ctx, account, methodID, params)
	} else {
		var block ton.BlockIDExt
		block, err = c.getLastMasterchainBlock()
		if err != nil {
			return 0, nil, err
		}
		exitCode, result, err = c.connection.WithBlock(block).RunSmcMethodByID(ctx, account, methodID, params)
	}
	if err != nil {
		if errors.Is(err, core.ErrMethodUnavailable) {
			return 0, nil, err
		}
		if strings.Contains(err.Error(), "not active") || strings.Contains(err.Error(), "is not initialized") {
			return 0, nil, fmt.Errorf("%w: method %d on %v: %v", core.ErrMethodUnavailable, methodID, account.ToRaw(), err)
		}
		return 0, nil, err
	}
	return exitCode, result, nil
}

func (c *Client) GetLibraries(ctx context.Context, libraryList []ton.Bits256) (map[ton.Bits256]*boc.Cell, error) {
	return c.connection.GetLibraries(ctx, libraryList)
}

// emulateMethod runs the get-method on the account's code and data in a local emulator.
func (c *Client) emulateMethod(ctx context.Context, accountID ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	state, err := c.getShardAccount(ctx, accountID)
	if err != nil {
		return 0, nil, err
	}
	if state.Account.Status() != tlb.AccountActive {
		return 0, nil, fmt.Errorf("%w: account is not active", core.ErrMethodUnavailable)
	}
	var (
		code, data *boc.Cell
	)
	if !state.Account.Account.Storage.State.AccountActive.StateInit.Code.Exists {
		return 0, nil, fmt.Errorf("%w: account code is empty", core.ErrMethodUnavailable)
	}
	if !state.Account.Account.Storage.State.AccountActive.StateInit.Data.Exists {
		return 0, nil, fmt.Errorf("%w: account data is empty", core.ErrMethodUnavailable)
	}
	code = &state.Account.Account.Storage.State.AccountActive.StateInit.Code.Value.Value
	data = &state.Account.Account.Storage.State.AccountActive.StateInit.Data.Value.Value

	cfg := boc.NewCell()
	configParams, err := c.connection.GetConfigAll(ctx, 0)
	if err != nil {
		return 0, nil, err
	}
	if err := tlb.Marshal(cfg, configParams.Config); err != nil {
		return 0, nil, err
	}

	libs := map[tongo.Bits256]*boc.Cell{}
	accountLibs := state.Account.Account.Storage.State.AccountActive.StateInit.Library
	for _, item := range accountLibs.Items() {
		libs[tongo.Bits256(item.Key)] = &item.Value.Root
	}

	libHashes, err := tongoCode.FindLibraries(code)
	if err != nil {
		return 0, nil, err
	}
	if len(libHashes) > 0 {
		publicLibs, err := c.GetLibraries(ctx, libHashes)
		if err != nil {
			return 0, nil, err
		}
		for hash, lib := range publicLibs {
			libs[hash] = lib
		}
	}
	base64libs, err := tongoCode.LibrariesToBase64(libs)
	if err != nil {
		return 0, nil, err
	}

	emulator, err := tvm.NewEmulator(code, data, cfg,
		tvm.WithVerbosityLevel(txemulator.LogTruncated),
		tvm.WithLibrariesBase64(base64libs))
	if err != nil {
		return 0, tlb.VmStack{}, err
	}
	err = emulator.SetGasLimit(10_000_000)
	if err != nil {
		return 0, tlb.VmStack{}, err
	}
	return emulator.RunSmcMethodByID(ctx, accountID, methodID, params)
}

// FindTransaction scans the latest transactions of the account for the one whose
// inbound message has hash msgHash.
func (c *Client) FindTransaction(ctx context.Context, account ton.AccountID, msgHash ton.Bits256) (*core.Transaction, error) {
	shardAcc, err := c.getShardAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	if shardAcc.LastTransLt == 0 {
		return nil, nil
	}
	txs, err := c.GetTransactions(ctx, account, shardAcc.LastTransLt, 0, ton.Bits256(shardAcc.LastTransHash))
	if err != nil {
		return nil, err
	}
	for i := range txs {
		if txs[i].InMessage.Hash == msgHash {
			return &txs[i], nil
		}
	}
	return nil, nil
}

// GetTransactions walks back from (lt, hash) and stops at maxDepthLt.
func (c *Client) GetTransactions(ctx context.Context, a ton.AccountID, lt, maxDepthLt uint64, hash ton.Bits256) ([]core.Transaction, error) {
	var transactions []core.Transaction
	txs, err := c.connection.GetTransactions(ctx, 16, a, lt, hash)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if ton.Bits256(tx.Hash()) != hash {
			return nil, fmt.Errorf("mismatched tx hash")
		}
		if tx.Lt <= maxDepthLt {
			break
		}
		hash = ton.Bits256(tx.PrevTransHash)
		lt = tx.PrevTransLt
		transactions = append(transactions, convertTransaction(tx))
	}
	return transactions, nil
}

func convertTransaction(tx ton.Transaction) core.Transaction {
	transaction := core.Transaction{
		Lt:         tx.Lt,
		Hash:       ton.Bits256(tx.Hash()),
		PrevTxHash: ton.Bits256(tx.PrevTransHash),
		PrevTxLt:   tx.PrevTransLt,
		Utime:      tx.Now,
		Success:    tx.IsSuccess(),
		ExitCode:   exitCode(tx),
	}
	if tx.Transaction.Msgs.InMsg.Exists {
		transaction.InMessage = convertMessage(tx.Transaction.Msgs.InMsg.Value.Value)
	}
	return transaction
}

// exitCode prefers the compute phase code and falls back to the action phase result.
func exitCode(tx ton.Transaction) int32 {
	d := tx.Transaction.Description
	if d.SumType != "TransOrd" {
		return 0
	}
	var code int32
	if d.TransOrd.ComputePh.SumType == "TrPhaseComputeVm" {
		code = d.TransOrd.ComputePh.TrPhaseComputeVm.Vm.ExitCode
	}
	if (code == 0 || code == 1) && d.TransOrd.Action.Exists {
		return d.TransOrd.Action.Value.Value.ResultCode
	}
	return code
}

func convertMessage(m tlb.Message) core.Message {
	message := core.Message{
		Type: strings.TrimSuffix(string(m.Info.SumType), "MsgInfo"),
		Hash: ton.Bits256(m.Hash(false)),
	}
	switch m.Info.SumType {
	case "IntMsgInfo":
		a, _ := ton.AccountIDFromTlb(m.Info.IntMsgInfo.Src)
		message.Source = a
		a, _ = ton.AccountIDFromTlb(m.Info.IntMsgInfo.Dest)
		message.Destination = a
		message.Value = uint64(m.Info.IntMsgInfo.Value.Grams)
	case "ExtInMsgInfo":
		a, _ := ton.AccountIDFromTlb(m.Info.ExtInMsgInfo.Dest)
		message.Destination = a
	case "ExtOutMsgInfo":
		a, _ := ton.AccountIDFromTlb(m.Info.ExtOutMsgInfo.Src)
		message.Source = a
	}
	return message
}
