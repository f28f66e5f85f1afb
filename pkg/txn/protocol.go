package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

type Config struct {
	// TTL is how long a signed transfer stays valid.
	TTL          time.Duration
	PollInterval time.Duration
	MaxPolls     int
	// EffectPolls bounds the wait for a confirmed operation to show in contract state.
	EffectPolls int
	Retry       RetryConfig
}

func DefaultConfig() Config {
	return Config{
		TTL:          2 * time.Minute,
		PollInterval: 2 * time.Second,
		MaxPolls:     60,
		EffectPolls:  15,
		Retry:        RetryConfig{Attempts: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second},
	}
}

// Handle identifies a submitted transfer.
type Handle struct {
	Wallet      ton.AccountID
	Seqno       uint32
	MsgHash     ton.Bits256
	ValidUntil  time.Time
	SubmittedAt time.Time
}

// Receipt is the outcome of waiting for a handle.
// Correlated is false when the seqno advanced but the transaction was not located.
type Receipt struct {
	Handle      Handle
	Seqno       uint32
	Correlated  bool
	Transaction *core.Transaction
}

func (r Receipt) TxHash() *ton.Bits256 {
	if r.Transaction == nil {
		return nil
	}
	h := r.Transaction.Hash
	return &h
}

type Protocol struct {
	ledger Ledger
	locker Locker
	cfg    Config
	now    func() time.Time
}

// New wraps ledger with retries. locker defaults to an in-process MemoryLocker.
func New(ledger Ledger, locker Locker, cfg Config) *Protocol {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultConfig().MaxPolls
	}
	if cfg.EffectPolls <= 0 {
		cfg.EffectPolls = DefaultConfig().EffectPolls
	}
	return &Protocol{
		ledger: WithRetries(ledger, cfg.Retry),
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Ledger returns the retrying ledger used by the protocol.
func (p *Protocol) Ledger() Ledger {
	return p.ledger
}

// Submit builds, signs and sends one transfer. The account lease is held until the
// message is accepted for delivery, not until it lands.
func (p *Protocol) Submit(ctx context.Context, w *Wallet, msgs []InternalMessage, mode uint8) (Handle, error) {
	if err := validateMessages(msgs); err != nil {
		return Handle{}, err
	}
	account := w.Address()
	unlock, err := p.locker.Lock(ctx, account)
	if err != nil {
		return Handle{}, fmt.Errorf("can not lock account %v: %w", account.ToRaw(), err)
	}
	defer unlock()

	seqno, err := p.settledSeqno(ctx, account)
	if err != nil {
		return Handle{}, err
	}
	validUntil := p.now().Add(p.cfg.TTL)
	transfer, err := w.BuildTransfer(seqno, validUntil, mode, msgs)
	if err != nil {
		return Handle{}, err
	}
	if err := p.ledger.SendMessage(ctx, transfer.Boc); err != nil {
		if execErr := core.ClassifyExecutionError(err); execErr != nil {
			return Handle{}, execErr
		}
		return Handle{}, fmt.Errorf("%w: %w", core.ErrSubmitFailed, err)
	}
	h := Handle{
		Wallet:      account,
		Seqno:       seqno,
		MsgHash:     transfer.MsgHash,
		ValidUntil:  transfer.ValidUntil,
		SubmittedAt: p.now(),
	}
	err = p.locker.RecordFlight(ctx, account, Flight{Seqno: seqno, ValidUntil: transfer.ValidUntil, MsgHash: transfer.MsgHash})
	if err != nil {
		// the message is already out; the next builder will hit a seqno mismatch at worst
		slog.Error("record in-flight transfer", "account", account.ToRaw(), "error", err)
	}
	slog.Info("transfer submitted", "account", account.ToRaw(), "seqno", seqno, "msg_hash", transfer.MsgHash.Hex(), "messages", len(msgs))
	return h, nil
}

// settledSeqno waits until the previous transfer of the account landed or expired.
func (p *Protocol) settledSeqno(ctx context.Context, account ton.AccountID) (uint32, error) {
	flight, err := p.locker.LastFlight(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("can not read in-flight transfer: %w", err)
	}
	for {
		seqno, err := p.ledger.GetSeqno(ctx, account)
		if err != nil {
			return 0, fmt.Errorf("can not get seqno: %w", err)
		}
		if flight == nil || flight.Settled(seqno, p.now()) {
			return seqno, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// AwaitConfirmation polls the seqno until it passes the handle's one.
// Cancelling ctx stops the waiting only: the transfer may still land.
func (p *Protocol) AwaitConfirmation(ctx context.Context, h Handle) (Receipt, error) {
	for i := 0; i < p.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return Receipt{Handle: h}, fmt.Errorf("waiting for seqno %d stopped, transfer may still land: %w", h.Seqno, ctx.Err())
		case <-time.After(p.cfg.PollInterval):
		}
		seqno, err := p.ledger.GetSeqno(ctx, h.Wallet)
		if err != nil {
			slog.Warn("poll seqno", "account", h.Wallet.ToRaw(), "error", err)
			continue
		}
		if seqno > h.Seqno {
			return p.correlate(ctx, h, seqno)
		}
	}
	return Receipt{Handle: h}, fmt.Errorf("%w: seqno %d of %v after %d polls", core.ErrSeqnoTimeout, h.Seqno, h.Wallet.ToRaw(), p.cfg.MaxPolls)
}

// Check is a single non-blocking confirmation check used by background reconciliation.
func (p *Protocol) Check(ctx context.Context, h Handle) (Receipt, bool, error) {
	seqno, err := p.ledger.GetSeqno(ctx, h.Wallet)
	if err != nil {
		return Receipt{Handle: h}, false, err
	}
	if seqno <= h.Seqno {
		return Receipt{Handle: h, Seqno: seqno}, false, nil
	}
	r, err := p.correlate(ctx, h, seqno)
	return r, true, err
}

func (p *Protocol) correlate(ctx context.Context, h Handle, seqno uint32) (Receipt, error) {
	r := Receipt{Handle: h, Seqno: seqno}
	tx, err := p.ledger.FindTransaction(ctx, h.Wallet, h.MsgHash)
	if err != nil {
		slog.Warn("correlate transfer", "account", h.Wallet.ToRaw(), "msg_hash", h.MsgHash.Hex(), "error", err)
		return r, nil
	}
	if tx == nil {
		slog.Warn("seqno advanced but transfer not found", "account", h.Wallet.ToRaw(), "seqno", h.Seqno)
		return r, nil
	}
	r.Correlated = true
	r.Transaction = tx
	if !tx.Success {
		return r, core.ExitCodeError(int(tx.ExitCode))
	}
	slog.Info("transfer confirmed", "account", h.Wallet.ToRaw(), "seqno", h.Seqno, "tx_hash", tx.Hash.Hex())
	return r, nil
}

// Execute submits msgs and waits for confirmation.
func (p *Protocol) Execute(ctx context.Context, w *Wallet, msgs []InternalMessage, mode uint8) (Receipt, error) {
	h, err := p.Submit(ctx, w, msgs, mode)
	if err != nil {
		return Receipt{}, err
	}
	return p.AwaitConfirmation(ctx, h)
}

// IsWaitAborted reports whether err only means the caller stopped waiting.
func IsWaitAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
