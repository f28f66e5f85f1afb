package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

type journal interface {
	SaveOperation(ctx context.Context, op core.Operation) error
	UpdateOperation(ctx context.Context, op core.Operation) error
}

// Request is one operation expressed as a single wallet transfer.
type Request struct {
	Kind      core.OperationKind
	Messages  []InternalMessage
	Mode      uint8
	Addresses map[string]ton.AccountID
	Amounts   map[string]*big.Int
	Details   map[string]string
	// Effect is checked once the transfer is confirmed. Nil skips the check.
	Effect *Effect
}

// Executor runs requests on behalf of one wallet and journals them.
type Executor struct {
	protocol *Protocol
	wallet   *Wallet
	journal  journal
}

// NewExecutor accepts a nil journal.
func NewExecutor(p *Protocol, w *Wallet, j journal) *Executor {
	return &Executor{protocol: p, wallet: w, journal: j}
}

func (e *Executor) Wallet() ton.AccountID {
	return e.wallet.Address()
}

func (e *Executor) Ledger() Ledger {
	return e.protocol.Ledger()
}

func (e *Executor) Protocol() *Protocol {
	return e.protocol
}

// Execute submits the request and waits for it. Every failure is an *core.OperationError.
func (e *Executor) Execute(ctx context.Context, req Request) (core.OperationResult, error) {
	mode := req.Mode
	if mode == 0 {
		mode = DefaultSendMode
	}
	now := time.Now()
	op := core.Operation{
		ID:        core.NewOperationID(),
		Kind:      req.Kind,
		Wallet:    e.wallet.Address(),
		Addresses: req.Addresses,
		Amounts:   req.Amounts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fail := func(err error) (core.OperationResult, error) {
		return core.OperationResult{Operation: op, Details: req.Details}, &core.OperationError{
			Op:        string(req.Kind),
			Addresses: req.Addresses,
			Amounts:   req.Amounts,
			Cause:     err,
		}
	}
	h, err := e.protocol.Submit(ctx, e.wallet, req.Messages, mode)
	if err != nil {
		return fail(err)
	}
	op.Seqno = h.Seqno
	op.MsgHash = h.MsgHash
	op.ValidUntil = h.ValidUntil
	op.Status = core.SubmittedOperationStatus
	e.save(ctx, op)

	receipt, err := e.protocol.AwaitConfirmation(ctx, h)
	ApplyReceipt(&op, receipt, err)
	if !IsWaitAborted(err) {
		e.update(op)
	}
	if err != nil {
		return fail(err)
	}
	if req.Effect != nil {
		if err := e.protocol.AwaitEffect(ctx, *req.Effect); err != nil {
			var execErr *core.ContractExecutionError
			if errors.As(err, &execErr) {
				op.Status = core.FailedOperationStatus
				op.Error = execErr.Error()
				op.UpdatedAt = time.Now()
				e.update(op)
			}
			return fail(err)
		}
	}
	return core.OperationResult{Operation: op, Details: req.Details}, nil
}

// ApplyReceipt moves op to the state implied by a confirmation attempt.
// Aborted waits leave it submitted.
func ApplyReceipt(op *core.Operation, r Receipt, err error) {
	now := time.Now()
	switch {
	case err == nil && !r.Correlated:
		op.Status = core.UnverifiedOperationStatus
		op.Error = fmt.Sprintf("seqno %d was consumed but no transaction matches message %s", op.Seqno, op.MsgHash.Hex())
	case err == nil:
		op.Status = core.ConfirmedOperationStatus
		op.TxHash = r.TxHash()
		op.ConfirmedAt = &now
	case IsWaitAborted(err):
		return
	case errors.Is(err, core.ErrSeqnoTimeout):
		if now.Before(op.ValidUntil) {
			return
		}
		op.Status = core.ExpiredOperationStatus
		op.Error = err.Error()
	default:
		op.Status = core.FailedOperationStatus
		op.TxHash = r.TxHash()
		op.Error = err.Error()
	}
	op.UpdatedAt = now
}

func (e *Executor) save(ctx context.Context, op core.Operation) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveOperation(ctx, op); err != nil {
		slog.Error("save operation", "id", op.ID, "error", err)
	}
}

func (e *Executor) update(op core.Operation) {
	if e.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.journal.UpdateOperation(ctx, op); err != nil {
		slog.Error("update operation", "id", op.ID, "error", err)
	}
}
