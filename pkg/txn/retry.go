package txn

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

// Ledger is the RPC surface of the chain used by the agent.
type Ledger interface {
	abi.Executor
	GetSeqno(ctx context.Context, account ton.AccountID) (uint32, error)
	SendMessage(ctx context.Context, payload []byte) error
	RunGetMethod(ctx context.Context, account ton.AccountID, method string, args core.Stack) (core.Stack, error)
	GetAccountState(ctx context.Context, account ton.AccountID) (core.AccountState, error)
	// FindTransaction looks for the account transaction triggered by the inbound message msgHash.
	// It returns nil without error when nothing matches among recent transactions.
	FindTransaction(ctx context.Context, account ton.AccountID, msgHash ton.Bits256) (*core.Transaction, error)
}

type RetryConfig struct {
	Attempts        uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.Attempts), ctx)
}

// retry runs f until it succeeds, fails permanently or attempts run out.
// Domain and contract execution errors are never retried.
func retry[T any](ctx context.Context, cfg RetryConfig, name string, f func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(func() (T, error) {
		res, err := f()
		if err != nil && !core.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, cfg.backOff(ctx), func(err error, d time.Duration) {
		slog.Warn("ledger call failed, retrying", "call", name, "after", d, "error", err)
	})
}

// RetryingLedger retries transport failures of every ledger call.
type RetryingLedger struct {
	Ledger
	cfg RetryConfig
}

func WithRetries(l Ledger, cfg RetryConfig) *RetryingLedger {
	return &RetryingLedger{Ledger: l, cfg: cfg}
}

func (r *RetryingLedger) GetSeqno(ctx context.Context, account ton.AccountID) (uint32, error) {
	return retry(ctx, r.cfg, "get_seqno", func() (uint32, error) {
		return r.Ledger.GetSeqno(ctx, account)
	})
}

// SendMessage resubmits the same signed message, which the wallet accepts at most once.
func (r *RetryingLedger) SendMessage(ctx context.Context, payload []byte) error {
	_, err := retry(ctx, r.cfg, "send_message", func() (struct{}, error) {
		return struct{}{}, r.Ledger.SendMessage(ctx, payload)
	})
	return err
}

func (r *RetryingLedger) RunGetMethod(ctx context.Context, account ton.AccountID, method string, args core.Stack) (core.Stack, error) {
	return retry(ctx, r.cfg, method, func() (core.Stack, error) {
		return r.Ledger.RunGetMethod(ctx, account, method, args)
	})
}

type methodReply struct {
	exitCode uint32
	stack    tlb.VmStack
}

func (r *RetryingLedger) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	reply, err := retry(ctx, r.cfg, "run_method", func() (methodReply, error) {
		code, stack, err := r.Ledger.RunSmcMethodByID(ctx, account, methodID, params)
		return methodReply{exitCode: code, stack: stack}, err
	})
	return reply.exitCode, reply.stack, err
}

func (r *RetryingLedger) GetAccountState(ctx context.Context, account ton.AccountID) (core.AccountState, error) {
	return retry(ctx, r.cfg, "get_account_state", func() (core.AccountState, error) {
		return r.Ledger.GetAccountState(ctx, account)
	})
}

func (r *RetryingLedger) FindTransaction(ctx context.Context, account ton.AccountID, msgHash ton.Bits256) (*core.Transaction, error) {
	return retry(ctx, r.cfg, "find_transaction", func() (*core.Transaction, error) {
		return r.Ledger.FindTransaction(ctx, account, msgHash)
	})
}
