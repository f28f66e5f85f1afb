// Package reconciler resolves journaled operations whose waiter gave up before the
// transfer landed or expired.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
)

type checker interface {
	Check(ctx context.Context, h txn.Handle) (txn.Receipt, bool, error)
}

type storage interface {
	GetSubmittedOperations(ctx context.Context, limit int) ([]core.Operation, error)
	UpdateOperation(ctx context.Context, op core.Operation) error
}

type Config struct {
	Interval time.Duration
	// MinAge leaves fresh operations to their own waiter.
	MinAge    time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second, MinAge: time.Minute, BatchSize: 100}
}

type Reconciler struct {
	checker checker
	storage storage
	cfg     Config
	now     func() time.Time
}

func New(c checker, s storage, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Reconciler{checker: c, storage: s, cfg: cfg, now: time.Now}
}

func (r *Reconciler) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go r.runReconciler(ctx, wg)
}

func (r *Reconciler) runReconciler(ctx context.Context, wg *sync.WaitGroup) {
	slog.Info("reconciler started")
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-time.After(r.cfg.Interval):
			if _, err := r.Reconcile(ctx); err != nil {
				slog.Error("reconcile operations", "error", err)
			}
		}
	}
}

// Reconcile makes one pass over submitted operations and returns how many it resolved.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	ctx1, cancel := context.WithTimeout(ctx, 10*time.Second)
	ops, err := r.storage.GetSubmittedOperations(ctx1, r.cfg.BatchSize)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("can not get submitted operations: %w", err)
	}
	resolved := 0
	for _, op := range ops {
		if r.now().Sub(op.CreatedAt) < r.cfg.MinAge {
			continue
		}
		ok, err := r.resolve(ctx, op)
		if err != nil {
			slog.Warn("resolve operation", "id", op.ID, "error", err)
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (r *Reconciler) resolve(ctx context.Context, op core.Operation) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	h := txn.Handle{Wallet: op.Wallet, Seqno: op.Seqno, MsgHash: op.MsgHash, ValidUntil: op.ValidUntil}
	receipt, done, err := r.checker.Check(ctx, h)
	if !done {
		if err != nil {
			return false, err
		}
		err = fmt.Errorf("%w: seqno %d of %v did not advance", core.ErrSeqnoTimeout, op.Seqno, op.Wallet.ToRaw())
	}
	txn.ApplyReceipt(&op, receipt, err)
	if !op.Status.Final() {
		return false, nil
	}
	if err := r.storage.UpdateOperation(ctx, op); err != nil {
		return false, err
	}
	slog.Info("operation reconciled", "id", op.ID, "kind", op.Kind, "status", op.Status)
	return true, nil
}
