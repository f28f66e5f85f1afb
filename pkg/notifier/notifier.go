package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txsociety/ton-agent/pkg/core"
)

// Notifier delivers finished operations to every sender. A notification is removed
// only after all senders accepted it.
type Notifier struct {
	senders []Sender
	storage storage
}

func New(storage storage, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		storage: storage,
	}
}

func (n *Notifier) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go n.runNotifyExpirationProcessor(ctx, wg)
	if len(n.senders) > 0 {
		wg.Add(1)
		go n.runNotifier(ctx, wg)
	}
}

func (n *Notifier) runNotifier(ctx context.Context, wg *sync.WaitGroup) {
	slog.Info("notifier started")
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("notifier stopped")
			return
		default:
			limit := 10
			ops, err := n.storage.GetOperationNotifications(ctx, limit)
			if err != nil {
				slog.Error("get notifications", "error", err)
				sleep(ctx, 3*time.Second)
				continue
			}
			err = n.notify(ctx, ops)
			if err != nil {
				slog.Error("notify failed", "error", err)
				sleep(ctx, 3*time.Second)
				continue
			}
			if len(ops) < limit {
				sleep(ctx, 2*time.Second)
			}
		}
	}
}

func (n *Notifier) notify(ctx context.Context, ops []core.Operation) error {
	for _, op := range ops {
		printable := core.ConvertOperationToPrintable(op, nil)
		for _, s := range n.senders {
			if err := s.Send(ctx, printable); err != nil {
				return fmt.Errorf("send operation %v: %w", op.ID, err)
			}
		}
		if err := n.storage.DeleteOperationNotification(ctx, op.ID); err != nil {
			return fmt.Errorf("delete notification err: %w", err)
		}
	}
	return nil
}

func (n *Notifier) runNotifyExpirationProcessor(ctx context.Context, wg *sync.WaitGroup) {
	slog.Info("notify expiration processor started")
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("notify expiration processor stopped")
			return
		case <-time.After(30 * time.Second):
			err := n.storage.DeleteOldNotifications(ctx)
			if err != nil {
				slog.Error("delete old notifications", "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
