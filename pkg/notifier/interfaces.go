package notifier

import (
	"context"

	"github.com/txsociety/ton-agent/pkg/core"
)

// Sender delivers one finished operation. Webhook and broker clients implement it.
type Sender interface {
	Send(ctx context.Context, op core.OperationPrintable) error
}

type storage interface {
	GetOperationNotifications(ctx context.Context, limit int) ([]core.Operation, error)
	DeleteOperationNotification(ctx context.Context, id core.OperationID) error
	DeleteOldNotifications(ctx context.Context) error
}
