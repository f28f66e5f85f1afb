package txn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/txsociety/ton-agent/pkg/core"
)

// Effect is the state change a request expects from its target contract. A confirmed
// wallet transfer only proves the outgoing messages were sent: contracts reject
// internal messages without the wallet noticing.
type Effect struct {
	// Description names the expected change in errors, e.g. "total supply grows by 10".
	Description string
	// Observe reports whether the change is visible in contract state.
	Observe func(ctx context.Context) (bool, error)
}

// AwaitEffect polls observe until it reports the change. A change that never shows is a
// *core.ContractExecutionError: the target contract rejected the message.
func (p *Protocol) AwaitEffect(ctx context.Context, e Effect) error {
	var lastErr error
	for i := 0; i < p.cfg.EffectPolls; i++ {
		ok, err := e.Observe(ctx)
		switch {
		case err == nil && ok:
			return nil
		case err != nil:
			lastErr = err
			slog.Warn("observe operation effect", "effect", e.Description, "error", err)
		}
		if i == p.cfg.EffectPolls-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s stopped: %w", e.Description, ctx.Err())
		case <-time.After(p.cfg.PollInterval):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("can not observe %s: %w", e.Description, lastErr)
	}
	return &core.ContractExecutionError{
		Reason: fmt.Sprintf("target contract rejected the message, expected %s after %d polls", e.Description, p.cfg.EffectPolls),
	}
}
