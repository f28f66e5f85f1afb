package txn

import (
	"context"
	"sync"
	"time"

	"github.com/tonkeeper/tongo/ton"
)

// Flight is the last transfer submitted for an account that may not have landed yet.
type Flight struct {
	Seqno      uint32      `json:"seqno"`
	ValidUntil time.Time   `json:"valid_until"`
	MsgHash    ton.Bits256 `json:"msg_hash"`
}

// Settled reports whether a builder may read the seqno again.
func (f Flight) Settled(seqno uint32, now time.Time) bool {
	return seqno > f.Seqno || now.After(f.ValidUntil)
}

// Locker serializes transfer building per account.
// The lease is held across build and submit only.
type Locker interface {
	Lock(ctx context.Context, account ton.AccountID) (unlock func(), err error)
	LastFlight(ctx context.Context, account ton.AccountID) (*Flight, error)
	RecordFlight(ctx context.Context, account ton.AccountID, f Flight) error
}

// MemoryLocker serializes builders inside one process.
type MemoryLocker struct {
	mu       sync.Mutex
	accounts map[ton.AccountID]*accountLane
}

type accountLane struct {
	sem    chan struct{}
	flight *Flight
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{accounts: make(map[ton.AccountID]*accountLane)}
}

func (l *MemoryLocker) lane(account ton.AccountID) *accountLane {
	l.mu.Lock()
	defer l.mu.Unlock()
	lane, ok := l.accounts[account]
	if !ok {
		lane = &accountLane{sem: make(chan struct{}, 1)}
		l.accounts[account] = lane
	}
	return lane
}

func (l *MemoryLocker) Lock(ctx context.Context, account ton.AccountID) (func(), error) {
	lane := l.lane(account)
	select {
	case lane.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-lane.sem })
	}, nil
}

func (l *MemoryLocker) LastFlight(ctx context.Context, account ton.AccountID) (*Flight, error) {
	lane := l.lane(account)
	l.mu.Lock()
	defer l.mu.Unlock()
	if lane.flight == nil {
		return nil, nil
	}
	f := *lane.flight
	return &f, nil
}

func (l *MemoryLocker) RecordFlight(ctx context.Context, account ton.AccountID, f Flight) error {
	lane := l.lane(account)
	l.mu.Lock()
	defer l.mu.Unlock()
	lane.flight = &f
	return nil
}
