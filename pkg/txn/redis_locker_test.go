package txn

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
)

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	ctx := context.Background()
	l, err := NewRedisLocker(ctx, RedisLockerConfig{Address: addr, Prefix: "ton-agent-test", RetryEvery: 5 * time.Millisecond})
	require.NoError(t, err)
	defer l.Close()

	var account ton.AccountID
	account.Address[0] = 0x42

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, account)
			if !assert.NoError(t, err) {
				return
			}
			n := holders.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(20 * time.Millisecond)
			holders.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())

	f := Flight{Seqno: 9, ValidUntil: time.Now().Add(time.Minute).Truncate(time.Second)}
	require.NoError(t, l.RecordFlight(ctx, account, f))
	got, err := l.LastFlight(ctx, account)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.Seqno, got.Seqno)
	assert.True(t, f.ValidUntil.Equal(got.ValidUntil))
}

func TestFlightSettled(t *testing.T) {
	now := time.Unix(1000, 0)
	f := Flight{Seqno: 5, ValidUntil: now}
	assert.False(t, f.Settled(5, now))
	assert.True(t, f.Settled(6, now))
	assert.True(t, f.Settled(5, now.Add(time.Second)))
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	l := NewMemoryLocker()
	var account ton.AccountID
	unlock, err := l.Lock(context.Background(), account)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, account)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	unlock2, err := l.Lock(context.Background(), account)
	require.NoError(t, err)
	unlock2()
}
