package agent_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/boc"
	"github.com/txsociety/ton-agent/internal/ledgertest"
	"github.com/txsociety/ton-agent/pkg/agent"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
	"github.com/txsociety/ton-agent/pkg/jetton"
	"github.com/txsociety/ton-agent/pkg/txn"
)

type journal struct {
	mu      sync.Mutex
	saved   []core.Operation
	updated []core.Operation
}

func (j *journal) SaveOperation(ctx context.Context, op core.Operation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved = append(j.saved, op)
	return nil
}

func (j *journal) UpdateOperation(ctx context.Context, op core.Operation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updated = append(j.updated, op)
	return nil
}

type closingLocker struct {
	*txn.MemoryLocker
	closed bool
}

func (l *closingLocker) Close() error {
	l.closed = true
	return errors.New("closed twice")
}

func code(t *testing.T, tag uint64) *boc.Cell {
	c := boc.NewCell()
	require.NoError(t, c.WriteUint(tag, 32))
	return c
}

func options(t *testing.T) agent.Options {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return agent.Options{
		Key: key,
		Protocol: txn.Config{
			TTL:          time.Minute,
			PollInterval: 5 * time.Millisecond,
			MaxPolls:     100,
			Retry:        txn.RetryConfig{Attempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		},
		ResolverCacheSize: 16,
	}
}

func deployWallet(t *testing.T, l *ledgertest.Ledger, opts agent.Options) {
	w, err := txn.NewWallet(opts.Key, opts.WalletAddress)
	require.NoError(t, err)
	l.AddWallet(w.Address(), w.PublicKey(), 0)
}

func TestNewRequiresDeployedWallet(t *testing.T) {
	l := ledgertest.New()
	_, err := agent.New(context.Background(), l, options(t))
	require.ErrorIs(t, err, agent.ErrWalletNotDeployed)
}

func TestNewRejectsBadKey(t *testing.T) {
	opts := options(t)
	opts.Key = opts.Key[:10]
	_, err := agent.New(context.Background(), ledgertest.New(), opts)
	require.Error(t, err)
}

func TestNewWiresServices(t *testing.T) {
	l := ledgertest.New()
	opts := options(t)
	router := ledgertest.Address("router")
	pton := ledgertest.Address("pton")
	opts.Registry = dex.Registry{StonFi: &dex.StonFiConfig{Router: router.ToRaw(), PTON: pton.ToRaw()}}
	deployWallet(t, l, opts)

	a, err := agent.New(context.Background(), l, opts)
	require.NoError(t, err)
	defer a.Close()

	w, err := txn.NewWallet(opts.Key, nil)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), a.Wallet())
	assert.Equal(t, a.Wallet(), a.Executor().Wallet())
	assert.NotNil(t, a.Jettons())
	assert.NotNil(t, a.Market())
	assert.NotNil(t, a.Listings())
	assert.Equal(t, []string{"stonfi"}, a.Dex().Backends())
}

func TestNewRejectsBadRegistry(t *testing.T) {
	l := ledgertest.New()
	opts := options(t)
	opts.Registry = dex.Registry{DeDust: &dex.DeDustConfig{Factory: "nope"}}
	deployWallet(t, l, opts)
	_, err := agent.New(context.Background(), l, opts)
	require.Error(t, err)
}

func TestOperationsAreJournaled(t *testing.T) {
	l := ledgertest.New()
	minterCode := code(t, 0x6d696e74)
	require.NoError(t, l.RegisterCode(minterCode, ledgertest.MinterConstructor))
	opts := options(t)
	j := &journal{}
	opts.Journal = j
	opts.Codes = jetton.Codes{Minter: minterCode, Wallet: code(t, 0x77616c6c)}
	deployWallet(t, l, opts)

	a, err := agent.New(context.Background(), l, opts)
	require.NoError(t, err)
	res, err := a.Jettons().DeployMinter(context.Background(), nil, map[string]string{"name": "Agent", "symbol": "AGT"})
	require.NoError(t, err)
	assert.Equal(t, core.ConfirmedOperationStatus, res.Operation.Status)

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.saved, 1)
	assert.Equal(t, core.SubmittedOperationStatus, j.saved[0].Status)
	assert.Equal(t, core.DeployMinterOperation, j.saved[0].Kind)
	require.NotEmpty(t, j.updated)
	assert.Equal(t, res.Operation.ID, j.updated[len(j.updated)-1].ID)
}

func TestCloseReleasesLocker(t *testing.T) {
	l := ledgertest.New()
	opts := options(t)
	locker := &closingLocker{MemoryLocker: txn.NewMemoryLocker()}
	opts.Locker = locker
	deployWallet(t, l, opts)

	a, err := agent.New(context.Background(), l, opts)
	require.NoError(t, err)
	require.Error(t, a.Close())
	assert.True(t, locker.closed)
	assert.NoError(t, a.Close())
}
