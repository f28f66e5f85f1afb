package jetton_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/utils"
	"github.com/txsociety/ton-agent/internal/ledgertest"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/jetton"
	"github.com/txsociety/ton-agent/pkg/txn"
)

func code(t *testing.T, tag uint64) *boc.Cell {
	c := boc.NewCell()
	require.NoError(t, c.WriteUint(tag, 32))
	return c
}

type env struct {
	ledger  *ledgertest.Ledger
	service *jetton.Service
	wallet  ton.AccountID
}

func newEnv(t *testing.T) env {
	l := ledgertest.New()
	minterCode := code(t, 0x6d696e74)
	require.NoError(t, l.RegisterCode(minterCode, ledgertest.MinterConstructor))
	w, err := l.NewWallet()
	require.NoError(t, err)
	p := txn.New(l, nil, txn.Config{
		TTL:          time.Minute,
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     100,
		EffectPolls:  3,
		Retry:        txn.RetryConfig{Attempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	resolver, err := jetton.NewWalletResolver(p.Ledger(), 16)
	require.NoError(t, err)
	s := jetton.New(txn.NewExecutor(p, w, nil), resolver, jetton.Codes{Minter: minterCode, Wallet: code(t, 0x77616c6c)})
	return env{ledger: l, service: s, wallet: w.Address()}
}

func (e env) deploy(t *testing.T, metadata map[string]string) ton.AccountID {
	res, err := e.service.DeployMinter(context.Background(), nil, metadata)
	require.NoError(t, err)
	minter, ok := res.Operation.Addresses["minter"]
	require.True(t, ok)
	return minter
}

func TestDeployMinterAddressKnownBeforeDeploy(t *testing.T) {
	e := newEnv(t)
	metadata := map[string]string{"name": "Agent Token", "symbol": "AGT", "decimals": "9"}
	_, want, err := e.service.MinterInit(e.wallet, metadata)
	require.NoError(t, err)
	assert.Nil(t, e.ledger.Contract(want))

	minter := e.deploy(t, metadata)
	assert.Equal(t, want, minter)
	require.NotNil(t, e.ledger.Contract(minter))

	data, err := e.service.JettonData(context.Background(), minter)
	require.NoError(t, err)
	assert.Zero(t, data.TotalSupply.Sign())
	assert.True(t, data.Mintable)
	require.NotNil(t, data.Admin)
	assert.Equal(t, e.wallet, *data.Admin)
	assert.Equal(t, metadata, data.Metadata)
}

func TestMintIncreasesSupplyAndKeepsAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	minter := e.deploy(t, map[string]string{"name": "Agent Token", "symbol": "AGT"})
	before, err := e.service.JettonData(ctx, minter)
	require.NoError(t, err)

	a := ledgertest.Address("A")
	amount := big.NewInt(1_000_000_000)
	res, err := e.service.Mint(ctx, minter, a, amount)
	require.NoError(t, err)
	assert.Equal(t, core.ConfirmedOperationStatus, res.Operation.Status)

	after, err := e.service.JettonData(ctx, minter)
	require.NoError(t, err)
	diff := new(big.Int).Sub(after.TotalSupply, before.TotalSupply)
	assert.Equal(t, 0, diff.Cmp(amount))
	require.NotNil(t, after.Admin)
	assert.Equal(t, *before.Admin, *after.Admin)

	m := e.ledger.Contract(minter).(*ledgertest.Minter)
	assert.Equal(t, int64(1_000_000_000), m.Balance(a).Int64())
}

func TestTransferAndBurnUseOwnJettonWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	minter := e.deploy(t, map[string]string{"symbol": "AGT"})
	_, err := e.service.Mint(ctx, minter, e.wallet, big.NewInt(500))
	require.NoError(t, err)

	b := ledgertest.Address("B")
	res, err := e.service.Transfer(ctx, big.NewInt(200), b, &minter)
	require.NoError(t, err)
	assert.Equal(t, ledgertest.JettonWalletAddress(minter, e.wallet), res.Operation.Addresses["jetton_wallet"])

	_, err = e.service.Burn(ctx, minter, big.NewInt(100), nil)
	require.NoError(t, err)

	m := e.ledger.Contract(minter).(*ledgertest.Minter)
	assert.Equal(t, int64(200), m.Balance(e.wallet).Int64())
	assert.Equal(t, int64(200), m.Balance(b).Int64())
	assert.Equal(t, int64(400), m.TotalSupply.Int64())

	_, balance, err := e.service.Resolver().Balance(ctx, minter, e.wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance.Int64())
}

func TestTransferRequiresMaster(t *testing.T) {
	e := newEnv(t)
	_, err := e.service.Transfer(context.Background(), big.NewInt(1), ledgertest.Address("B"), nil)
	assert.True(t, errors.Is(err, core.ErrMasterRequired))
	var opErr *core.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "transfer", opErr.Op)
	_, _, sends := e.ledger.Stats()
	assert.Zero(t, sends)
}

func TestChangeAdminAndUpdateMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	minter := e.deploy(t, map[string]string{"symbol": "AGT"})

	_, err := e.service.UpdateMetadata(ctx, minter, map[string]string{"uri": "https://example.org/agt.json"})
	require.NoError(t, err)
	data, err := e.service.JettonData(ctx, minter)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"uri": "https://example.org/agt.json"}, data.Metadata)

	admin := ledgertest.Address("new admin")
	_, err = e.service.ChangeAdmin(ctx, minter, admin)
	require.NoError(t, err)
	data, err = e.service.JettonData(ctx, minter)
	require.NoError(t, err)
	require.NotNil(t, data.Admin)
	assert.Equal(t, admin, *data.Admin)

	// the agent is no longer the admin, the minter rejects the mint inside the ledger
	_, err = e.service.Mint(ctx, minter, e.wallet, big.NewInt(1))
	var execErr *core.ContractExecutionError
	require.ErrorAs(t, err, &execErr)
	txs := e.ledger.Transactions(minter)
	require.NotEmpty(t, txs)
	last := txs[len(txs)-1]
	assert.False(t, last.Success)
	assert.Equal(t, int32(73), last.ExitCode)
}

func TestRejectedMintIsReportedAsFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	minter := e.deploy(t, map[string]string{"symbol": "AGT"})
	_, err := e.service.ChangeAdmin(ctx, minter, ledgertest.Address("new admin"))
	require.NoError(t, err)

	res, err := e.service.Mint(ctx, minter, e.wallet, big.NewInt(1000))
	var opErr *core.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "mint", opErr.Op)
	var execErr *core.ContractExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Reason, "total supply")
	assert.Equal(t, core.FailedOperationStatus, res.Operation.Status)

	data, err := e.service.JettonData(ctx, minter)
	require.NoError(t, err)
	assert.Zero(t, data.TotalSupply.Sign())
}

func TestChangeAdminToSameAdminIsObserved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	minter := e.deploy(t, map[string]string{"symbol": "AGT"})
	res, err := e.service.ChangeAdmin(ctx, minter, e.wallet)
	require.NoError(t, err)
	assert.Equal(t, core.ConfirmedOperationStatus, res.Operation.Status)
}

func TestInvalidInputFailsBeforeNetwork(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	minter := ledgertest.Address("minter")
	for name, f := range map[string]func() error{
		"zero mint": func() error {
			_, err := e.service.Mint(ctx, minter, e.wallet, big.NewInt(0))
			return err
		},
		"negative burn": func() error {
			_, err := e.service.Burn(ctx, minter, big.NewInt(-1), nil)
			return err
		},
		"empty metadata": func() error {
			_, err := e.service.UpdateMetadata(ctx, minter, map[string]string{"unknown": "x"})
			return err
		},
		"coins overflow": func() error {
			_, err := e.service.Mint(ctx, minter, e.wallet, new(big.Int).Lsh(big.NewInt(1), 120))
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(f(), core.ErrEncoding))
		})
	}
	_, _, sends := e.ledger.Stats()
	assert.Zero(t, sends)
}

type countingLedger struct {
	*ledgertest.Ledger
	calls atomic.Int32
}

func (c *countingLedger) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	if methodID == utils.MethodIdFromName("get_wallet_address") {
		c.calls.Add(1)
	}
	return c.Ledger.RunSmcMethodByID(ctx, account, methodID, params)
}

func TestResolverCachesWalletAddresses(t *testing.T) {
	l := &countingLedger{Ledger: ledgertest.New()}
	master := ledgertest.Address("master")
	l.Deploy(master, &ledgertest.Minter{Address: master, TotalSupply: big.NewInt(0)})
	r, err := jetton.NewWalletResolver(l, 8)
	require.NoError(t, err)

	owner := ledgertest.Address("owner")
	var wg sync.WaitGroup
	results := make([]ton.AccountID, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.WalletAddress(context.Background(), master, owner)
			assert.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()
	want := ledgertest.JettonWalletAddress(master, owner)
	for _, a := range results {
		assert.Equal(t, want, a)
	}

	calls := l.calls.Load()
	_, err = r.WalletAddress(context.Background(), master, owner)
	require.NoError(t, err)
	assert.Equal(t, calls, l.calls.Load())
}
