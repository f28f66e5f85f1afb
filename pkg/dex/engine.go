package dex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
)

var WithdrawValue = core.MilliTON(500)

type executor interface {
	Wallet() ton.AccountID
	Execute(ctx context.Context, req txn.Request) (core.OperationResult, error)
}

type chain interface {
	GetAccountState(ctx context.Context, account ton.AccountID) (core.AccountState, error)
}

type lpWallets interface {
	Balance(ctx context.Context, master, owner ton.AccountID) (ton.AccountID, *big.Int, error)
}

type Config struct {
	// ReadyPolls bounds the wait for a created pool or vault to appear.
	ReadyPolls    int
	ReadyInterval time.Duration
	// PendingTTL is how long a submitted pool creation keeps the pool pending.
	PendingTTL time.Duration
}

func DefaultConfig() Config {
	return Config{ReadyPolls: 30, ReadyInterval: 2 * time.Second, PendingTTL: 10 * time.Minute}
}

// Result lists the transactions an engine call needed, bootstrap steps first.
type Result struct {
	Pool  ton.AccountID
	Steps []core.OperationResult
}

type ClaimResult struct {
	Asset  core.Asset
	Result core.OperationResult
	Err    error
}

type Engine struct {
	executor executor
	chain    chain
	lp       lpWallets
	cfg      Config
	backends map[string]Backend

	mu      sync.Mutex
	pending map[string]time.Time
	now     func() time.Time
}

func NewEngine(e executor, c chain, lp lpWallets, cfg Config, backends ...Backend) *Engine {
	def := DefaultConfig()
	if cfg.ReadyPolls <= 0 {
		cfg.ReadyPolls = def.ReadyPolls
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = def.ReadyInterval
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	m := make(map[string]Backend, len(backends))
	for _, b := range backends {
		m[b.Name()] = b
	}
	return &Engine{
		executor: e,
		chain:    c,
		lp:       lp,
		cfg:      cfg,
		backends: m,
		pending:  make(map[string]time.Time),
		now:      time.Now,
	}
}

func (e *Engine) Backends() []string {
	names := make([]string, 0, len(e.backends))
	for name := range e.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dispatch resolves the backend and checks it can do kind. Nothing touches the network before it.
func (e *Engine) dispatch(name string, want Capabilities, kind core.OperationKind) (Backend, error) {
	b, ok := e.backends[name]
	if !ok {
		return nil, opError(kind, nil, fmt.Errorf("%w: unknown dex %q", core.ErrUnsupportedOperation, name))
	}
	if !b.Capabilities().Has(want) {
		return nil, opError(kind, nil, fmt.Errorf("%w: %s does not support %s", core.ErrUnsupportedOperation, name, kind))
	}
	return b, nil
}

func pendingKey(b Backend, key PoolKey) string {
	return b.Name() + "/" + key.String()
}

func (e *Engine) PoolState(ctx context.Context, backend string, pair Pair) (PoolState, error) {
	b, ok := e.backends[backend]
	if !ok {
		return PoolNotDeployed, fmt.Errorf("%w: unknown dex %q", core.ErrUnsupportedOperation, backend)
	}
	state, _, err := e.poolState(ctx, b, PoolKey{Pair: pair, Type: Volatile})
	return state, err
}

// poolState returns the zero address when the backend can not locate the pool.
func (e *Engine) poolState(ctx context.Context, b Backend, key PoolKey) (PoolState, ton.AccountID, error) {
	pool, known, err := b.PoolAddress(ctx, key)
	if err != nil {
		return PoolNotDeployed, ton.AccountID{}, err
	}
	if !known {
		return PoolNotDeployed, ton.AccountID{}, nil
	}
	account, err := e.chain.GetAccountState(ctx, pool)
	if err != nil {
		return PoolNotDeployed, pool, fmt.Errorf("can not get pool state: %w", err)
	}
	id := pendingKey(b, key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if account.Deployed() {
		delete(e.pending, id)
		return PoolReady, pool, nil
	}
	if since, ok := e.pending[id]; ok {
		if e.now().Sub(since) < e.cfg.PendingTTL {
			return PoolPending, pool, nil
		}
		delete(e.pending, id)
	}
	return PoolNotDeployed, pool, nil
}

func (e *Engine) markPending(b Backend, key PoolKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[pendingKey(b, key)] = e.now()
}

// CreatePool bootstraps missing vaults and the pool of pair, then waits until it is ready.
func (e *Engine) CreatePool(ctx context.Context, backend string, pair Pair) (Result, error) {
	b, err := e.dispatch(backend, CanCreatePool, core.CreatePoolOperation)
	if err != nil {
		return Result{}, err
	}
	return e.ensurePool(ctx, b, PoolKey{Pair: pair, Type: Volatile})
}

func (e *Engine) ensurePool(ctx context.Context, b Backend, key PoolKey) (Result, error) {
	addresses := map[string]ton.AccountID{}
	state, pool, err := e.poolState(ctx, b, key)
	if err != nil {
		return Result{}, opError(core.CreatePoolOperation, addresses, err)
	}
	res := Result{Pool: pool}
	addresses["pool"] = pool
	switch state {
	case PoolReady:
		return res, nil
	case PoolNotDeployed:
		if !b.Capabilities().Has(CanCreatePool) {
			if b.Capabilities().Has(CreatesPoolOnDeposit) && pool != (ton.AccountID{}) {
				return res, nil
			}
			return res, opError(core.CreatePoolOperation, addresses, fmt.Errorf("%w: %s pool %v", core.ErrPoolNotFound, b.Name(), key))
		}
		steps, err := e.ensureVaults(ctx, b, key.Pair)
		res.Steps = append(res.Steps, steps...)
		if err != nil {
			return res, err
		}
		msg, err := b.CreatePool(ctx, key)
		if err != nil {
			return res, opError(core.CreatePoolOperation, addresses, err)
		}
		r, err := e.executor.Execute(ctx, txn.Request{
			Kind:      core.CreatePoolOperation,
			Messages:  []txn.InternalMessage{msg},
			Addresses: addresses,
			Details:   map[string]string{"dex": b.Name(), "pool": key.String()},
		})
		res.Steps = append(res.Steps, r)
		if err != nil {
			return res, err
		}
		e.markPending(b, key)
		slog.Info("pool creation submitted", "dex", b.Name(), "pool", key.String(), "address", pool.ToRaw())
	}
	if err := e.waitReady(ctx, b, key); err != nil {
		return res, opError(core.CreatePoolOperation, addresses, err)
	}
	return res, nil
}

// ensureVaults creates the vaults the pair lacks. Existing vaults are left alone.
func (e *Engine) ensureVaults(ctx context.Context, b Backend, pair Pair) ([]core.OperationResult, error) {
	var steps []core.OperationResult
	for _, asset := range pair.Assets() {
		vault, ok, err := b.VaultAddress(ctx, asset)
		if err != nil {
			return steps, opError(core.CreateVaultOperation, nil, err)
		}
		if !ok {
			continue
		}
		addresses := map[string]ton.AccountID{"vault": vault}
		state, err := e.chain.GetAccountState(ctx, vault)
		if err != nil {
			return steps, opError(core.CreateVaultOperation, addresses, err)
		}
		if state.Deployed() {
			continue
		}
		msg, err := b.CreateVault(ctx, asset)
		if err != nil {
			return steps, opError(core.CreateVaultOperation, addresses, err)
		}
		r, err := e.executor.Execute(ctx, txn.Request{
			Kind:      core.CreateVaultOperation,
			Messages:  []txn.InternalMessage{msg},
			Addresses: addresses,
			Details:   map[string]string{"dex": b.Name(), "asset": asset.String()},
		})
		steps = append(steps, r)
		if err != nil {
			return steps, err
		}
		if err := e.waitDeployed(ctx, vault); err != nil {
			return steps, opError(core.CreateVaultOperation, addresses, fmt.Errorf("vault of %v: %w", asset, err))
		}
	}
	return steps, nil
}

func (e *Engine) waitReady(ctx context.Context, b Backend, key PoolKey) error {
	for i := 0; i < e.cfg.ReadyPolls; i++ {
		state, _, err := e.poolState(ctx, b, key)
		if err != nil {
			slog.Warn("poll pool state", "dex", b.Name(), "pool", key.String(), "error", err)
		} else if state == PoolReady {
			return nil
		}
		if err := e.sleep(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s pool %v did not appear after %d polls", core.ErrPoolNotFound, b.Name(), key, e.cfg.ReadyPolls)
}

func (e *Engine) waitDeployed(ctx context.Context, account ton.AccountID) error {
	for i := 0; i < e.cfg.ReadyPolls; i++ {
		state, err := e.chain.GetAccountState(ctx, account)
		if err == nil && state.Deployed() {
			return nil
		}
		if err := e.sleep(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %v was not deployed after %d polls", core.ErrPoolNotFound, account.ToRaw(), e.cfg.ReadyPolls)
}

func (e *Engine) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.ReadyInterval):
		return nil
	}
}

// Deposit adds liquidity, bootstrapping vaults and the pool when needed.
func (e *Engine) Deposit(ctx context.Context, backend string, req DepositRequest) (Result, error) {
	b, err := e.dispatch(backend, CanDeposit, core.DepositOperation)
	if err != nil {
		return Result{}, err
	}
	dep, err := PlanDeposit(req)
	if err != nil {
		return Result{}, opError(core.DepositOperation, nil, err)
	}
	amounts := map[string]*big.Int{}
	for i, a := range dep.Key.Pair.Assets() {
		amounts[a.String()] = dep.Amounts[i]
	}
	if dep.SingleSided && !b.Capabilities().Has(CanDepositSingleSided) {
		return Result{}, &core.OperationError{
			Op:      string(core.DepositOperation),
			Amounts: amounts,
			Cause:   fmt.Errorf("%w: %s does not accept single-sided deposits", core.ErrUnsupportedOperation, b.Name()),
		}
	}
	res, err := e.ensurePool(ctx, b, dep.Key)
	if err != nil {
		return res, err
	}
	addresses := map[string]ton.AccountID{"pool": res.Pool}
	owner := e.executor.Wallet()
	msgs, err := b.DepositMessages(ctx, owner, dep)
	if err != nil {
		return res, &core.OperationError{Op: string(core.DepositOperation), Addresses: addresses, Amounts: amounts, Cause: err}
	}
	r, err := e.executor.Execute(ctx, txn.Request{
		Kind:      core.DepositOperation,
		Messages:  msgs,
		Addresses: addresses,
		Amounts:   amounts,
		Details: map[string]string{
			"dex":          b.Name(),
			"pool":         dep.Key.String(),
			"single_sided": strconv.FormatBool(dep.SingleSided),
		},
	})
	res.Steps = append(res.Steps, r)
	return res, err
}

// Withdraw burns liquidity tokens of the pair's pool. A nil amount burns the whole balance.
func (e *Engine) Withdraw(ctx context.Context, backend string, pair Pair, amount *big.Int) (core.OperationResult, error) {
	b, err := e.dispatch(backend, CanWithdraw, core.WithdrawOperation)
	if err != nil {
		return core.OperationResult{}, err
	}
	key := PoolKey{Pair: pair, Type: Volatile}
	state, pool, err := e.poolState(ctx, b, key)
	if err != nil {
		return core.OperationResult{}, opError(core.WithdrawOperation, nil, err)
	}
	addresses := map[string]ton.AccountID{"pool": pool}
	if state != PoolReady {
		return core.OperationResult{}, opError(core.WithdrawOperation, addresses, fmt.Errorf("%w: %s pool %v", core.ErrPoolNotFound, b.Name(), key))
	}
	owner := e.executor.Wallet()
	lpWallet, balance, err := e.lp.Balance(ctx, pool, owner)
	if err != nil {
		return core.OperationResult{}, opError(core.WithdrawOperation, addresses, err)
	}
	addresses["lp_wallet"] = lpWallet
	if amount == nil {
		amount = balance
	}
	amounts := map[string]*big.Int{"amount": amount, "balance": balance}
	if amount.Sign() <= 0 || amount.Cmp(balance) > 0 {
		return core.OperationResult{}, &core.OperationError{
			Op:        string(core.WithdrawOperation),
			Addresses: addresses,
			Amounts:   amounts,
			Cause:     fmt.Errorf("can not burn %v liquidity tokens, balance is %v", amount, balance),
		}
	}
	body, err := cellcodec.BurnBody(cellcodec.NewQueryID(), amount, &owner)
	if err != nil {
		return core.OperationResult{}, opError(core.WithdrawOperation, addresses, err)
	}
	return e.executor.Execute(ctx, txn.Request{
		Kind:      core.WithdrawOperation,
		Messages:  []txn.InternalMessage{{Destination: lpWallet, Value: WithdrawValue, Bounce: true, Body: body}},
		Addresses: addresses,
		Amounts:   amounts,
		Details:   map[string]string{"dex": b.Name(), "pool": key.String()},
	})
}

// ClaimFee claims fees of every asset in its own transaction. A failed claim does not
// stop the others; the returned error joins all failures.
func (e *Engine) ClaimFee(ctx context.Context, backend string, assets []core.Asset, native bool) ([]ClaimResult, error) {
	b, err := e.dispatch(backend, CanClaimFee, core.ClaimFeeOperation)
	if err != nil {
		return nil, err
	}
	list := append([]core.Asset(nil), assets...)
	if native {
		list = append(list, core.NativeAsset())
	}
	if len(list) == 0 {
		return nil, opError(core.ClaimFeeOperation, nil, errors.New("no assets to claim fees for"))
	}
	owner := e.executor.Wallet()
	results := make([]ClaimResult, 0, len(list))
	var errs []error
	for _, asset := range list {
		cr := ClaimResult{Asset: asset}
		msg, err := b.ClaimFee(ctx, owner, asset)
		if err != nil {
			cr.Err = opError(core.ClaimFeeOperation, nil, fmt.Errorf("%v: %w", asset, err))
		} else {
			cr.Result, cr.Err = e.executor.Execute(ctx, txn.Request{
				Kind:      core.ClaimFeeOperation,
				Messages:  []txn.InternalMessage{msg},
				Addresses: map[string]ton.AccountID{"vault": msg.Destination},
				Details:   map[string]string{"dex": b.Name(), "asset": asset.String()},
			})
		}
		if cr.Err != nil {
			slog.Warn("claim fee", "dex", b.Name(), "asset", asset.String(), "error", cr.Err)
			errs = append(errs, cr.Err)
		}
		results = append(results, cr)
	}
	return results, errors.Join(errs...)
}

func opError(kind core.OperationKind, addresses map[string]ton.AccountID, err error) error {
	var opErr *core.OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &core.OperationError{Op: string(kind), Addresses: addresses, Cause: err}
}
