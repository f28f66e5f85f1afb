package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
	"github.com/txsociety/ton-agent/pkg/jetton"
	"github.com/txsociety/ton-agent/pkg/listing"
	"github.com/txsociety/ton-agent/pkg/market"
	"github.com/txsociety/ton-agent/pkg/txn"
	"golang.org/x/crypto/ed25519"
)

var ErrWalletNotDeployed = errors.New("agent wallet is not deployed")

// Journal persists operations. The agent works without one.
type Journal interface {
	SaveOperation(ctx context.Context, op core.Operation) error
	UpdateOperation(ctx context.Context, op core.Operation) error
}

type Options struct {
	Key ed25519.PrivateKey
	// WalletAddress overrides the v4r2 address derived from Key.
	WalletAddress     *ton.AccountID
	Protocol          txn.Config
	Locker            txn.Locker
	Journal           Journal
	Codes             jetton.Codes
	Registry          dex.Registry
	Dex               dex.Config
	ResolverCacheSize int
}

// Agent holds every service bound to one wallet. It is created once and shared.
type Agent struct {
	wallet   *txn.Wallet
	protocol *txn.Protocol
	executor *txn.Executor
	resolver *jetton.WalletResolver
	jettons  *jetton.Service
	listings *listing.Reader
	market   *market.Service
	dex      *dex.Engine
	closers  []func() error
}

// New checks that the wallet exists on chain and wires the services around it.
func New(ctx context.Context, ledger txn.Ledger, opts Options) (*Agent, error) {
	if len(opts.Key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(opts.Key))
	}
	wallet, err := txn.NewWallet(opts.Key, opts.WalletAddress)
	if err != nil {
		return nil, err
	}
	protocol := txn.New(ledger, opts.Locker, opts.Protocol)
	state, err := protocol.Ledger().GetAccountState(ctx, wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("get wallet state: %w", err)
	}
	if state.Status != core.AccountActive {
		return nil, fmt.Errorf("%w: %v is %v", ErrWalletNotDeployed, wallet.Address().ToRaw(), state.Status)
	}

	a := &Agent{
		wallet:   wallet,
		protocol: protocol,
		executor: txn.NewExecutor(protocol, wallet, opts.Journal),
	}

	size := opts.ResolverCacheSize
	if size <= 0 {
		size = jetton.DefaultResolverCacheSize
	}
	a.resolver, err = jetton.NewWalletResolver(protocol.Ledger(), size)
	if err != nil {
		return nil, err
	}
	a.jettons = jetton.New(a.executor, a.resolver, opts.Codes)
	a.listings = listing.NewReader(protocol.Ledger())
	a.market = market.New(a.executor, a.listings)

	backends, err := opts.Registry.Build(protocol.Ledger(), a.resolver)
	if err != nil {
		return nil, fmt.Errorf("build dex backends: %w", err)
	}
	cfg := opts.Dex
	if cfg.ReadyPolls <= 0 {
		cfg = dex.DefaultConfig()
	}
	a.dex = dex.NewEngine(a.executor, protocol.Ledger(), a.resolver, cfg, backends...)

	if c, ok := opts.Locker.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	slog.Info("agent ready", "wallet", wallet.Address().ToRaw(), "dex", a.dex.Backends())
	return a, nil
}

func (a *Agent) Wallet() ton.AccountID {
	return a.wallet.Address()
}

func (a *Agent) Executor() *txn.Executor {
	return a.executor
}

func (a *Agent) Protocol() *txn.Protocol {
	return a.protocol
}

func (a *Agent) Jettons() *jetton.Service {
	return a.jettons
}

func (a *Agent) Listings() *listing.Reader {
	return a.listings
}

func (a *Agent) Market() *market.Service {
	return a.market
}

func (a *Agent) Dex() *dex.Engine {
	return a.dex
}

// Close releases the lock backend. The agent must not be used afterwards.
func (a *Agent) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
