package jetton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"golang.org/x/sync/singleflight"
)

const DefaultResolverCacheSize = 4096

type ledger interface {
	abi.Executor
	GetAccountState(ctx context.Context, account ton.AccountID) (core.AccountState, error)
}

type walletKey struct {
	master ton.AccountID
	owner  ton.AccountID
}

// WalletData is the reply of get_wallet_data.
type WalletData struct {
	Balance *big.Int
	Owner   ton.AccountID
	Master  ton.AccountID
}

// WalletResolver finds jetton wallets of owners. Wallet addresses are derived from
// the master and the owner and never change, so resolved addresses are cached.
type WalletResolver struct {
	ledger ledger
	cache  *lru.Cache[walletKey, ton.AccountID]
	group  singleflight.Group
}

func NewWalletResolver(l ledger, size int) (*WalletResolver, error) {
	if size <= 0 {
		size = DefaultResolverCacheSize
	}
	cache, err := lru.New[walletKey, ton.AccountID](size)
	if err != nil {
		return nil, err
	}
	return &WalletResolver{ledger: l, cache: cache}, nil
}

// WalletAddress calculates the wallet address and validates it if it is deployed.
func (r *WalletResolver) WalletAddress(ctx context.Context, master, owner ton.AccountID) (ton.AccountID, error) {
	key := walletKey{master: master, owner: owner}
	if a, ok := r.cache.Get(key); ok {
		return a, nil
	}
	v, err, _ := r.group.Do(master.ToRaw()+"/"+owner.ToRaw(), func() (any, error) {
		wallet, err := r.walletAddress(ctx, master, owner)
		if err != nil {
			return nil, err
		}
		state, err := r.ledger.GetAccountState(ctx, wallet)
		if err != nil {
			return nil, fmt.Errorf("can not get account state: %w", err)
		}
		if !state.Deployed() {
			slog.Debug("jetton wallet is not deployed yet", "account", wallet.ToRaw())
			r.cache.Add(key, wallet)
			return wallet, nil
		}
		data, err := r.WalletData(ctx, wallet)
		if err != nil {
			return nil, err
		}
		if data.Master != master {
			return nil, errors.New("jetton master from jetton wallet is not equal to jetton master")
		}
		if data.Owner != owner {
			return nil, errors.New("wallet owner from jetton wallet is not equal to owner")
		}
		r.cache.Add(key, wallet)
		return wallet, nil
	})
	if err != nil {
		return ton.AccountID{}, err
	}
	return v.(ton.AccountID), nil
}

func (r *WalletResolver) walletAddress(ctx context.Context, master, owner ton.AccountID) (ton.AccountID, error) {
	res, err := core.Query[abi.GetWalletAddressResult](ctx, r.ledger, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetWalletAddress(ctx, exec, master, owner.ToMsgAddress())
	})
	if err != nil {
		return ton.AccountID{}, fmt.Errorf("can not get jetton wallet address: %w", err)
	}
	wallet, err := cellcodec.Address(res.JettonWalletAddress)
	if err != nil {
		return ton.AccountID{}, fmt.Errorf("invalid jetton wallet account id: %w", err)
	}
	if wallet == nil {
		return ton.AccountID{}, errors.New("jetton wallet account is none")
	}
	return *wallet, nil
}

// WalletData reads a deployed jetton wallet.
func (r *WalletResolver) WalletData(ctx context.Context, wallet ton.AccountID) (WalletData, error) {
	res, err := core.Query[abi.GetWalletDataResult](ctx, r.ledger, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetWalletData(ctx, exec, wallet)
	})
	if err != nil {
		return WalletData{}, fmt.Errorf("can not get jetton wallet data: %w", err)
	}
	owner, err := cellcodec.Address(res.Owner)
	if err != nil || owner == nil {
		return WalletData{}, fmt.Errorf("invalid owner account id: %v", err)
	}
	master, err := cellcodec.Address(res.Jetton)
	if err != nil || master == nil {
		return WalletData{}, fmt.Errorf("invalid jetton account id: %v", err)
	}
	balance := big.Int(res.Balance)
	return WalletData{Balance: new(big.Int).Set(&balance), Owner: *owner, Master: *master}, nil
}

// Balance returns the jetton balance of owner. A wallet that does not exist yet holds nothing.
func (r *WalletResolver) Balance(ctx context.Context, master, owner ton.AccountID) (ton.AccountID, *big.Int, error) {
	wallet, err := r.WalletAddress(ctx, master, owner)
	if err != nil {
		return ton.AccountID{}, nil, err
	}
	state, err := r.ledger.GetAccountState(ctx, wallet)
	if err != nil {
		return ton.AccountID{}, nil, fmt.Errorf("can not get account state: %w", err)
	}
	if !state.Deployed() {
		return wallet, big.NewInt(0), nil
	}
	data, err := r.WalletData(ctx, wallet)
	if err != nil {
		return ton.AccountID{}, nil, err
	}
	return wallet, data.Balance, nil
}
