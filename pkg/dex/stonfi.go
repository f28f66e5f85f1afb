package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
)

// StonfiOpProvideLP heads the forward payload of jettons sent to the v1 router.
const StonfiOpProvideLP = abi.StonfiProvideLiquidityJettonOpCode

var (
	stonfiProvideValue   = core.MilliTON(300)
	stonfiProvideForward = core.MilliTON(240)
)

// StonFi deposits through the v1 router. Native TON enters as proxy TON, and the first
// provide_lp deploys the pool.
type StonFi struct {
	router   ton.AccountID
	pton     ton.AccountID
	ledger   getter
	resolver walletResolver
}

func NewStonFi(router, pton ton.AccountID, l getter, resolver walletResolver) *StonFi {
	return &StonFi{router: router, pton: pton, ledger: l, resolver: resolver}
}

func (s *StonFi) Name() string {
	return "stonfi"
}

func (s *StonFi) Capabilities() Capabilities {
	return CanDeposit | CanWithdraw | CreatesPoolOnDeposit
}

// master maps the native asset to proxy TON.
func (s *StonFi) master(a core.Asset) ton.AccountID {
	if a.IsNative() {
		return s.pton
	}
	return *a.Jetton()
}

// routerWallet is the router's jetton wallet of asset.
func (s *StonFi) routerWallet(ctx context.Context, a core.Asset) (ton.AccountID, error) {
	w, err := s.resolver.WalletAddress(ctx, s.master(a), s.router)
	if err != nil {
		return ton.AccountID{}, fmt.Errorf("router wallet of %v: %w", a, err)
	}
	return w, nil
}

func (s *StonFi) PoolAddress(ctx context.Context, key PoolKey) (ton.AccountID, bool, error) {
	var wallets [2]ton.AccountID
	for i, a := range key.Pair.Assets() {
		w, err := s.routerWallet(ctx, a)
		if err != nil {
			return ton.AccountID{}, false, err
		}
		wallets[i] = w
	}
	pool, err := queryAddress(ctx, s.ledger, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetPoolAddress(ctx, exec, s.router, wallets[0].ToMsgAddress(), wallets[1].ToMsgAddress())
	}, func(r abi.GetPoolAddress_StonfiResult) tlb.MsgAddress {
		return r.PoolAddress
	})
	if err != nil {
		return ton.AccountID{}, false, fmt.Errorf("stonfi pool of %v: %w", key, err)
	}
	return pool, true, nil
}

func (s *StonFi) VaultAddress(ctx context.Context, asset core.Asset) (ton.AccountID, bool, error) {
	return ton.AccountID{}, false, nil
}

func (s *StonFi) CreateVault(ctx context.Context, asset core.Asset) (txn.InternalMessage, error) {
	return txn.InternalMessage{}, fmt.Errorf("%w: stonfi has no vaults", core.ErrUnsupportedOperation)
}

func (s *StonFi) CreatePool(ctx context.Context, key PoolKey) (txn.InternalMessage, error) {
	return txn.InternalMessage{}, fmt.Errorf("%w: stonfi creates pools on the first deposit", core.ErrUnsupportedOperation)
}

func (s *StonFi) DepositMessages(ctx context.Context, owner ton.AccountID, dep Deposit) ([]txn.InternalMessage, error) {
	assets := dep.Key.Pair.Assets()
	var msgs []txn.InternalMessage
	for i, asset := range assets {
		amount := dep.Amounts[i]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		other, err := s.routerWallet(ctx, assets[1-i])
		if err != nil {
			return nil, err
		}
		minLP := dep.MinLPOut
		if minLP == nil || minLP.Sign() == 0 {
			minLP = big.NewInt(1)
		}
		minLPOut, err := cellcodec.Coins(minLP)
		if err != nil {
			return nil, err
		}
		payload := abi.JettonPayload{
			SumType: abi.StonfiProvideLiquidityJettonOp,
			Value: abi.StonfiProvideLiquidityJettonPayload{
				TokenWallet: other.ToMsgAddress(),
				MinLpOut:    minLPOut,
			},
		}
		if !asset.IsNative() {
			m, err := jettonTransfer(ctx, s.resolver, owner, jettonSend{
				master:      *asset.Jetton(),
				amount:      amount,
				destination: s.router,
				forwardTON:  stonfiProvideForward,
				payload:     payload,
				value:       stonfiProvideValue,
			})
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, m)
			continue
		}
		// proxy TON takes a transfer addressed to its router wallet and carries the TON along
		ptonWallet, err := s.routerWallet(ctx, asset)
		if err != nil {
			return nil, err
		}
		body, err := cellcodec.JettonTransferBody(cellcodec.JettonTransfer{
			QueryID:     cellcodec.NewQueryID(),
			Amount:      amount,
			Destination: s.router,
			ResponseTo:  &owner,
			ForwardTON:  stonfiProvideForward,
			Payload:     &payload,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, txn.InternalMessage{
			Destination: ptonWallet,
			Value:       new(big.Int).Add(amount, stonfiProvideValue),
			Bounce:      true,
			Body:        body,
		})
	}
	return msgs, nil
}

func (s *StonFi) ClaimFee(ctx context.Context, owner ton.AccountID, asset core.Asset) (txn.InternalMessage, error) {
	return txn.InternalMessage{}, fmt.Errorf("%w: stonfi claim fee", core.ErrUnsupportedOperation)
}

var _ Backend = (*StonFi)(nil)
