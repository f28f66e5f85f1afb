package dex

import (
	"context"
	"math/big"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
)

// Backend builds DEX specific messages. The engine checks Capabilities before calling
// anything, so a backend only implements the methods its capabilities promise.
type Backend interface {
	Name() string
	Capabilities() Capabilities
	// PoolAddress returns false when the backend cannot locate the pool at all.
	PoolAddress(ctx context.Context, key PoolKey) (ton.AccountID, bool, error)
	// VaultAddress returns false for backends without per-asset vaults.
	VaultAddress(ctx context.Context, asset core.Asset) (ton.AccountID, bool, error)
	CreateVault(ctx context.Context, asset core.Asset) (txn.InternalMessage, error)
	CreatePool(ctx context.Context, key PoolKey) (txn.InternalMessage, error)
	DepositMessages(ctx context.Context, owner ton.AccountID, d Deposit) ([]txn.InternalMessage, error)
	ClaimFee(ctx context.Context, owner ton.AccountID, asset core.Asset) (txn.InternalMessage, error)
}

type getter interface {
	abi.Executor
	RunGetMethod(ctx context.Context, account ton.AccountID, method string, args core.Stack) (core.Stack, error)
}

type walletResolver interface {
	WalletAddress(ctx context.Context, master, owner ton.AccountID) (ton.AccountID, error)
}

// resolveAddress runs a get-method returning a single address.
func resolveAddress(ctx context.Context, l getter, account ton.AccountID, method string, args core.Stack) (ton.AccountID, error) {
	reply, err := l.RunGetMethod(ctx, account, method, args)
	if err != nil {
		return ton.AccountID{}, err
	}
	if len(reply) == 0 {
		return ton.AccountID{}, core.ErrMethodUnavailable
	}
	a, err := reply[0].Address()
	if err != nil {
		return ton.AccountID{}, err
	}
	if a == nil {
		return ton.AccountID{}, core.ErrNotFound
	}
	return *a, nil
}

// queryAddress runs a generated abi getter whose result carries a single address.
func queryAddress[T any](ctx context.Context, l getter, call func(context.Context, abi.Executor) (string, any, error), pick func(T) tlb.MsgAddress) (ton.AccountID, error) {
	res, err := core.Query[T](ctx, l, call)
	if err != nil {
		return ton.AccountID{}, err
	}
	a, err := cellcodec.Address(pick(res))
	if err != nil {
		return ton.AccountID{}, err
	}
	if a == nil {
		return ton.AccountID{}, core.ErrNotFound
	}
	return *a, nil
}

// jettonSend is a jetton transfer from the owner's wallet carrying a DEX payload.
type jettonSend struct {
	master      ton.AccountID
	amount      *big.Int
	destination ton.AccountID
	forwardTON  *big.Int
	payload     abi.JettonPayload
	value       *big.Int
}

func jettonTransfer(ctx context.Context, resolver walletResolver, owner ton.AccountID, s jettonSend) (txn.InternalMessage, error) {
	wallet, err := resolver.WalletAddress(ctx, s.master, owner)
	if err != nil {
		return txn.InternalMessage{}, err
	}
	body, err := cellcodec.JettonTransferBody(cellcodec.JettonTransfer{
		QueryID:     cellcodec.NewQueryID(),
		Amount:      s.amount,
		Destination: s.destination,
		ResponseTo:  &owner,
		ForwardTON:  s.forwardTON,
		Payload:     &s.payload,
	})
	if err != nil {
		return txn.InternalMessage{}, err
	}
	return txn.InternalMessage{Destination: wallet, Value: s.value, Bounce: true, Body: body}, nil
}
