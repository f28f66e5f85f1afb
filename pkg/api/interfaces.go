package api

import (
	"context"
	"math/big"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
	"github.com/txsociety/ton-agent/pkg/jetton"
)

type storage interface {
	GetOperation(ctx context.Context, id core.OperationID) (core.Operation, error)
	GetOperations(ctx context.Context, after core.OperationID, limit int64) ([]core.Operation, error)
}

type jettons interface {
	DeployMinter(ctx context.Context, owner *ton.AccountID, metadata map[string]string) (core.OperationResult, error)
	Mint(ctx context.Context, minter, to ton.AccountID, amount *big.Int) (core.OperationResult, error)
	Burn(ctx context.Context, minter ton.AccountID, amount *big.Int, responseTo *ton.AccountID) (core.OperationResult, error)
	ChangeAdmin(ctx context.Context, minter, newAdmin ton.AccountID) (core.OperationResult, error)
	UpdateMetadata(ctx context.Context, minter ton.AccountID, metadata map[string]string) (core.OperationResult, error)
	Transfer(ctx context.Context, amount *big.Int, to ton.AccountID, master *ton.AccountID) (core.OperationResult, error)
	JettonData(ctx context.Context, master ton.AccountID) (jetton.Data, error)
}

type market interface {
	Buy(ctx context.Context, nft ton.AccountID) (core.OperationResult, error)
	Cancel(ctx context.Context, nft ton.AccountID) (core.OperationResult, error)
	Bid(ctx context.Context, nft ton.AccountID, amount *big.Int) (core.OperationResult, error)
}

type listings interface {
	ListingForNFT(ctx context.Context, nft ton.AccountID) (core.Listing, error)
}

type liquidity interface {
	Backends() []string
	PoolState(ctx context.Context, backend string, pair dex.Pair) (dex.PoolState, error)
	CreatePool(ctx context.Context, backend string, pair dex.Pair) (dex.Result, error)
	Deposit(ctx context.Context, backend string, req dex.DepositRequest) (dex.Result, error)
	Withdraw(ctx context.Context, backend string, pair dex.Pair, amount *big.Int) (core.OperationResult, error)
	ClaimFee(ctx context.Context, backend string, assets []core.Asset, native bool) ([]dex.ClaimResult, error)
}
