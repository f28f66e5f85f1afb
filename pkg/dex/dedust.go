package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
)

// DeDust v2 opcodes.
const (
	DedustOpCreateVault          = abi.DedustCreateVaultMsgOpCode
	DedustOpCreateVolatilePool   = abi.DedustCreateVolatilePoolMsgOpCode
	DedustOpDepositNative        = abi.DedustDepositLiquidityMsgOpCode
	DedustOpDepositJettonPayload = abi.DedustDepositLiquidityJettonOpCode
)

var (
	dedustCreateVaultValue = core.MilliTON(100)
	dedustCreatePoolValue  = core.MilliTON(250)
	dedustDepositGas       = core.MilliTON(150)
	dedustJettonValue      = core.MilliTON(300)
	dedustJettonForward    = core.MilliTON(250)
)

// DeDust talks to the DeDust v2 factory. Vaults and pools are derived by the factory.
type DeDust struct {
	factory  ton.AccountID
	ledger   getter
	resolver walletResolver
}

func NewDeDust(factory ton.AccountID, l getter, resolver walletResolver) *DeDust {
	return &DeDust{factory: factory, ledger: l, resolver: resolver}
}

func (d *DeDust) Name() string {
	return "dedust"
}

func (d *DeDust) Capabilities() Capabilities {
	return CanCreatePool | CanDeposit | CanWithdraw | CanDepositSingleSided
}

// dedustAsset is native$0000 or jetton$0001 workchain_id:int8 address:uint256.
func dedustAsset(a core.Asset) abi.DedustAsset {
	if a.IsNative() {
		return abi.DedustAsset{SumType: "Native"}
	}
	master := a.Jetton()
	res := abi.DedustAsset{SumType: "Jetton"}
	res.Jetton.WorkchainId = int8(master.Workchain)
	res.Jetton.Address = tlb.Bits256(master.Address)
	return res
}

func dedustPoolParams(pair Pair) abi.DedustPoolParams {
	return abi.DedustPoolParams{
		PoolType: abi.DedustPoolType{SumType: "Volatile"},
		Asset0:   dedustAsset(pair.First),
		Asset1:   dedustAsset(pair.Second),
	}
}

// PoolAddress asks the factory. get_pool_address of DeDust takes the pool type first,
// which the generated getter does not model.
func (d *DeDust) PoolAddress(ctx context.Context, key PoolKey) (ton.AccountID, bool, error) {
	args := core.Stack{core.Int64Value(0)}
	for _, a := range key.Pair.Assets() {
		c, err := cellcodec.Encode(dedustAsset(a))
		if err != nil {
			return ton.AccountID{}, false, err
		}
		args = append(args, core.SliceValue(c))
	}
	pool, err := resolveAddress(ctx, d.ledger, d.factory, "get_pool_address", args)
	if err != nil {
		return ton.AccountID{}, false, fmt.Errorf("dedust pool of %v: %w", key, err)
	}
	return pool, true, nil
}

func (d *DeDust) VaultAddress(ctx context.Context, asset core.Asset) (ton.AccountID, bool, error) {
	vault, err := queryAddress(ctx, d.ledger, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetVaultAddress(ctx, exec, d.factory, dedustAsset(asset))
	}, func(r abi.GetVaultAddress_DedustResult) tlb.MsgAddress {
		return r.VaultAddr
	})
	if err != nil {
		return ton.AccountID{}, false, fmt.Errorf("dedust vault of %v: %w", asset, err)
	}
	return vault, true, nil
}

func dedustBody(op uint32, name abi.MsgOpName, v any) (*boc.Cell, error) {
	return cellcodec.Encode(abi.InMsgBody{SumType: name, OpCode: &op, Value: v})
}

func (d *DeDust) CreateVault(ctx context.Context, asset core.Asset) (txn.InternalMessage, error) {
	body, err := dedustBody(DedustOpCreateVault, abi.DedustCreateVaultMsgOp, abi.DedustCreateVaultMsgBody{
		QueryId: cellcodec.NewQueryID(),
		Asset:   dedustAsset(asset),
	})
	if err != nil {
		return txn.InternalMessage{}, err
	}
	return txn.InternalMessage{Destination: d.factory, Value: dedustCreateVaultValue, Bounce: true, Body: body}, nil
}

func (d *DeDust) CreatePool(ctx context.Context, key PoolKey) (txn.InternalMessage, error) {
	body, err := dedustBody(DedustOpCreateVolatilePool, abi.DedustCreateVolatilePoolMsgOp, abi.DedustCreateVolatilePoolMsgBody{
		QueryId: cellcodec.NewQueryID(),
		Asset0:  dedustAsset(key.Pair.First),
		Asset1:  dedustAsset(key.Pair.Second),
	})
	if err != nil {
		return txn.InternalMessage{}, err
	}
	return txn.InternalMessage{Destination: d.factory, Value: dedustCreatePoolValue, Bounce: true, Body: body}, nil
}

// depositTargets are min_lp_amount and the target balances. A single-sided deposit
// targets zero on the other side.
func depositTargets(dep Deposit) (minLP, first, second tlb.Grams, err error) {
	if minLP, err = cellcodec.Grams(dep.MinLPOut); err != nil {
		return
	}
	if first, err = cellcodec.Grams(dep.Amounts[0]); err != nil {
		return
	}
	second, err = cellcodec.Grams(dep.Amounts[1])
	return
}

func (d *DeDust) DepositMessages(ctx context.Context, owner ton.AccountID, dep Deposit) ([]txn.InternalMessage, error) {
	minLP, first, second, err := depositTargets(dep)
	if err != nil {
		return nil, err
	}
	var msgs []txn.InternalMessage
	for i, asset := range dep.Key.Pair.Assets() {
		amount := dep.Amounts[i]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		vault, _, err := d.VaultAddress(ctx, asset)
		if err != nil {
			return nil, err
		}
		if asset.IsNative() {
			grams, err := cellcodec.Grams(amount)
			if err != nil {
				return nil, err
			}
			deposit := abi.DedustDepositLiquidityMsgBody{
				QueryId:    cellcodec.NewQueryID(),
				Amount:     grams,
				PoolParams: dedustPoolParams(dep.Key.Pair),
			}
			deposit.Params.MinLpAmount = minLP
			deposit.Params.Asset0TargetBalance = first
			deposit.Params.Asset1TargetBalance = second
			body, err := dedustBody(DedustOpDepositNative, abi.DedustDepositLiquidityMsgOp, deposit)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, txn.InternalMessage{
				Destination: vault,
				Value:       new(big.Int).Add(amount, dedustDepositGas),
				Bounce:      true,
				Body:        body,
			})
			continue
		}
		m, err := jettonTransfer(ctx, d.resolver, owner, jettonSend{
			master:      *asset.Jetton(),
			amount:      amount,
			destination: vault,
			forwardTON:  dedustJettonForward,
			payload: abi.JettonPayload{
				SumType: abi.DedustDepositLiquidityJettonOp,
				Value: abi.DedustDepositLiquidityJettonPayload{
					PoolParams:          dedustPoolParams(dep.Key.Pair),
					MinLpAmount:         minLP,
					Asset0TargetBalance: first,
					Asset1TargetBalance: second,
				},
			},
			value: dedustJettonValue,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (d *DeDust) ClaimFee(ctx context.Context, owner ton.AccountID, asset core.Asset) (txn.InternalMessage, error) {
	return txn.InternalMessage{}, fmt.Errorf("%w: dedust claim fee", core.ErrUnsupportedOperation)
}

var _ Backend = (*DeDust)(nil)
