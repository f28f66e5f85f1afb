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

// Default Torch vault opcodes. tongo has no Torch ABI and these values are not
// checked against deployed vaults, so the backend is only built when the registry
// marks it experimental. Deployments override them through TorchOps.
const (
	TorchOpDeposit       uint32 = 0x95db9d39
	TorchOpDepositSingle uint32 = 0x4a6f3f8c
	TorchOpClaimFee      uint32 = 0x6a4b2f31
)

// TorchOps are the vault opcodes in use. Zero fields take the defaults.
type TorchOps struct {
	Deposit       uint32 `yaml:"deposit"`
	DepositSingle uint32 `yaml:"deposit_single"`
	ClaimFee      uint32 `yaml:"claim_fee"`
}

func (o TorchOps) withDefaults() TorchOps {
	if o.Deposit == 0 {
		o.Deposit = TorchOpDeposit
	}
	if o.DepositSingle == 0 {
		o.DepositSingle = TorchOpDepositSingle
	}
	if o.ClaimFee == 0 {
		o.ClaimFee = TorchOpClaimFee
	}
	return o
}

// torchDeposit is sent with native TON to the vault:
// op:uint32 query_id:uint64 amount:Coins pool:MsgAddress min_lp_out:Coins.
type torchDeposit struct {
	Op       uint32
	QueryId  uint64
	Amount   tlb.VarUInteger16
	Pool     tlb.MsgAddress
	MinLpOut tlb.VarUInteger16
}

// torchDepositPayload rides in the forward payload of a jetton transfer to the vault.
type torchDepositPayload struct {
	Op       uint32
	Pool     tlb.MsgAddress
	MinLpOut tlb.VarUInteger16
}

type torchClaimFee struct {
	Op        uint32
	QueryId   uint64
	Recipient tlb.MsgAddress
}

var (
	torchDepositGas    = core.MilliTON(200)
	torchJettonValue   = core.MilliTON(300)
	torchJettonForward = core.MilliTON(250)
	torchClaimFeeValue = core.MilliTON(100)
)

// Torch pools and vaults are listed in the registry: they are not derived on chain
// and the agent cannot create them.
type Torch struct {
	pools  map[Pair]ton.AccountID
	vaults map[core.Asset]ton.AccountID
	ops    TorchOps

	resolver walletResolver
}

func NewTorch(pools map[Pair]ton.AccountID, vaults map[core.Asset]ton.AccountID, ops TorchOps, resolver walletResolver) *Torch {
	return &Torch{pools: pools, vaults: vaults, ops: ops.withDefaults(), resolver: resolver}
}

func (t *Torch) Name() string {
	return "torch"
}

func (t *Torch) Capabilities() Capabilities {
	return CanDeposit | CanWithdraw | CanClaimFee | CanDepositSingleSided
}

func (t *Torch) PoolAddress(ctx context.Context, key PoolKey) (ton.AccountID, bool, error) {
	pool, ok := t.pools[key.Pair]
	return pool, ok, nil
}

func (t *Torch) VaultAddress(ctx context.Context, asset core.Asset) (ton.AccountID, bool, error) {
	vault, ok := t.vaults[asset]
	if !ok {
		return ton.AccountID{}, false, fmt.Errorf("%w: torch has no vault for %v", core.ErrPoolNotFound, asset)
	}
	return vault, true, nil
}

func (t *Torch) CreateVault(ctx context.Context, asset core.Asset) (txn.InternalMessage, error) {
	return txn.InternalMessage{}, fmt.Errorf("%w: torch vaults are created by the protocol", core.ErrUnsupportedOperation)
}

func (t *Torch) CreatePool(ctx context.Context, key PoolKey) (txn.InternalMessage, error) {
	return txn.InternalMessage{}, fmt.Errorf("%w: torch pool creation", core.ErrUnsupportedOperation)
}

func (t *Torch) depositOp(dep Deposit) uint32 {
	if dep.SingleSided {
		return t.ops.DepositSingle
	}
	return t.ops.Deposit
}

func (t *Torch) DepositMessages(ctx context.Context, owner ton.AccountID, dep Deposit) ([]txn.InternalMessage, error) {
	pool, ok := t.pools[dep.Key.Pair]
	if !ok {
		return nil, fmt.Errorf("%w: torch pool %v is not listed", core.ErrPoolNotFound, dep.Key)
	}
	minLP, err := cellcodec.Coins(dep.MinLPOut)
	if err != nil {
		return nil, err
	}
	var msgs []txn.InternalMessage
	for i, asset := range dep.Key.Pair.Assets() {
		amount := dep.Amounts[i]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		vault, _, err := t.VaultAddress(ctx, asset)
		if err != nil {
			return nil, err
		}
		if asset.IsNative() {
			coins, err := cellcodec.Coins(amount)
			if err != nil {
				return nil, err
			}
			body, err := cellcodec.Encode(torchDeposit{
				Op:       t.depositOp(dep),
				QueryId:  cellcodec.NewQueryID(),
				Amount:   coins,
				Pool:     pool.ToMsgAddress(),
				MinLpOut: minLP,
			})
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, txn.InternalMessage{
				Destination: vault,
				Value:       new(big.Int).Add(amount, torchDepositGas),
				Bounce:      true,
				Body:        body,
			})
			continue
		}
		payload, err := cellcodec.Encode(torchDepositPayload{
			Op:       t.depositOp(dep),
			Pool:     pool.ToMsgAddress(),
			MinLpOut: minLP,
		})
		if err != nil {
			return nil, err
		}
		m, err := jettonTransfer(ctx, t.resolver, owner, jettonSend{
			master:      *asset.Jetton(),
			amount:      amount,
			destination: vault,
			forwardTON:  torchJettonForward,
			payload:     abi.JettonPayload{SumType: abi.UnknownJettonOp, Value: cellcodec.AnyCell(payload)},
			value:       torchJettonValue,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (t *Torch) ClaimFee(ctx context.Context, owner ton.AccountID, asset core.Asset) (txn.InternalMessage, error) {
	vault, _, err := t.VaultAddress(ctx, asset)
	if err != nil {
		return txn.InternalMessage{}, err
	}
	body, err := cellcodec.Encode(torchClaimFee{
		Op:        t.ops.ClaimFee,
		QueryId:   cellcodec.NewQueryID(),
		Recipient: owner.ToMsgAddress(),
	})
	if err != nil {
		return txn.InternalMessage{}, err
	}
	return txn.InternalMessage{Destination: vault, Value: torchClaimFeeValue, Bounce: true, Body: body}, nil
}

var _ Backend = (*Torch)(nil)
