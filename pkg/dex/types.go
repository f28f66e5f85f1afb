// Package dex provides liquidity on DeDust, STON.fi and Torch pools.
package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/txsociety/ton-agent/pkg/core"
)

type PoolType string

const Volatile PoolType = "volatile"

// Pair is an ordered asset pair: native first, jettons by address.
type Pair struct {
	First  core.Asset
	Second core.Asset
}

// NewPair orders a and b canonically. Equal assets do not make a pair.
func NewPair(a, b core.Asset) (Pair, error) {
	if a == b {
		return Pair{}, fmt.Errorf("%w: pair of %v with itself", core.ErrInvalidDepositConfiguration, a)
	}
	if b.Less(a) {
		a, b = b, a
	}
	return Pair{First: a, Second: b}, nil
}

// PairOf builds a pair from jetton assets plus the native asset when native is set.
func PairOf(assets []core.Asset, native bool) (Pair, error) {
	members := make([]core.Asset, 0, len(assets)+1)
	members = append(members, assets...)
	if native {
		members = append(members, core.NativeAsset())
	}
	if len(members) != 2 {
		return Pair{}, fmt.Errorf("%w: a pool has two assets, got %d", core.ErrInvalidDepositConfiguration, len(members))
	}
	return NewPair(members[0], members[1])
}

func (p Pair) Assets() [2]core.Asset {
	return [2]core.Asset{p.First, p.Second}
}

func (p Pair) String() string {
	return p.First.String() + "/" + p.Second.String()
}

type PoolKey struct {
	Pair Pair
	Type PoolType
}

func (k PoolKey) String() string {
	return string(k.Type) + ":" + k.Pair.String()
}

type PoolState int

const (
	PoolNotDeployed PoolState = iota
	PoolPending
	PoolReady
)

func (s PoolState) String() string {
	switch s {
	case PoolNotDeployed:
		return "not_deployed"
	case PoolPending:
		return "pending"
	case PoolReady:
		return "ready"
	}
	return "unknown"
}

type Capabilities uint8

const (
	CanCreatePool Capabilities = 1 << iota
	CanDeposit
	CanWithdraw
	CanClaimFee
	// CanDepositSingleSided allows deposits where one side of the pair is zero.
	CanDepositSingleSided
	// CreatesPoolOnDeposit means the first deposit deploys the pool.
	CreatesPoolOnDeposit
)

func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

func (c Capabilities) String() string {
	var names []string
	for _, f := range []struct {
		flag Capabilities
		name string
	}{
		{CanCreatePool, "create_pool"},
		{CanDeposit, "deposit"},
		{CanWithdraw, "withdraw"},
		{CanClaimFee, "claim_fee"},
		{CanDepositSingleSided, "single_sided"},
		{CreatesPoolOnDeposit, "implicit_pool"},
	} {
		if c.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, ",")
}

// DepositRequest lists jetton amounts and an optional native amount.
type DepositRequest struct {
	Assets       []core.AssetAmount
	NativeAmount *big.Int
	MinLPOut     *big.Int
}

// Deposit is a validated deposit. Amounts follow the pair order.
type Deposit struct {
	Key         PoolKey
	Amounts     [2]*big.Int
	SingleSided bool
	MinLPOut    *big.Int
}

// PlanDeposit checks the request shape. It needs exactly two distinct assets with nonzero
// amounts, except that a jetton may stay at zero next to a nonzero native amount, which
// makes the deposit single-sided.
func PlanDeposit(req DepositRequest) (Deposit, error) {
	members := make([]core.AssetAmount, 0, len(req.Assets)+1)
	for _, a := range req.Assets {
		if a.Asset.IsNative() {
			return Deposit{}, fmt.Errorf("%w: native amount goes to NativeAmount", core.ErrInvalidDepositConfiguration)
		}
		members = append(members, a)
	}
	if req.NativeAmount != nil {
		members = append(members, core.AssetAmount{Asset: core.NativeAsset(), Amount: req.NativeAmount})
	}
	if len(members) != 2 {
		return Deposit{}, fmt.Errorf("%w: expected two assets, got %d", core.ErrInvalidDepositConfiguration, len(members))
	}
	pair, err := NewPair(members[0].Asset, members[1].Asset)
	if err != nil {
		return Deposit{}, err
	}
	d := Deposit{Key: PoolKey{Pair: pair, Type: Volatile}, MinLPOut: req.MinLPOut}
	nonzero := 0
	nativeFunded := false
	for _, m := range members {
		if m.Amount != nil && m.Amount.Sign() < 0 {
			return Deposit{}, fmt.Errorf("%w: negative amount of %v", core.ErrInvalidDepositConfiguration, m.Asset)
		}
		amount := big.NewInt(0)
		if !m.IsZero() {
			amount.Set(m.Amount)
			nonzero++
			nativeFunded = nativeFunded || m.Asset.IsNative()
		}
		if m.Asset == pair.First {
			d.Amounts[0] = amount
		} else {
			d.Amounts[1] = amount
		}
	}
	switch {
	case nonzero == 0:
		return Deposit{}, fmt.Errorf("%w: all amounts are zero", core.ErrInvalidDepositConfiguration)
	case nonzero == 1 && !nativeFunded:
		return Deposit{}, fmt.Errorf("%w: a zero side needs a nonzero native amount next to it", core.ErrInvalidDepositConfiguration)
	}
	d.SingleSided = nonzero == 1
	return d, nil
}
