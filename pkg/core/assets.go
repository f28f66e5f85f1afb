package core

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/tonkeeper/tongo/ton"
)

const NativeTicker = "TON"

type AssetType = string

const (
	Native AssetType = "native"
	Jetton AssetType = "jetton"
)

type Asset struct {
	// Do not use pointers to support equality
	Type         AssetType
	jettonMaster ton.AccountID
}

func NativeAsset() Asset {
	return Asset{
		Type: Native,
	}
}

func JettonAsset(master ton.AccountID) Asset {
	return Asset{
		Type:         Jetton,
		jettonMaster: master,
	}
}

// ParseAsset accepts "native", the TON ticker or a jetton master address.
func ParseAsset(s string) (Asset, error) {
	if strings.EqualFold(s, Native) || strings.EqualFold(s, NativeTicker) {
		return NativeAsset(), nil
	}
	master, err := ton.ParseAccountID(s)
	if err != nil {
		return Asset{}, fmt.Errorf("invalid asset %q: %w", s, err)
	}
	return JettonAsset(master), nil
}

func (a Asset) IsNative() bool {
	return a.Type == Native
}

func (a Asset) Jetton() *ton.AccountID {
	if a.Type != Jetton {
		return nil
	}
	res := a.jettonMaster
	return &res
}

func (a Asset) String() string {
	switch a.Type {
	case Native:
		return fmt.Sprintf("%s$", a.Type)
	case Jetton:
		return fmt.Sprintf("%s$%s", a.Type, a.jettonMaster.ToRaw())
	}
	return ""
}

// Less orders native before jettons, jettons by workchain then address bytes.
func (a Asset) Less(b Asset) bool {
	if a.Type != b.Type {
		return a.Type == Native
	}
	if a.Type == Native {
		return false
	}
	if a.jettonMaster.Workchain != b.jettonMaster.Workchain {
		return a.jettonMaster.Workchain < b.jettonMaster.Workchain
	}
	return bytes.Compare(a.jettonMaster.Address[:], b.jettonMaster.Address[:]) < 0
}

type AssetAmount struct {
	Asset  Asset
	Amount *big.Int
}

func (a AssetAmount) IsZero() bool {
	return a.Amount == nil || a.Amount.Sign() == 0
}
