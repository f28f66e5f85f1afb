package core

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

const NativeDecimals = 9

// Nano returns TON amount v expressed in nanotons.
func Nano(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000))
}

// MilliTON returns v thousandths of TON in nanotons.
func MilliTON(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000))
}

// FormatAmount renders base units for humans. Only presentation code calls it.
func FormatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseAmount converts a human decimal string to base units. Fractions below one unit are rejected.
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, errors.New("amount must not be negative")
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, errors.New("amount has more precision than the asset supports")
	}
	return shifted.BigInt(), nil
}
