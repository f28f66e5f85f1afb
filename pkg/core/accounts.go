package core

import (
	"cmp"
	"slices"

	"github.com/tonkeeper/tongo/ton"
)

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountUninit   AccountStatus = "uninit"
	AccountFrozen   AccountStatus = "frozen"
	AccountNonexist AccountStatus = "nonexist"
)

type AccountState struct {
	Status  AccountStatus
	Balance uint64
	LastTx  TxID
}

func (s AccountState) Deployed() bool {
	return s.Status == AccountActive
}

type TxID struct {
	Lt   uint64
	Hash ton.Bits256
}

// Transaction is the part of a ledger transaction used for correlation.
type Transaction struct {
	Lt         uint64
	Hash       ton.Bits256
	PrevTxLt   uint64
	PrevTxHash ton.Bits256
	Utime      uint32
	Success    bool
	ExitCode   int32
	InMessage  Message
}

type Message struct {
	Type        string
	Source      *ton.AccountID
	Destination *ton.AccountID
	Value       uint64
	Hash        ton.Bits256
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmp.Compare[string])
	return keys
}
