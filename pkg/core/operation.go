package core

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/tonkeeper/tongo/ton"
)

type OperationStatus string

const (
	SubmittedOperationStatus OperationStatus = "submitted"
	ConfirmedOperationStatus OperationStatus = "confirmed"
	FailedOperationStatus    OperationStatus = "failed"
	ExpiredOperationStatus   OperationStatus = "expired"
	// UnverifiedOperationStatus means the wallet seqno moved past the transfer but no
	// wallet transaction carrying its message hash was found.
	UnverifiedOperationStatus OperationStatus = "unverified"
)

// Final reports whether the status can no longer change.
func (s OperationStatus) Final() bool {
	return s != SubmittedOperationStatus
}

type OperationKind string

const (
	DeployMinterOperation   OperationKind = "deploy_minter"
	MintOperation           OperationKind = "mint"
	BurnOperation           OperationKind = "burn"
	ChangeAdminOperation    OperationKind = "change_admin"
	UpdateMetadataOperation OperationKind = "update_metadata"
	TransferOperation       OperationKind = "transfer"
	BuyOperation            OperationKind = "buy"
	CancelOperation         OperationKind = "cancel"
	BidOperation            OperationKind = "bid"
	CreateVaultOperation    OperationKind = "create_vault"
	CreatePoolOperation     OperationKind = "create_pool"
	DepositOperation        OperationKind = "deposit"
	WithdrawOperation       OperationKind = "withdraw"
	ClaimFeeOperation       OperationKind = "claim_fee"
)

type OperationID = uuid.UUID

func NewOperationID() OperationID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

func ParseOperationID(id string) (OperationID, error) {
	if len(id) == 0 {
		return OperationID{}, errors.New("invalid id length")
	}
	res, err := uuid.Parse(id)
	if err != nil {
		return OperationID{}, err
	}
	if res.Version() != 7 {
		return OperationID{}, fmt.Errorf("invalid operation id")
	}
	return res, nil
}

// Operation is a journal record of one submitted transfer.
type Operation struct {
	ID          OperationID
	Kind        OperationKind
	Wallet      ton.AccountID
	Seqno       uint32
	MsgHash     ton.Bits256
	ValidUntil  time.Time
	Status      OperationStatus
	Addresses   map[string]ton.AccountID
	Amounts     map[string]*big.Int
	TxHash      *ton.Bits256
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
}

// OperationResult is returned to callers of token, marketplace and DEX operations.
type OperationResult struct {
	Operation Operation
	Details   map[string]string
}

type OperationPrintable struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Status      string            `json:"status"`
	Wallet      string            `json:"wallet"`
	Seqno       uint32            `json:"seqno"`
	MsgHash     string            `json:"msg_hash"`
	TxHash      string            `json:"tx_hash,omitempty"`
	Addresses   map[string]string `json:"addresses,omitempty"`
	Amounts     map[string]string `json:"amounts,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
	ConfirmedAt *int64            `json:"confirmed_at,omitempty"`
}

func ConvertOperationToPrintable(op Operation, details map[string]string) OperationPrintable {
	res := OperationPrintable{
		ID:        op.ID.String(),
		Kind:      string(op.Kind),
		Status:    string(op.Status),
		Wallet:    op.Wallet.ToRaw(),
		Seqno:     op.Seqno,
		MsgHash:   op.MsgHash.Hex(),
		Error:     op.Error,
		Details:   details,
		CreatedAt: op.CreatedAt.Unix(),
		UpdatedAt: op.UpdatedAt.Unix(),
	}
	if len(op.Addresses) > 0 {
		res.Addresses = make(map[string]string, len(op.Addresses))
		for k, v := range op.Addresses {
			res.Addresses[k] = v.ToRaw()
		}
	}
	if len(op.Amounts) > 0 {
		res.Amounts = make(map[string]string, len(op.Amounts))
		for k, v := range op.Amounts {
			res.Amounts[k] = v.String()
		}
	}
	if op.TxHash != nil {
		res.TxHash = op.TxHash.Hex()
	}
	if op.ConfirmedAt != nil {
		confirmedAt := op.ConfirmedAt.Unix()
		res.ConfirmedAt = &confirmedAt
	}
	return res
}
