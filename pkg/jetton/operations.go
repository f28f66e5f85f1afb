// Package jetton deploys and administers jetton minters and moves jettons of the agent wallet.
package jetton

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/txn"
)

// Fixed TON amounts attached to each operation. Unused gas is returned by the contracts.
var (
	DeployValue        = core.MilliTON(250)
	MintValue          = core.MilliTON(100)
	MintForwardValue   = core.MilliTON(50)
	AdminValue         = core.MilliTON(50)
	BurnValue          = core.MilliTON(50)
	TransferValue      = core.MilliTON(100)
	TransferForwardTON = big.NewInt(1)
)

type executor interface {
	Wallet() ton.AccountID
	Execute(ctx context.Context, req txn.Request) (core.OperationResult, error)
}

// Codes are the contract codes used to deploy new minters.
type Codes struct {
	Minter *boc.Cell
	Wallet *boc.Cell
}

type Service struct {
	executor executor
	resolver *WalletResolver
	codes    Codes
}

func New(e executor, resolver *WalletResolver, codes Codes) *Service {
	return &Service{executor: e, resolver: resolver, codes: codes}
}

func (s *Service) Resolver() *WalletResolver {
	return s.resolver
}

// Content picks the metadata layout: a lone uri is stored off-chain, anything else on-chain.
func Content(metadata map[string]string) (*boc.Cell, error) {
	if uri, ok := metadata["uri"]; ok && len(metadata) == 1 {
		return cellcodec.EncodeOffchainMetadata(uri)
	}
	if len(cellcodec.SupportedMetadata(metadata)) == 0 {
		return nil, fmt.Errorf("%w: no supported metadata fields", core.ErrEncoding)
	}
	return cellcodec.EncodeOnchainMetadata(metadata)
}

// MinterInit returns the state init and the address of a new minter. The address is known before deploy.
func (s *Service) MinterInit(admin ton.AccountID, metadata map[string]string) (cellcodec.StateInit, ton.AccountID, error) {
	if s.codes.Minter == nil || s.codes.Wallet == nil {
		return cellcodec.StateInit{}, ton.AccountID{}, errors.New("minter and jetton wallet code are not configured")
	}
	content, err := Content(metadata)
	if err != nil {
		return cellcodec.StateInit{}, ton.AccountID{}, err
	}
	data, err := cellcodec.MinterData(big.NewInt(0), admin, content, s.codes.Wallet)
	if err != nil {
		return cellcodec.StateInit{}, ton.AccountID{}, err
	}
	init := cellcodec.StateInit{Code: s.codes.Minter, Data: data}
	address, err := init.Address(0)
	if err != nil {
		return cellcodec.StateInit{}, ton.AccountID{}, err
	}
	return init, address, nil
}

// DeployMinter deploys a minter administered by owner, or by the agent wallet when owner is nil.
func (s *Service) DeployMinter(ctx context.Context, owner *ton.AccountID, metadata map[string]string) (core.OperationResult, error) {
	admin := s.executor.Wallet()
	if owner != nil {
		admin = *owner
	}
	init, minter, err := s.MinterInit(admin, metadata)
	if err != nil {
		return core.OperationResult{}, invalid(core.DeployMinterOperation, map[string]ton.AccountID{"admin": admin}, nil, err)
	}
	return s.executor.Execute(ctx, txn.Request{
		Kind: core.DeployMinterOperation,
		Messages: []txn.InternalMessage{{
			Destination: minter,
			Value:       DeployValue,
			StateInit:   &init,
		}},
		Addresses: map[string]ton.AccountID{"minter": minter, "admin": admin},
		Details:   map[string]string{"minter": minter.ToRaw()},
	})
}

func (s *Service) Mint(ctx context.Context, minter, to ton.AccountID, amount *big.Int) (core.OperationResult, error) {
	addresses := map[string]ton.AccountID{"minter": minter, "to": to}
	amounts := map[string]*big.Int{"amount": amount}
	if err := positive(amount); err != nil {
		return core.OperationResult{}, invalid(core.MintOperation, addresses, amounts, err)
	}
	wallet := s.executor.Wallet()
	body, err := cellcodec.MintBody(cellcodec.NewQueryID(), to, amount, MintForwardValue, &wallet)
	if err != nil {
		return core.OperationResult{}, invalid(core.MintOperation, addresses, amounts, err)
	}
	before, err := s.resolver.JettonData(ctx, minter)
	if err != nil {
		return core.OperationResult{}, invalid(core.MintOperation, addresses, amounts, err)
	}
	amounts["supply_before"] = before.TotalSupply
	want := new(big.Int).Add(before.TotalSupply, amount)
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.MintOperation,
		Messages:  []txn.InternalMessage{{Destination: minter, Value: MintValue, Bounce: true, Body: body}},
		Addresses: addresses,
		Amounts:   amounts,
		Effect: &txn.Effect{
			Description: fmt.Sprintf("total supply of %v to reach %v", minter.ToRaw(), want),
			Observe: func(ctx context.Context) (bool, error) {
				data, err := s.resolver.JettonData(ctx, minter)
				if err != nil {
					return false, err
				}
				return data.TotalSupply.Cmp(want) >= 0, nil
			},
		},
	})
}

// Burn burns amount from the agent's own jetton wallet. responseTo defaults to the agent wallet.
func (s *Service) Burn(ctx context.Context, minter ton.AccountID, amount *big.Int, responseTo *ton.AccountID) (core.OperationResult, error) {
	addresses := map[string]ton.AccountID{"minter": minter}
	amounts := map[string]*big.Int{"amount": amount}
	if err := positive(amount); err != nil {
		return core.OperationResult{}, invalid(core.BurnOperation, addresses, amounts, err)
	}
	owner := s.executor.Wallet()
	if responseTo == nil {
		responseTo = &owner
	}
	jettonWallet, err := s.resolver.WalletAddress(ctx, minter, owner)
	if err != nil {
		return core.OperationResult{}, invalid(core.BurnOperation, addresses, amounts, err)
	}
	addresses["jetton_wallet"] = jettonWallet
	body, err := cellcodec.BurnBody(cellcodec.NewQueryID(), amount, responseTo)
	if err != nil {
		return core.OperationResult{}, invalid(core.BurnOperation, addresses, amounts, err)
	}
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.BurnOperation,
		Messages:  []txn.InternalMessage{{Destination: jettonWallet, Value: BurnValue, Bounce: true, Body: body}},
		Addresses: addresses,
		Amounts:   amounts,
	})
}

func (s *Service) ChangeAdmin(ctx context.Context, minter, newAdmin ton.AccountID) (core.OperationResult, error) {
	addresses := map[string]ton.AccountID{"minter": minter, "new_admin": newAdmin}
	body, err := cellcodec.ChangeAdminBody(cellcodec.NewQueryID(), newAdmin)
	if err != nil {
		return core.OperationResult{}, invalid(core.ChangeAdminOperation, addresses, nil, err)
	}
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.ChangeAdminOperation,
		Messages:  []txn.InternalMessage{{Destination: minter, Value: AdminValue, Bounce: true, Body: body}},
		Addresses: addresses,
		Effect: &txn.Effect{
			Description: fmt.Sprintf("admin of %v to become %v", minter.ToRaw(), newAdmin.ToRaw()),
			Observe: func(ctx context.Context) (bool, error) {
				data, err := s.resolver.JettonData(ctx, minter)
				if err != nil {
					return false, err
				}
				return data.Admin != nil && *data.Admin == newAdmin, nil
			},
		},
	})
}

func (s *Service) UpdateMetadata(ctx context.Context, minter ton.AccountID, metadata map[string]string) (core.OperationResult, error) {
	addresses := map[string]ton.AccountID{"minter": minter}
	content, err := Content(metadata)
	if err != nil {
		return core.OperationResult{}, invalid(core.UpdateMetadataOperation, addresses, nil, err)
	}
	body, err := cellcodec.UpdateMetadataBody(cellcodec.NewQueryID(), content)
	if err != nil {
		return core.OperationResult{}, invalid(core.UpdateMetadataOperation, addresses, nil, err)
	}
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.UpdateMetadataOperation,
		Messages:  []txn.InternalMessage{{Destination: minter, Value: AdminValue, Bounce: true, Body: body}},
		Addresses: addresses,
	})
}

// Transfer sends amount of the master's jetton from the agent wallet to the owner to.
// There is no default master.
func (s *Service) Transfer(ctx context.Context, amount *big.Int, to ton.AccountID, master *ton.AccountID) (core.OperationResult, error) {
	addresses := map[string]ton.AccountID{"to": to}
	amounts := map[string]*big.Int{"amount": amount}
	if master == nil {
		return core.OperationResult{}, invalid(core.TransferOperation, addresses, amounts, core.ErrMasterRequired)
	}
	addresses["master"] = *master
	if err := positive(amount); err != nil {
		return core.OperationResult{}, invalid(core.TransferOperation, addresses, amounts, err)
	}
	owner := s.executor.Wallet()
	jettonWallet, err := s.resolver.WalletAddress(ctx, *master, owner)
	if err != nil {
		return core.OperationResult{}, invalid(core.TransferOperation, addresses, amounts, err)
	}
	addresses["jetton_wallet"] = jettonWallet
	body, err := cellcodec.JettonTransferBody(cellcodec.JettonTransfer{
		QueryID:     cellcodec.NewQueryID(),
		Amount:      amount,
		Destination: to,
		ResponseTo:  &owner,
		ForwardTON:  TransferForwardTON,
	})
	if err != nil {
		return core.OperationResult{}, invalid(core.TransferOperation, addresses, amounts, err)
	}
	return s.executor.Execute(ctx, txn.Request{
		Kind:      core.TransferOperation,
		Messages:  []txn.InternalMessage{{Destination: jettonWallet, Value: TransferValue, Bounce: true, Body: body}},
		Addresses: addresses,
		Amounts:   amounts,
	})
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", core.ErrEncoding)
	}
	return nil
}

func invalid(kind core.OperationKind, addresses map[string]ton.AccountID, amounts map[string]*big.Int, err error) error {
	return &core.OperationError{Op: string(kind), Addresses: addresses, Amounts: amounts, Cause: err}
}
