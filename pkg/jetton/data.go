package jetton

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/cellcodec"
	"github.com/txsociety/ton-agent/pkg/core"
)

// Data is the reply of get_jetton_data with decoded metadata.
type Data struct {
	Master      ton.AccountID
	TotalSupply *big.Int
	Mintable    bool
	Admin       *ton.AccountID
	Metadata    map[string]string
	Content     *boc.Cell
	WalletCode  *boc.Cell
}

// adminlessExecutor turns a null admin of get_jetton_data into addr_none, which is
// how minters without an admin answer once the admin role is dropped.
type adminlessExecutor struct {
	abi.Executor
}

func (e adminlessExecutor) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	code, stack, err := e.Executor.RunSmcMethodByID(ctx, account, methodID, params)
	if err == nil && len(stack) == 5 && stack[2].SumType == "VmStkNull" {
		none, nerr := tlb.TlbStructToVmCellSlice((*ton.AccountID)(nil).ToMsgAddress())
		if nerr != nil {
			return 0, nil, nerr
		}
		stack = append(tlb.VmStack{}, stack...)
		stack[2] = none
	}
	return code, stack, err
}

// JettonData is never cached: supply and admin change with every mint and admin transfer.
func (r *WalletResolver) JettonData(ctx context.Context, master ton.AccountID) (Data, error) {
	res, err := core.Query[abi.GetJettonDataResult](ctx, adminlessExecutor{r.ledger}, func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetJettonData(ctx, exec, master)
	})
	if err != nil {
		return Data{}, fmt.Errorf("get_jetton_data of %v: %w", master.ToRaw(), err)
	}
	admin, err := cellcodec.Address(res.AdminAddress)
	if err != nil {
		return Data{}, fmt.Errorf("admin: %w", err)
	}
	content, err := cellcodec.CellFromAny(res.JettonContent)
	if err != nil {
		return Data{}, fmt.Errorf("content: %w", err)
	}
	code, err := cellcodec.CellFromAny(res.JettonWalletCode)
	if err != nil {
		return Data{}, fmt.Errorf("wallet code: %w", err)
	}
	supply := big.Int(res.TotalSupply)
	d := Data{
		Master:      master,
		TotalSupply: new(big.Int).Set(&supply),
		Mintable:    res.Mintable,
		Admin:       admin,
		Content:     content,
		WalletCode:  code,
	}
	d.Metadata, err = cellcodec.DecodeMetadata(content)
	if err != nil {
		// semi-chain and custom layouts exist in the wild, the numbers are still useful
		slog.Warn("can not decode jetton metadata", "master", master.ToRaw(), "error", err)
	}
	return d, nil
}

func (s *Service) JettonData(ctx context.Context, master ton.AccountID) (Data, error) {
	return s.resolver.JettonData(ctx, master)
}
