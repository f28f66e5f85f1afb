package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

func TestStackConversion(t *testing.T) {
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	cell := boc.NewCell()
	require.NoError(t, cell.WriteUint(0xabcd, 16))
	owner := ton.AccountID{Workchain: 0, Address: ton.Bits256{7}}

	args := Stack{
		Int64Value(-7),
		IntValue(huge),
		CellValue(cell),
		NullValue(),
		AddressValue(owner),
	}
	vm, err := args.VmStack()
	require.NoError(t, err)
	require.Len(t, vm, 5)
	assert.Equal(t, "VmStkTinyInt", string(vm[0].SumType))
	assert.Equal(t, "VmStkInt", string(vm[1].SumType))
	assert.Equal(t, "VmStkSlice", string(vm[4].SumType))

	back, err := StackFromVm(vm)
	require.NoError(t, err)
	require.Len(t, back, 5)
	v, err := back[0].BigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v.Int64())
	v, err = back[1].BigInt()
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(huge))

	c, err := back[2].RefCell()
	require.NoError(t, err)
	want, err := cell.Hash()
	require.NoError(t, err)
	got, err := c.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, StackNull, back[3].Kind)

	a, err := back[4].Address()
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, owner, *a)
}

func TestNoneAddressValue(t *testing.T) {
	a, err := NoneAddressValue().Address()
	require.NoError(t, err)
	assert.Nil(t, a)
}

type stubExecutor struct {
	code  uint32
	stack tlb.VmStack
	err   error
}

func (s stubExecutor) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	return s.code, s.stack, s.err
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	account := ton.AccountID{Workchain: 0, Address: ton.Bits256{1}}
	owner := ton.AccountID{Workchain: 0, Address: ton.Bits256{2}}
	reply, err := Stack{AddressValue(owner)}.VmStack()
	require.NoError(t, err)
	getWalletAddress := func(ctx context.Context, exec abi.Executor) (string, any, error) {
		return abi.GetWalletAddress(ctx, exec, account, owner.ToMsgAddress())
	}
	transport := errors.New("connection reset")

	tests := []struct {
		name    string
		exec    stubExecutor
		wantErr error
		exit    int
	}{
		{name: "ok", exec: stubExecutor{stack: reply}},
		{name: "transport", exec: stubExecutor{err: transport}, wantErr: transport},
		{name: "exit code", exec: stubExecutor{code: 9}, exit: 9},
		{name: "bad reply", exec: stubExecutor{stack: tlb.VmStack{{SumType: "VmStkNull"}}}, wantErr: ErrEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Query[abi.GetWalletAddressResult](ctx, tt.exec, getWalletAddress)
			switch {
			case tt.exit != 0:
				var execErr *ContractExecutionError
				require.True(t, errors.As(err, &execErr))
				assert.Equal(t, tt.exit, execErr.Code)
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				got, err := ton.AccountIDFromTlb(res.JettonWalletAddress)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, owner, *got)
			}
		})
	}
}
