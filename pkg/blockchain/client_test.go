package blockchain

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/utils"
	"github.com/txsociety/ton-agent/pkg/core"
)

func TestMethodID(t *testing.T) {
	assert.Equal(t, 85143, MethodID("seqno"))
	assert.Equal(t, 103289, MethodID("get_wallet_address"))
	for _, name := range []string{"get_sale_data", "get_jetton_data", "get_nft_data", "get_pool_address"} {
		assert.Equal(t, utils.MethodIdFromName(name), MethodID(name), name)
	}
}

func TestSeqnoValue(t *testing.T) {
	tests := []struct {
		name    string
		value   core.StackValue
		want    uint32
		wantErr bool
	}{
		{name: "zero", value: core.Int64Value(0)},
		{name: "max", value: core.Int64Value(math.MaxUint32), want: math.MaxUint32},
		{name: "overflow", value: core.Int64Value(math.MaxUint32 + 1), wantErr: true},
		{name: "huge", value: core.IntValue(new(big.Int).Lsh(big.NewInt(1), 70)), wantErr: true},
		{name: "negative", value: core.Int64Value(-1), wantErr: true},
		{name: "not an int", value: core.NullValue(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := seqnoValue(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := seqnoValue(core.Int64Value(math.MaxUint32 + 1))
	assert.ErrorIs(t, err, core.ErrMethodUnavailable)
}

func TestBehindCheckpoint(t *testing.T) {
	checkpoint := &ton.BlockIDExt{BlockID: ton.BlockID{Workchain: -1, Shard: 0x8000000000000000, Seqno: 100}}
	block := func(seqno uint32) ton.BlockIDExt {
		return ton.BlockIDExt{BlockID: ton.BlockID{Workchain: -1, Shard: 0x8000000000000000, Seqno: seqno}}
	}
	assert.NoError(t, behindCheckpoint(nil, block(1)))
	assert.NoError(t, behindCheckpoint(checkpoint, block(100)))
	assert.NoError(t, behindCheckpoint(checkpoint, block(101)))
	err := behindCheckpoint(checkpoint, block(99))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than checkpoint 100")
}
