package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tonkeeper/tongo/ton"
)

func TestCheckMasterchain(t *testing.T) {
	for _, tt := range []struct {
		name    string
		block   ton.BlockID
		wantErr bool
	}{
		{"masterchain", ton.BlockID{Workchain: -1, Shard: masterchainShard, Seqno: 7}, false},
		{"basechain", ton.BlockID{Workchain: 0, Shard: masterchainShard, Seqno: 7}, true},
		{"split shard", ton.BlockID{Workchain: -1, Shard: 0x4000000000000000, Seqno: 7}, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := checkMasterchain(ton.BlockIDExt{BlockID: tt.block})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSaveCheckpointRejectsShardBlocks(t *testing.T) {
	// the check runs before the pool is touched
	c := &Connection{}
	err := c.SaveMasterchainCheckpoint(context.Background(), ton.BlockIDExt{BlockID: ton.BlockID{Workchain: 0, Shard: masterchainShard}})
	assert.ErrorContains(t, err, "masterchain")
}
