package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/tonkeeper/tongo/ton"
)

const masterchainShard = 0x8000000000000000

func checkMasterchain(block ton.BlockIDExt) error {
	if block.Workchain != -1 || block.Shard != masterchainShard {
		return fmt.Errorf("checkpoint must be a masterchain block, got %v:%x", block.Workchain, block.Shard)
	}
	return nil
}

// MasterchainCheckpoint returns the newest masterchain block seen by the agent, or nil
// before the first one is saved.
func (c *Connection) MasterchainCheckpoint(ctx context.Context) (*ton.BlockIDExt, error) {
	block := ton.BlockIDExt{BlockID: ton.BlockID{Workchain: -1, Shard: masterchainShard}}
	err := c.postgres.QueryRow(ctx, `
		SELECT seqno, root_hash, file_hash
		FROM blockchain.masterchain_checkpoint
		WHERE id = 1`).Scan(&block.Seqno, &block.RootHash, &block.FileHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read masterchain checkpoint: %w", err)
	}
	return &block, nil
}

// SaveMasterchainCheckpoint moves the checkpoint forward. Older blocks are ignored.
func (c *Connection) SaveMasterchainCheckpoint(ctx context.Context, block ton.BlockIDExt) error {
	if err := checkMasterchain(block); err != nil {
		return err
	}
	tag, err := c.postgres.Exec(ctx, `
		INSERT INTO blockchain.masterchain_checkpoint (id, seqno, root_hash, file_hash, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET seqno = EXCLUDED.seqno, root_hash = EXCLUDED.root_hash, file_hash = EXCLUDED.file_hash, updated_at = now()
		WHERE masterchain_checkpoint.seqno < EXCLUDED.seqno`,
		block.Seqno, block.RootHash, block.FileHash)
	if err != nil {
		return fmt.Errorf("save masterchain checkpoint %d: %w", block.Seqno, err)
	}
	if tag.RowsAffected() > 0 {
		slog.Debug("masterchain checkpoint saved", "mc_seqno", block.Seqno)
	}
	return nil
}
