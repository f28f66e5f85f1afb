package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

const operationColumns = `id, kind, wallet, seqno, msg_hash, valid_until, status, addresses, amounts, tx_hash, error, created_at, updated_at, confirmed_at`

func (c *Connection) SaveOperation(ctx context.Context, op core.Operation) error {
	addresses, amounts, err := marshalOperationMaps(op)
	if err != nil {
		return err
	}
	_, err = c.postgres.Exec(ctx, `
		INSERT INTO agent.operations (`+operationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		op.ID,
		op.Kind,
		op.Wallet.ToRaw(),
		op.Seqno,
		op.MsgHash,
		op.ValidUntil,
		op.Status,
		addresses,
		amounts,
		op.TxHash,
		op.Error,
		op.CreatedAt,
		op.UpdatedAt,
		op.ConfirmedAt,
	)
	return err
}

// UpdateOperation stores the new status and queues a notification once the operation is final.
func (c *Connection) UpdateOperation(ctx context.Context, op core.Operation) error {
	tx, err := c.postgres.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollbackDbTx(ctx, tx)
	tag, err := tx.Exec(ctx, `
		UPDATE agent.operations
		SET status = $1, tx_hash = $2, error = $3, updated_at = $4, confirmed_at = $5
		WHERE id = $6`,
		op.Status, op.TxHash, op.Error, op.UpdatedAt, op.ConfirmedAt, op.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	if op.Status.Final() {
		_, err = tx.Exec(ctx, `
			INSERT INTO agent.operation_notifications (id, status, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			op.ID, op.Status, op.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (c *Connection) GetOperation(ctx context.Context, id core.OperationID) (core.Operation, error) {
	row := c.postgres.QueryRow(ctx, `SELECT `+operationColumns+` FROM agent.operations WHERE id = $1`, id)
	op, err := scanOperation(row)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return core.Operation{}, core.ErrNotFound
	}
	return op, err
}

// GetOperations pages through the journal by id, which is time ordered.
func (c *Connection) GetOperations(ctx context.Context, after core.OperationID, limit int64) ([]core.Operation, error) {
	rows, err := c.postgres.Query(ctx, `
		SELECT `+operationColumns+`
		FROM agent.operations
		WHERE id > $1
		ORDER BY id
		LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, err
	}
	return collectOperations(rows)
}

// GetSubmittedOperations returns operations nobody has resolved yet, oldest first.
func (c *Connection) GetSubmittedOperations(ctx context.Context, limit int) ([]core.Operation, error) {
	rows, err := c.postgres.Query(ctx, `
		SELECT `+operationColumns+`
		FROM agent.operations
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`,
		core.SubmittedOperationStatus, limit)
	if err != nil {
		return nil, err
	}
	return collectOperations(rows)
}

func (c *Connection) GetOperationNotifications(ctx context.Context, limit int) ([]core.Operation, error) {
	rows, err := c.postgres.Query(ctx, `
		SELECT o.id, o.kind, o.wallet, o.seqno, o.msg_hash, o.valid_until, o.status, o.addresses, o.amounts,
		       o.tx_hash, o.error, o.created_at, o.updated_at, o.confirmed_at
		FROM agent.operation_notifications n
		JOIN agent.operations o ON o.id = n.id
		ORDER BY n.updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectOperations(rows)
}

func (c *Connection) DeleteOperationNotification(ctx context.Context, id core.OperationID) error {
	_, err := c.postgres.Exec(ctx, `
		DELETE FROM agent.operation_notifications
		WHERE id = $1`, id)
	return err
}

func (c *Connection) DeleteOldNotifications(ctx context.Context) error {
	_, err := c.postgres.Exec(ctx, `
		DELETE FROM agent.operation_notifications
		WHERE updated_at < $1`, time.Now().Add(-time.Hour*24*5))
	return err
}

func collectOperations(rows pgx.Rows) ([]core.Operation, error) {
	defer rows.Close()
	var res []core.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func scanOperation(row pgx.Row) (core.Operation, error) {
	var (
		op                 core.Operation
		wallet             string
		addresses, amounts []byte
	)
	err := row.Scan(
		&op.ID,
		&op.Kind,
		&wallet,
		&op.Seqno,
		&op.MsgHash,
		&op.ValidUntil,
		&op.Status,
		&addresses,
		&amounts,
		&op.TxHash,
		&op.Error,
		&op.CreatedAt,
		&op.UpdatedAt,
		&op.ConfirmedAt,
	)
	if err != nil {
		return core.Operation{}, err
	}
	op.Wallet, err = ton.ParseAccountID(wallet)
	if err != nil {
		return core.Operation{}, err
	}
	if err := unmarshalOperationMaps(&op, addresses, amounts); err != nil {
		return core.Operation{}, err
	}
	return op, nil
}

func marshalOperationMaps(op core.Operation) ([]byte, []byte, error) {
	addresses := make(map[string]string, len(op.Addresses))
	for k, v := range op.Addresses {
		addresses[k] = v.ToRaw()
	}
	amounts := make(map[string]string, len(op.Amounts))
	for k, v := range op.Amounts {
		if v != nil {
			amounts[k] = v.String()
		}
	}
	a, err := marshalJsonForDb(addresses)
	if err != nil {
		return nil, nil, err
	}
	b, err := marshalJsonForDb(amounts)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func unmarshalOperationMaps(op *core.Operation, addresses, amounts []byte) error {
	var raw map[string]string
	if len(addresses) > 0 {
		if err := json.NewDecoder(bytes.NewReader(addresses)).Decode(&raw); err != nil {
			return err
		}
		op.Addresses = make(map[string]ton.AccountID, len(raw))
		for k, v := range raw {
			a, err := ton.ParseAccountID(v)
			if err != nil {
				slog.Warn("invalid address in journal", "id", op.ID, "key", k, "error", err)
				continue
			}
			op.Addresses[k] = a
		}
	}
	raw = nil
	if len(amounts) > 0 {
		if err := json.NewDecoder(bytes.NewReader(amounts)).Decode(&raw); err != nil {
			return err
		}
		op.Amounts = make(map[string]*big.Int, len(raw))
		for k, v := range raw {
			n, ok := new(big.Int).SetString(v, 10)
			if !ok {
				slog.Warn("invalid amount in journal", "id", op.ID, "key", k, "value", v)
				continue
			}
			op.Amounts[k] = n
		}
	}
	return nil
}

func rollbackDbTx(ctx context.Context, tx pgx.Tx) {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("rollback db tx", "error", err)
	}
}

func marshalJsonForDb(x any) ([]byte, error) {
	if x == nil {
		return nil, nil
	}
	return json.Marshal(x)
}
