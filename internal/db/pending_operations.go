package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/velomail/velo/backend/internal/models"
)

// GetPendingOpsForResource returns the unsynced local operations recorded against a resource.
func GetPendingOpsForResource(ctx context.Context, q Querier, accountID, resourceID string) ([]models.PendingOperation, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, account_id::text, resource_id, operation_type, created_at
		FROM pending_operations
		WHERE account_id = $1 AND resource_id = $2
		ORDER BY created_at, id
	`, accountID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending operations: %w", err)
	}

	ops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PendingOperation, error) {
		var op models.PendingOperation
		err := row.Scan(&op.ID, &op.AccountID, &op.ResourceID, &op.OperationType, &op.CreatedAt)
		return op, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending operations: %w", err)
	}

	return ops, nil
}

// CreatePendingOperation records a local mutation that has not reached the server yet.
func CreatePendingOperation(ctx context.Context, q Querier, accountID, resourceID, operationType string, params any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode operation params: %w", err)
	}

	var id string
	if err := q.QueryRow(ctx, `
		INSERT INTO pending_operations (account_id, resource_id, operation_type, params)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text
	`, accountID, resourceID, operationType, encoded).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to create pending operation: %w", err)
	}

	return id, nil
}

// DeletePendingOperation removes an operation once it has been applied remotely.
func DeletePendingOperation(ctx context.Context, q Querier, operationID string) error {
	if _, err := q.Exec(ctx, `
		DELETE FROM pending_operations WHERE id::text = $1
	`, operationID); err != nil {
		return fmt.Errorf("failed to delete pending operation: %w", err)
	}
	return nil
}
