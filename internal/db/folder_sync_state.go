package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/velomail/velo/backend/internal/models"
)

// GetAllFolderSyncStates returns the cursor of every folder of an account, keyed by folder path.
func GetAllFolderSyncStates(ctx context.Context, q Querier, accountID string) (map[string]models.FolderSyncState, error) {
	rows, err := q.Query(ctx, `
		SELECT account_id::text, folder_path, uidvalidity, last_uid, modseq, last_sync_at
		FROM folder_sync_state
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get folder sync states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]models.FolderSyncState)
	for rows.Next() {
		state, err := scanFolderSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder sync state: %w", err)
		}
		states[state.FolderPath] = state
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folder sync states: %w", err)
	}

	return states, nil
}

// GetFolderSyncState returns the cursor of one folder, or nil if the folder was never synced.
func GetFolderSyncState(ctx context.Context, q Querier, accountID, folderPath string) (*models.FolderSyncState, error) {
	state, err := scanFolderSyncState(q.QueryRow(ctx, `
		SELECT account_id::text, folder_path, uidvalidity, last_uid, modseq, last_sync_at
		FROM folder_sync_state
		WHERE account_id = $1 AND folder_path = $2
	`, accountID, folderPath))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder sync state: %w", err)
	}

	return &state, nil
}

// UpsertFolderSyncState writes a folder cursor.
func UpsertFolderSyncState(ctx context.Context, q Querier, state models.FolderSyncState) error {
	var uidValidity *int64
	if state.UIDValidity != nil {
		v := int64(*state.UIDValidity)
		uidValidity = &v
	}
	var modSeq *int64
	if state.ModSeq != nil {
		v := int64(*state.ModSeq)
		modSeq = &v
	}

	_, err := q.Exec(ctx, `
		INSERT INTO folder_sync_state (account_id, folder_path, uidvalidity, last_uid, modseq, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, folder_path) DO UPDATE SET
			uidvalidity = EXCLUDED.uidvalidity,
			last_uid = EXCLUDED.last_uid,
			modseq = EXCLUDED.modseq,
			last_sync_at = EXCLUDED.last_sync_at
	`, state.AccountID, state.FolderPath, uidValidity, int64(state.LastUID), modSeq, state.LastSyncAt)

	if err != nil {
		return fmt.Errorf("failed to upsert folder sync state: %w", err)
	}

	return nil
}

func scanFolderSyncState(row pgx.Row) (models.FolderSyncState, error) {
	var state models.FolderSyncState
	var uidValidity, modSeq *int64
	var lastUID int64

	if err := row.Scan(
		&state.AccountID,
		&state.FolderPath,
		&uidValidity,
		&lastUID,
		&modSeq,
		&state.LastSyncAt,
	); err != nil {
		return state, err
	}

	state.LastUID = uint32(lastUID)
	if uidValidity != nil {
		v := uint32(*uidValidity)
		state.UIDValidity = &v
	}
	if modSeq != nil {
		v := uint64(*modSeq)
		state.ModSeq = &v
	}

	return state, nil
}
