package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/velomail/velo/backend/internal/models"
)

// ErrFolderNotFound is returned when no label is backed by a folder with the requested role.
var ErrFolderNotFound = errors.New("folder not found")

// UpsertLabels inserts or updates labels keyed by (account, id). Counters are left untouched.
func UpsertLabels(ctx context.Context, q Querier, labels []models.Label) error {
	if len(labels) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, label := range labels {
		batch.Queue(`
			INSERT INTO labels (account_id, id, name, type, imap_folder_path, imap_special_use)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
			ON CONFLICT (account_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				imap_folder_path = COALESCE(EXCLUDED.imap_folder_path, labels.imap_folder_path),
				imap_special_use = COALESCE(EXCLUDED.imap_special_use, labels.imap_special_use)
		`, label.AccountID, label.ID, label.Name, string(label.Type), label.ImapFolderPath, label.ImapSpecialUse)
	}

	if err := sendBatch(ctx, q, batch); err != nil {
		return fmt.Errorf("failed to upsert labels: %w", err)
	}

	return nil
}

// ListLabels returns all labels of an account, system labels first.
func ListLabels(ctx context.Context, q Querier, accountID string) ([]*models.Label, error) {
	rows, err := q.Query(ctx, `
		SELECT
			account_id::text,
			id,
			name,
			type,
			COALESCE(imap_folder_path, ''),
			COALESCE(imap_special_use, ''),
			thread_count,
			unread_count
		FROM labels
		WHERE account_id = $1
		ORDER BY type, name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	defer rows.Close()

	var labels []*models.Label
	for rows.Next() {
		var label models.Label
		var labelType string
		if err := rows.Scan(
			&label.AccountID,
			&label.ID,
			&label.Name,
			&labelType,
			&label.ImapFolderPath,
			&label.ImapSpecialUse,
			&label.ThreadCount,
			&label.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		label.Type = models.LabelType(labelType)
		labels = append(labels, &label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}

	return labels, nil
}

// specialUseFallbackLabels maps a special-use tag to the label id a name-matched folder gets.
var specialUseFallbackLabels = map[string]string{
	`\Inbox`:     models.LabelInbox,
	`\Sent`:      models.LabelSent,
	`\Drafts`:    models.LabelDraft,
	`\Trash`:     models.LabelTrash,
	`\Junk`:      models.LabelSpam,
	`\Archive`:   models.LabelArchive,
	`\Flagged`:   models.LabelStarred,
	`\All`:       models.LabelAllMail,
	`\Important`: models.LabelImportant,
}

// FindSpecialFolder returns the remote folder path backing the given special-use role, looking
// at the stored special-use tag first and the well-known label id second.
func FindSpecialFolder(ctx context.Context, q Querier, accountID, specialUse string) (string, error) {
	var path string
	err := q.QueryRow(ctx, `
		SELECT imap_folder_path
		FROM labels
		WHERE account_id = $1 AND imap_special_use = $2 AND imap_folder_path IS NOT NULL
		ORDER BY id
		LIMIT 1
	`, accountID, specialUse).Scan(&path)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to find special folder: %w", err)
	}

	labelID, ok := specialUseFallbackLabels[specialUse]
	if !ok {
		return "", ErrFolderNotFound
	}

	err = q.QueryRow(ctx, `
		SELECT imap_folder_path
		FROM labels
		WHERE account_id = $1 AND id = $2 AND imap_folder_path IS NOT NULL
	`, accountID, labelID).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrFolderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find special folder: %w", err)
	}

	return path, nil
}

// RefreshLabelCounts recomputes the materialized thread and unread counts of every label of
// an account.
func RefreshLabelCounts(ctx context.Context, q Querier, accountID string) error {
	_, err := q.Exec(ctx, `
		UPDATE labels l
		SET thread_count = (
				SELECT COUNT(*)
				FROM thread_labels tl
				WHERE tl.account_id = l.account_id AND tl.label_id = l.id
			),
			unread_count = (
				SELECT COUNT(*)
				FROM thread_labels tl
				JOIN threads t ON t.account_id = tl.account_id AND t.id = tl.thread_id
				WHERE tl.account_id = l.account_id AND tl.label_id = l.id AND NOT t.is_read
			)
		WHERE l.account_id = $1
	`, accountID)

	if err != nil {
		return fmt.Errorf("failed to refresh label counts: %w", err)
	}

	return nil
}

// sendBatch sends a batch and drains every result so errors surface.
func sendBatch(ctx context.Context, q Querier, batch *pgx.Batch) error {
	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
