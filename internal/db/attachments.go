package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/velomail/velo/backend/internal/models"
)

// ErrAttachmentNotFound is returned when a requested attachment cannot be found.
var ErrAttachmentNotFound = errors.New("attachment not found")

// UpsertAttachment writes an attachment row. Cache columns survive re-syncs.
func UpsertAttachment(ctx context.Context, q Querier, att *models.Attachment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO attachments (
			account_id,
			id,
			message_id,
			filename,
			mime_type,
			size,
			part_id,
			content_id,
			is_inline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (account_id, id) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			part_id = EXCLUDED.part_id,
			content_id = EXCLUDED.content_id,
			is_inline = EXCLUDED.is_inline
	`,
		att.AccountID,
		att.ID,
		att.MessageID,
		att.Filename,
		att.MimeType,
		att.Size,
		att.PartID,
		att.ContentID,
		att.IsInline,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert attachment %s: %w", att.ID, err)
	}

	return nil
}

// GetAttachment returns an attachment by id.
func GetAttachment(ctx context.Context, q Querier, accountID, attachmentID string) (*models.Attachment, error) {
	var att models.Attachment
	err := q.QueryRow(ctx, `
		SELECT
			account_id::text,
			id,
			message_id,
			filename,
			mime_type,
			size,
			part_id,
			COALESCE(content_id, ''),
			is_inline,
			COALESCE(local_path, '')
		FROM attachments
		WHERE account_id = $1 AND id = $2
	`, accountID, attachmentID).Scan(
		&att.AccountID,
		&att.ID,
		&att.MessageID,
		&att.Filename,
		&att.MimeType,
		&att.Size,
		&att.PartID,
		&att.ContentID,
		&att.IsInline,
		&att.LocalPath,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return &att, nil
}

// SetAttachmentCached records where an attachment's bytes were written.
func SetAttachmentCached(ctx context.Context, q Querier, accountID, attachmentID, localPath string, size, cachedAt int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE attachments
		SET local_path = $3, cache_size = $4, cached_at = $5
		WHERE account_id = $1 AND id = $2
	`, accountID, attachmentID, localPath, size, cachedAt)
	if err != nil {
		return fmt.Errorf("failed to mark attachment cached: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}

// ClearAttachmentCache forgets the cached copy of an attachment.
func ClearAttachmentCache(ctx context.Context, q Querier, accountID, attachmentID string) error {
	_, err := q.Exec(ctx, `
		UPDATE attachments
		SET local_path = NULL, cache_size = NULL, cached_at = NULL
		WHERE account_id = $1 AND id = $2
	`, accountID, attachmentID)
	if err != nil {
		return fmt.Errorf("failed to clear attachment cache: %w", err)
	}
	return nil
}

// CachedAttachment is a cached file eligible for eviction.
type CachedAttachment struct {
	AccountID string
	ID        string
	LocalPath string
	Size      int64
	CachedAt  int64
}

// GetOldestCachedAttachments returns up to limit cached attachments, oldest first.
func GetOldestCachedAttachments(ctx context.Context, q Querier, limit int) ([]CachedAttachment, error) {
	rows, err := q.Query(ctx, `
		SELECT account_id::text, id, local_path, COALESCE(cache_size, 0), cached_at
		FROM attachments
		WHERE cached_at IS NOT NULL AND local_path IS NOT NULL
		ORDER BY cached_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached attachments: %w", err)
	}

	cached, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CachedAttachment, error) {
		var c CachedAttachment
		err := row.Scan(&c.AccountID, &c.ID, &c.LocalPath, &c.Size, &c.CachedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cached attachments: %w", err)
	}

	return cached, nil
}

// GetCacheSize returns the total bytes of cached attachments.
func GetCacheSize(ctx context.Context, q Querier) (int64, error) {
	var size int64
	if err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(cache_size), 0)::bigint
		FROM attachments
		WHERE cached_at IS NOT NULL
	`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to get cache size: %w", err)
	}
	return size, nil
}
