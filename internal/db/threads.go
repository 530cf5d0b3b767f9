package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/velomail/velo/backend/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// UpsertThread writes the thread row, replacing every aggregate column.
func UpsertThread(ctx context.Context, q Querier, thread *models.Thread) error {
	_, err := q.Exec(ctx, `
		INSERT INTO threads (
			account_id,
			id,
			subject,
			snippet,
			last_message_at,
			message_count,
			is_read,
			is_starred,
			has_attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, id) DO UPDATE SET
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			last_message_at = EXCLUDED.last_message_at,
			message_count = EXCLUDED.message_count,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			has_attachments = EXCLUDED.has_attachments,
			updated_at = now()
	`,
		thread.AccountID,
		thread.ID,
		thread.Subject,
		thread.Snippet,
		thread.LastMessageAt,
		thread.MessageCount,
		thread.IsRead,
		thread.IsStarred,
		thread.HasAttachments,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}

	return nil
}

// InsertThreadIfMissing creates the thread row only when it does not exist yet. Existing
// metadata is never touched.
func InsertThreadIfMissing(ctx context.Context, q Querier, thread *models.Thread) error {
	_, err := q.Exec(ctx, `
		INSERT INTO threads (
			account_id,
			id,
			subject,
			snippet,
			last_message_at,
			message_count,
			is_read,
			is_starred,
			has_attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, id) DO NOTHING
	`,
		thread.AccountID,
		thread.ID,
		thread.Subject,
		thread.Snippet,
		thread.LastMessageAt,
		thread.MessageCount,
		thread.IsRead,
		thread.IsStarred,
		thread.HasAttachments,
	)

	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}

	return nil
}

// SetThreadLabels replaces the label set of a thread.
func SetThreadLabels(ctx context.Context, q Querier, accountID, threadID string, labelIDs []string) error {
	if _, err := q.Exec(ctx, `
		DELETE FROM thread_labels
		WHERE account_id = $1 AND thread_id = $2
	`, accountID, threadID); err != nil {
		return fmt.Errorf("failed to clear thread labels: %w", err)
	}

	if len(labelIDs) == 0 {
		return nil
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO thread_labels (account_id, thread_id, label_id)
		SELECT $1, $2, unnest($3::text[])
		ON CONFLICT DO NOTHING
	`, accountID, threadID, labelIDs); err != nil {
		return fmt.Errorf("failed to set thread labels: %w", err)
	}

	return nil
}

// MergeThreads moves every message of the losing threads into winner and deletes the losing
// thread rows. Labels and categories of the losers go with them.
func MergeThreads(ctx context.Context, q Querier, accountID, winner string, losers []string) error {
	if len(losers) == 0 {
		return nil
	}

	if _, err := q.Exec(ctx, `
		UPDATE messages
		SET thread_id = $2
		WHERE account_id = $1 AND thread_id = ANY($3::text[])
	`, accountID, winner, losers); err != nil {
		return fmt.Errorf("failed to move messages between threads: %w", err)
	}

	if _, err := q.Exec(ctx, `
		DELETE FROM threads
		WHERE account_id = $1 AND id = ANY($3::text[]) AND id <> $2
	`, accountID, winner, losers); err != nil {
		return fmt.Errorf("failed to delete merged threads: %w", err)
	}

	return nil
}

const threadSelect = `
	SELECT
		t.account_id::text,
		t.id,
		t.subject,
		t.snippet,
		t.last_message_at,
		t.message_count,
		t.is_read,
		t.is_starred,
		t.has_attachments,
		COALESCE((
			SELECT array_agg(tl.label_id ORDER BY tl.label_id)
			FROM thread_labels tl
			WHERE tl.account_id = t.account_id AND tl.thread_id = t.id
		), '{}') AS label_ids,
		COALESCE(tc.category, ''),
		COALESCE((
			SELECT m.from_address
			FROM messages m
			WHERE m.account_id = t.account_id AND m.thread_id = t.id
			ORDER BY m.date DESC
			LIMIT 1
		), '') AS from_address
	FROM threads t
	LEFT JOIN thread_categories tc ON tc.account_id = t.account_id AND tc.thread_id = t.id`

func scanThread(row pgx.Row) (*models.Thread, error) {
	var thread models.Thread
	err := row.Scan(
		&thread.AccountID,
		&thread.ID,
		&thread.Subject,
		&thread.Snippet,
		&thread.LastMessageAt,
		&thread.MessageCount,
		&thread.IsRead,
		&thread.IsStarred,
		&thread.HasAttachments,
		&thread.LabelIDs,
		&thread.Category,
		&thread.FromAddress,
	)
	return &thread, err
}

// GetThread returns a thread with its labels and category.
func GetThread(ctx context.Context, q Querier, accountID, threadID string) (*models.Thread, error) {
	thread, err := scanThread(q.QueryRow(ctx, threadSelect+`
		WHERE t.account_id = $1 AND t.id = $2
	`, accountID, threadID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return thread, nil
}

// ListThreadsByLabel returns a page of threads carrying the label, newest first.
func ListThreadsByLabel(ctx context.Context, q Querier, accountID, labelID string, limit, offset int) ([]*models.Thread, error) {
	rows, err := q.Query(ctx, threadSelect+`
		WHERE t.account_id = $1
		  AND EXISTS (
			SELECT 1 FROM thread_labels x
			WHERE x.account_id = t.account_id AND x.thread_id = t.id AND x.label_id = $2
		  )
		ORDER BY t.last_message_at DESC, t.id
		LIMIT $3 OFFSET $4
	`, accountID, labelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	threads := make([]*models.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return threads, nil
}

// CountThreadsByLabel returns the number of threads carrying the label.
func CountThreadsByLabel(ctx context.Context, q Querier, accountID, labelID string) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM thread_labels
		WHERE account_id = $1 AND label_id = $2
	`, accountID, labelID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}

	return count, nil
}

// GetThreadMemberSummaries returns the stored messages of a thread, oldest first, leaving out
// the ids in exclude.
func GetThreadMemberSummaries(ctx context.Context, q Querier, accountID, threadID string, exclude []string) ([]models.MessageSummary, error) {
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := q.Query(ctx, `
		SELECT
			id,
			subject,
			snippet,
			date,
			is_read,
			is_starred,
			has_attachments,
			label_ids,
			from_address,
			COALESCE(list_unsubscribe, '')
		FROM messages
		WHERE account_id = $1 AND thread_id = $2 AND NOT (id = ANY($3::text[]))
		ORDER BY date, id
	`, accountID, threadID, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread members: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, scanSummary)
	if err != nil {
		return nil, fmt.Errorf("failed to scan thread members: %w", err)
	}

	return summaries, nil
}

func scanSummary(row pgx.CollectableRow) (models.MessageSummary, error) {
	var s models.MessageSummary
	err := row.Scan(
		&s.ID,
		&s.Subject,
		&s.Snippet,
		&s.Date,
		&s.IsRead,
		&s.IsStarred,
		&s.HasAttachments,
		&s.LabelIDs,
		&s.FromAddress,
		&s.ListUnsubscribe,
	)
	return s, err
}
