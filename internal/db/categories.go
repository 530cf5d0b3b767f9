package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UncategorizedThread is an inbox thread without a category, with the inputs the rule
// engine needs.
type UncategorizedThread struct {
	ThreadID        string
	LabelIDs        []string
	FromAddress     string
	ListUnsubscribe string
}

// GetUncategorizedInboxThreads returns up to limit inbox threads that have no category yet,
// with the thread's labels and the sender and List-Unsubscribe of its latest message.
func GetUncategorizedInboxThreads(ctx context.Context, q Querier, accountID string, limit int) ([]UncategorizedThread, error) {
	rows, err := q.Query(ctx, `
		SELECT
			t.id,
			COALESCE((
				SELECT array_agg(l.label_id ORDER BY l.label_id)
				FROM thread_labels l
				WHERE l.account_id = t.account_id AND l.thread_id = t.id
			), '{}'),
			COALESCE(m.from_address, ''),
			COALESCE(m.list_unsubscribe, '')
		FROM threads t
		JOIN thread_labels tl ON tl.account_id = t.account_id AND tl.thread_id = t.id AND tl.label_id = 'INBOX'
		LEFT JOIN LATERAL (
			SELECT mm.from_address, mm.list_unsubscribe
			FROM messages mm
			WHERE mm.account_id = t.account_id AND mm.thread_id = t.id
			ORDER BY mm.date DESC, mm.id
			LIMIT 1
		) m ON TRUE
		LEFT JOIN thread_categories tc ON tc.account_id = t.account_id AND tc.thread_id = t.id
		WHERE t.account_id = $1 AND tc.thread_id IS NULL
		ORDER BY t.last_message_at DESC, t.id
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get uncategorized threads: %w", err)
	}

	threads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UncategorizedThread, error) {
		var u UncategorizedThread
		err := row.Scan(&u.ThreadID, &u.LabelIDs, &u.FromAddress, &u.ListUnsubscribe)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan uncategorized threads: %w", err)
	}

	return threads, nil
}

// SetThreadCategory stores a rule-based category. Manual categories are never overwritten.
func SetThreadCategory(ctx context.Context, q Querier, accountID, threadID, category string) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO thread_categories (account_id, thread_id, category, is_manual)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (account_id, thread_id) DO UPDATE SET
			category = EXCLUDED.category
		WHERE thread_categories.is_manual = FALSE
	`, accountID, threadID, category); err != nil {
		return fmt.Errorf("failed to set thread category: %w", err)
	}
	return nil
}
