package categorize

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
)

// DefaultBatchSize is the number of threads categorized per query.
const DefaultBatchSize = 50

// Store is the subset of the database used by Backfill.
type Store interface {
	GetUncategorizedInboxThreads(ctx context.Context, accountID string, limit int) ([]db.UncategorizedThread, error)
	SetThreadCategory(ctx context.Context, accountID, threadID, category string) error
}

// Backfill categorizes every inbox thread of the account that has no category yet and returns
// how many threads it categorized. It stops after the first batch shorter than batchSize.
func Backfill(ctx context.Context, store Store, accountID string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := store.GetUncategorizedInboxThreads(ctx, accountID, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to load uncategorized threads: %w", err)
		}

		for _, thread := range batch {
			category := CategorizeByRules(Input{
				LabelIDs:        thread.LabelIDs,
				FromAddress:     thread.FromAddress,
				ListUnsubscribe: thread.ListUnsubscribe,
			})
			if err := store.SetThreadCategory(ctx, accountID, thread.ThreadID, string(category)); err != nil {
				return total, fmt.Errorf("failed to categorize thread %s: %w", thread.ThreadID, err)
			}
			total++
		}

		if len(batch) < batchSize {
			break
		}
	}

	if total > 0 {
		log.Debug().Str("account_id", accountID).Int("threads", total).Msg("categorized inbox threads")
	}
	return total, nil
}

// AfterSync returns a hook that backfills categories for an account once a sync stored
// messages. Failures are logged.
func AfterSync(store Store) func(ctx context.Context, accountID string, stored int) {
	return func(ctx context.Context, accountID string, _ int) {
		if _, err := Backfill(ctx, store, accountID, DefaultBatchSize); err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Msg("category backfill failed")
		}
	}
}
