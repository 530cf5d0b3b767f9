package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/velomail/velo/backend/internal/models"
	"github.com/velomail/velo/backend/internal/testutil"
)

func TestStoreInTx(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	accountID := createTestAccount(t, pool, "tx@example.com")

	t.Run("commits every write", func(t *testing.T) {
		err := store.InTx(ctx, func(w ThreadWriter) error {
			if err := w.UpsertThread(ctx, &models.Thread{ID: "thread-1", AccountID: accountID, Subject: "Hello"}); err != nil {
				return err
			}
			if err := w.SetThreadLabels(ctx, accountID, "thread-1", []string{"INBOX"}); err != nil {
				return err
			}
			if err := w.UpsertMessage(ctx, newTestMessage(accountID, "m1", "thread-1", 1)); err != nil {
				return err
			}
			return w.UpsertAttachment(ctx, &models.Attachment{ID: "m1_2", MessageID: "m1", AccountID: accountID, PartID: "2"})
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}

		if _, err := GetMessage(ctx, pool, accountID, "m1"); err != nil {
			t.Errorf("Expected message to be committed, got %v", err)
		}
		if _, err := GetAttachment(ctx, pool, accountID, "m1_2"); err != nil {
			t.Errorf("Expected attachment to be committed, got %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.InTx(ctx, func(w ThreadWriter) error {
			if err := w.UpsertThread(ctx, &models.Thread{ID: "thread-2", AccountID: accountID}); err != nil {
				return err
			}
			if err := w.UpsertMessage(ctx, newTestMessage(accountID, "m2", "thread-2", 2)); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected boom, got %v", err)
		}

		if _, err := GetThread(ctx, pool, accountID, "thread-2"); !errors.Is(err, ErrThreadNotFound) {
			t.Errorf("Expected thread-2 to be rolled back, got %v", err)
		}
		if _, err := GetMessage(ctx, pool, accountID, "m2"); !errors.Is(err, ErrMessageNotFound) {
			t.Errorf("Expected m2 to be rolled back, got %v", err)
		}
	})

	t.Run("merge and summaries inside a transaction", func(t *testing.T) {
		createTestThread(t, pool, accountID, "thread-3")
		if err := UpsertMessage(ctx, pool, newTestMessage(accountID, "m3", "thread-3", 3)); err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}

		var summaries []models.MessageSummary
		err := store.InTx(ctx, func(w ThreadWriter) error {
			if err := w.InsertThreadIfMissing(ctx, &models.Thread{ID: "thread-1", AccountID: accountID, Subject: "Ignored"}); err != nil {
				return err
			}
			if err := w.MergeThreads(ctx, accountID, "thread-1", []string{"thread-3"}); err != nil {
				return err
			}
			var err error
			summaries, err = w.GetThreadMemberSummaries(ctx, accountID, "thread-1", nil)
			return err
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}
		if len(summaries) != 2 {
			t.Errorf("Expected 2 members after merge, got %d", len(summaries))
		}

		thread, err := GetThread(ctx, pool, accountID, "thread-1")
		if err != nil {
			t.Fatalf("GetThread failed: %v", err)
		}
		if thread.Subject != "Hello" {
			t.Errorf("Expected subject Hello to survive, got %s", thread.Subject)
		}
	})
}

func TestPendingOperations(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	accountID := createTestAccount(t, pool, "pending@example.com")

	ops, err := store.GetPendingOpsForResource(ctx, accountID, "thread-1")
	if err != nil {
		t.Fatalf("GetPendingOpsForResource failed: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("Expected no pending ops, got %d", len(ops))
	}

	opID, err := CreatePendingOperation(ctx, pool, accountID, "thread-1", "star", map[string]bool{"starred": true})
	if err != nil {
		t.Fatalf("CreatePendingOperation failed: %v", err)
	}

	ops, err = store.GetPendingOpsForResource(ctx, accountID, "thread-1")
	if err != nil {
		t.Fatalf("GetPendingOpsForResource failed: %v", err)
	}
	if len(ops) != 1 || ops[0].OperationType != "star" || ops[0].ID != opID {
		t.Errorf("Expected the star operation, got %+v", ops)
	}

	if err := DeletePendingOperation(ctx, pool, opID); err != nil {
		t.Fatalf("DeletePendingOperation failed: %v", err)
	}
	ops, err = store.GetPendingOpsForResource(ctx, accountID, "thread-1")
	if err != nil {
		t.Fatalf("GetPendingOpsForResource failed: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("Expected no pending ops after delete, got %d", len(ops))
	}
}

func TestUncategorizedInboxThreads(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	accountID := createTestAccount(t, pool, "categories@example.com")

	for i, labels := range [][]string{{"INBOX"}, {"INBOX", "CATEGORY_SOCIAL"}, {"SENT"}} {
		id := fmt.Sprintf("thread-%d", i+1)
		if err := UpsertThread(ctx, pool, &models.Thread{ID: id, AccountID: accountID, LastMessageAt: int64(i)}); err != nil {
			t.Fatalf("UpsertThread failed: %v", err)
		}
		if err := SetThreadLabels(ctx, pool, accountID, id, labels); err != nil {
			t.Fatalf("SetThreadLabels failed: %v", err)
		}
	}

	older := newTestMessage(accountID, "m1", "thread-1", 1)
	older.FromAddress = "friend@example.com"
	newer := newTestMessage(accountID, "m2", "thread-1", 2)
	newer.FromAddress = "news@substack.com"
	newer.ListUnsubscribe = "<https://substack.com/unsub>"
	for _, msg := range []*models.ParsedMessage{older, newer} {
		if err := UpsertMessage(ctx, pool, msg); err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}
	}

	threads, err := store.GetUncategorizedInboxThreads(ctx, accountID, 10)
	if err != nil {
		t.Fatalf("GetUncategorizedInboxThreads failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("Expected 2 inbox threads, got %d", len(threads))
	}
	if threads[0].ThreadID != "thread-2" {
		t.Errorf("Expected newest thread first, got %s", threads[0].ThreadID)
	}
	if fmt.Sprint(threads[0].LabelIDs) != "[CATEGORY_SOCIAL INBOX]" {
		t.Errorf("Expected labels of thread-2, got %v", threads[0].LabelIDs)
	}
	if threads[1].FromAddress != "news@substack.com" || threads[1].ListUnsubscribe == "" {
		t.Errorf("Expected latest message fields, got %+v", threads[1])
	}

	if err := store.SetThreadCategory(ctx, accountID, "thread-1", "Newsletters"); err != nil {
		t.Fatalf("SetThreadCategory failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO thread_categories (account_id, thread_id, category, is_manual)
		VALUES ($1, 'thread-2', 'Primary', TRUE)
	`, accountID); err != nil {
		t.Fatalf("failed to insert manual category: %v", err)
	}

	// Manual choices win over rules.
	if err := store.SetThreadCategory(ctx, accountID, "thread-2", "Social"); err != nil {
		t.Fatalf("SetThreadCategory failed: %v", err)
	}
	thread, err := GetThread(ctx, pool, accountID, "thread-2")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if thread.Category != "Primary" {
		t.Errorf("Expected manual category Primary, got %s", thread.Category)
	}

	threads, err = store.GetUncategorizedInboxThreads(ctx, accountID, 10)
	if err != nil {
		t.Fatalf("GetUncategorizedInboxThreads failed: %v", err)
	}
	if len(threads) != 0 {
		t.Errorf("Expected no uncategorized threads left, got %d", len(threads))
	}
}
