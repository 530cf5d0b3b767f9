package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomail/velo/backend/internal/models"
)

// createTestAccount inserts an account and returns its id.
func createTestAccount(t *testing.T, pool *pgxpool.Pool, email string) string {
	t.Helper()

	account := &models.Account{
		Email:                 email,
		IMAPHost:              "imap.example.com",
		IMAPPort:              993,
		IMAPSecurity:          "tls",
		IMAPUsername:          email,
		EncryptedIMAPPassword: []byte("encrypted"),
	}
	if err := SaveAccount(context.Background(), pool, account); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	return account.ID
}

// createTestThread inserts a bare thread row.
func createTestThread(t *testing.T, pool *pgxpool.Pool, accountID, threadID string) {
	t.Helper()

	if err := UpsertThread(context.Background(), pool, &models.Thread{
		ID:        threadID,
		AccountID: accountID,
		Subject:   "Subject " + threadID,
	}); err != nil {
		t.Fatalf("UpsertThread failed: %v", err)
	}
}

// newTestMessage returns a message in INBOX with the given local id and thread.
func newTestMessage(accountID, id, threadID string, date int64) *models.ParsedMessage {
	return &models.ParsedMessage{
		ID:              id,
		AccountID:       accountID,
		ThreadID:        threadID,
		FromAddress:     "sender@example.com",
		ToAddresses:     []string{"me@example.com"},
		Subject:         "Subject " + id,
		Snippet:         "Snippet " + id,
		Date:            date,
		LabelIDs:        []string{"INBOX"},
		MessageIDHeader: "<" + id + "@example.com>",
		ThreadHeaders:   []string{id + "@example.com"},
		IMAPUID:         uint32(date),
		IMAPFolder:      "INBOX",
	}
}
