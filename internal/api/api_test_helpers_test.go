package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomail/velo/backend/internal/auth"
	"github.com/velomail/velo/backend/internal/crypto"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/models"
)

// setupTestAccount saves IMAP settings for email and returns the account id.
func setupTestAccount(t *testing.T, pool *pgxpool.Pool, encryptor *crypto.Encryptor, email string) string {
	t.Helper()

	sealed, err := encryptor.EncryptPassword(email, "imap_pass")
	if err != nil {
		t.Fatalf("Failed to encrypt password: %v", err)
	}

	account := &models.Account{
		Email:                 email,
		IMAPHost:              "imap.test.com",
		IMAPPort:              993,
		IMAPSecurity:          "tls",
		IMAPUsername:          "user",
		EncryptedIMAPPassword: sealed,
	}
	if err := db.SaveAccount(context.Background(), pool, account); err != nil {
		t.Fatalf("Failed to save account: %v", err)
	}
	return account.ID
}

// createRequestWithAccount creates a request authenticated as email.
func createRequestWithAccount(method, url, email string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	return req.WithContext(auth.WithAccountEmail(req.Context(), email))
}

// seedThread stores a thread with one message and the given labels.
func seedThread(t *testing.T, pool *pgxpool.Pool, accountID, threadID string, date int64, labelIDs ...string) {
	t.Helper()
	ctx := context.Background()

	if err := db.UpsertThread(ctx, pool, &models.Thread{
		ID:            threadID,
		AccountID:     accountID,
		Subject:       "Subject " + threadID,
		LastMessageAt: date,
		MessageCount:  1,
	}); err != nil {
		t.Fatalf("Failed to save thread: %v", err)
	}
	if err := db.SetThreadLabels(ctx, pool, accountID, threadID, labelIDs); err != nil {
		t.Fatalf("Failed to save thread labels: %v", err)
	}
	if err := db.UpsertMessage(ctx, pool, &models.ParsedMessage{
		ID:          "msg-" + threadID,
		AccountID:   accountID,
		ThreadID:    threadID,
		FromAddress: "sender@example.com",
		Subject:     "Subject " + threadID,
		Date:        date,
		LabelIDs:    labelIDs,
		IMAPFolder:  "INBOX",
		IMAPUID:     uint32(date % 100000),
	}); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}
}
