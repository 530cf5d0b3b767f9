package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomail/velo/backend/internal/models"
)

// ErrAccountNotFound is returned when an account cannot be found.
var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `
	id::text,
	email,
	imap_host,
	imap_port,
	imap_security,
	imap_username,
	encrypted_imap_password,
	COALESCE(sync_token, ''),
	created_at,
	updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.IMAPHost,
		&account.IMAPPort,
		&account.IMAPSecurity,
		&account.IMAPUsername,
		&account.EncryptedIMAPPassword,
		&account.SyncToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccount returns the account with the given id.
func GetAccount(ctx context.Context, q Querier, accountID string) (*models.Account, error) {
	return scanAccount(q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id::text = $1
	`, accountID))
}

// GetAccountByEmail returns the account registered for the given address.
func GetAccountByEmail(ctx context.Context, q Querier, email string) (*models.Account, error) {
	return scanAccount(q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email))
}

// GetOrCreateAccount returns the account id for the given email, creating an empty account
// if none exists.
func GetOrCreateAccount(ctx context.Context, pool *pgxpool.Pool, email string) (string, error) {
	var accountID string

	err := pool.QueryRow(ctx, `
		INSERT INTO accounts (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id::text
	`, email).Scan(&accountID)

	if err != nil {
		return "", fmt.Errorf("failed to get or create account: %w", err)
	}

	return accountID, nil
}

// SaveAccount saves the connection settings of an account, keyed by email, and sets the
// account's ID.
func SaveAccount(ctx context.Context, pool *pgxpool.Pool, account *models.Account) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO accounts (
			email,
			imap_host,
			imap_port,
			imap_security,
			imap_username,
			encrypted_imap_password
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			imap_host = EXCLUDED.imap_host,
			imap_port = EXCLUDED.imap_port,
			imap_security = EXCLUDED.imap_security,
			imap_username = EXCLUDED.imap_username,
			encrypted_imap_password = COALESCE(EXCLUDED.encrypted_imap_password, accounts.encrypted_imap_password),
			updated_at = now()
		RETURNING id::text
	`,
		account.Email,
		account.IMAPHost,
		account.IMAPPort,
		account.IMAPSecurity,
		account.IMAPUsername,
		account.EncryptedIMAPPassword,
	).Scan(&account.ID)

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// ListAccountIDs returns the ids of every account with IMAP settings.
func ListAccountIDs(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT id::text
		FROM accounts
		WHERE imap_host <> ''
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan account ids: %w", err)
	}

	return ids, nil
}

// UpdateAccountSyncState records the token of the last completed sync.
func UpdateAccountSyncState(ctx context.Context, q Querier, accountID, token string) error {
	_, err := q.Exec(ctx, `
		UPDATE accounts
		SET sync_token = $2, updated_at = now()
		WHERE id::text = $1
	`, accountID, token)

	if err != nil {
		return fmt.Errorf("failed to update account sync state: %w", err)
	}

	return nil
}
