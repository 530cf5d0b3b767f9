package syncer

import (
	"context"
	"time"

	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/imap"
	"github.com/velomail/velo/backend/internal/models"
)

// MailTransport is the inbound side of a remote mail store.
type MailTransport interface {
	ListFolders(ctx context.Context, cfg imap.ConnConfig) ([]models.RemoteFolder, error)
	GetFolderStatus(ctx context.Context, cfg imap.ConnConfig, folder string) (models.FolderStatus, error)
	SearchAllUIDs(ctx context.Context, cfg imap.ConnConfig, folder string, since time.Time) ([]uint32, error)
	FetchNewUIDs(ctx context.Context, cfg imap.ConnConfig, folder string, lastUID uint32) ([]uint32, error)
	FetchMessages(ctx context.Context, cfg imap.ConnConfig, folder string, uids []uint32) (*models.FetchResult, error)
}

// ThreadStore is what the persistence step needs: pending-operation lookups and a
// transaction per thread group.
type ThreadStore interface {
	GetPendingOpsForResource(ctx context.Context, accountID, resourceID string) ([]models.PendingOperation, error)
	InTx(ctx context.Context, fn func(w db.ThreadWriter) error) error
}

// Store is the local database as seen by a sync run.
type Store interface {
	ThreadStore
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	UpsertLabels(ctx context.Context, labels []models.Label) error
	GetAllFolderSyncStates(ctx context.Context, accountID string) (map[string]models.FolderSyncState, error)
	UpsertFolderSyncState(ctx context.Context, state models.FolderSyncState) error
	GetThreadIDsForHeaders(ctx context.Context, accountID string, headers []string) (map[string][]string, error)
	RefreshLabelCounts(ctx context.Context, accountID string) error
	UpdateAccountSyncState(ctx context.Context, accountID, token string) error
}

// ProgressFunc receives progress events of a sync run. It may be nil.
type ProgressFunc func(models.SyncProgress)
