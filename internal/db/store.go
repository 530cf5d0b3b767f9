package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomail/velo/backend/internal/models"
)

// ThreadWriter is the set of writes that make up one thread group. Implementations run them
// inside a single transaction so readers never see half a thread.
type ThreadWriter interface {
	GetThreadMemberSummaries(ctx context.Context, accountID, threadID string, exclude []string) ([]models.MessageSummary, error)
	MergeThreads(ctx context.Context, accountID, winner string, losers []string) error
	UpsertThread(ctx context.Context, thread *models.Thread) error
	InsertThreadIfMissing(ctx context.Context, thread *models.Thread) error
	SetThreadLabels(ctx context.Context, accountID, threadID string, labelIDs []string) error
	UpsertMessage(ctx context.Context, msg *models.ParsedMessage) error
	UpsertAttachment(ctx context.Context, att *models.Attachment) error
}

// Store binds the query functions of this package to a pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store that uses the given database pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return GetAccount(ctx, s.pool, accountID)
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	return ListAccountIDs(ctx, s.pool)
}

func (s *Store) UpsertLabels(ctx context.Context, labels []models.Label) error {
	return UpsertLabels(ctx, s.pool, labels)
}

func (s *Store) GetAllFolderSyncStates(ctx context.Context, accountID string) (map[string]models.FolderSyncState, error) {
	return GetAllFolderSyncStates(ctx, s.pool, accountID)
}

func (s *Store) UpsertFolderSyncState(ctx context.Context, state models.FolderSyncState) error {
	return UpsertFolderSyncState(ctx, s.pool, state)
}

func (s *Store) GetThreadIDsForHeaders(ctx context.Context, accountID string, headers []string) (map[string][]string, error) {
	return GetThreadIDsForHeaders(ctx, s.pool, accountID, headers)
}

func (s *Store) GetPendingOpsForResource(ctx context.Context, accountID, resourceID string) ([]models.PendingOperation, error) {
	return GetPendingOpsForResource(ctx, s.pool, accountID, resourceID)
}

func (s *Store) RefreshLabelCounts(ctx context.Context, accountID string) error {
	return RefreshLabelCounts(ctx, s.pool, accountID)
}

func (s *Store) UpdateAccountSyncState(ctx context.Context, accountID, token string) error {
	return UpdateAccountSyncState(ctx, s.pool, accountID, token)
}

func (s *Store) GetUncategorizedInboxThreads(ctx context.Context, accountID string, limit int) ([]UncategorizedThread, error) {
	return GetUncategorizedInboxThreads(ctx, s.pool, accountID, limit)
}

func (s *Store) SetThreadCategory(ctx context.Context, accountID, threadID, category string) error {
	return SetThreadCategory(ctx, s.pool, accountID, threadID, category)
}

func (s *Store) GetOldestCachedAttachments(ctx context.Context, limit int) ([]CachedAttachment, error) {
	return GetOldestCachedAttachments(ctx, s.pool, limit)
}

func (s *Store) GetCacheSize(ctx context.Context) (int64, error) {
	return GetCacheSize(ctx, s.pool)
}

func (s *Store) SetAttachmentCached(ctx context.Context, accountID, attachmentID, localPath string, size, cachedAt int64) error {
	return SetAttachmentCached(ctx, s.pool, accountID, attachmentID, localPath, size, cachedAt)
}

func (s *Store) ClearAttachmentCache(ctx context.Context, accountID, attachmentID string) error {
	return ClearAttachmentCache(ctx, s.pool, accountID, attachmentID)
}

// InTx runs fn with a ThreadWriter bound to one transaction.
func (s *Store) InTx(ctx context.Context, fn func(w ThreadWriter) error) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txWriter{tx: tx})
	})
}

type txWriter struct {
	tx pgx.Tx
}

func (w *txWriter) GetThreadMemberSummaries(ctx context.Context, accountID, threadID string, exclude []string) ([]models.MessageSummary, error) {
	return GetThreadMemberSummaries(ctx, w.tx, accountID, threadID, exclude)
}

func (w *txWriter) MergeThreads(ctx context.Context, accountID, winner string, losers []string) error {
	return MergeThreads(ctx, w.tx, accountID, winner, losers)
}

func (w *txWriter) UpsertThread(ctx context.Context, thread *models.Thread) error {
	return UpsertThread(ctx, w.tx, thread)
}

func (w *txWriter) InsertThreadIfMissing(ctx context.Context, thread *models.Thread) error {
	return InsertThreadIfMissing(ctx, w.tx, thread)
}

func (w *txWriter) SetThreadLabels(ctx context.Context, accountID, threadID string, labelIDs []string) error {
	return SetThreadLabels(ctx, w.tx, accountID, threadID, labelIDs)
}

func (w *txWriter) UpsertMessage(ctx context.Context, msg *models.ParsedMessage) error {
	return UpsertMessage(ctx, w.tx, msg)
}

func (w *txWriter) UpsertAttachment(ctx context.Context, att *models.Attachment) error {
	return UpsertAttachment(ctx, w.tx, att)
}
