// Package syncer mirrors remote IMAP folders into the local store: it maps folders to labels,
// fetches messages in batches, threads them across folders, persists the result and keeps a
// cursor per folder so later runs only fetch what is new.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/folders"
	"github.com/velomail/velo/backend/internal/imap"
	"github.com/velomail/velo/backend/internal/models"
	"github.com/velomail/velo/backend/internal/threading"
	"github.com/velomail/velo/backend/internal/translate"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of messages fetched per round-trip.
	DefaultBatchSize = 50
	// DefaultDaysBack limits an initial sync to messages newer than this many days.
	DefaultDaysBack = 365
)

// ErrAccountNotFound is returned when a sync is requested for an unknown account.
var ErrAccountNotFound = errors.New("account not found")

// Options tunes a Syncer. Zero values select the defaults.
type Options struct {
	BatchSize int
	// FetchRatePerSecond caps batch fetches per account. Zero means unlimited.
	FetchRatePerSecond float64
}

// Syncer runs initial and delta syncs. Callers must not run two syncs of the same account at
// once; Runner takes care of that.
type Syncer struct {
	store     Store
	transport MailTransport
	decrypter imap.PasswordDecrypter
	batchSize int
	fetchRate float64
	now       func() time.Time

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// New creates a Syncer.
func New(store Store, transport MailTransport, decrypter imap.PasswordDecrypter, opts Options) *Syncer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Syncer{
		store:     store,
		transport: transport,
		decrypter: decrypter,
		batchSize: batchSize,
		fetchRate: opts.FetchRatePerSecond,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// ConnConfig resolves the connection settings of an account.
func (s *Syncer) ConnConfig(ctx context.Context, accountID string) (imap.ConnConfig, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, db.ErrAccountNotFound) {
		return imap.ConnConfig{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return imap.ConnConfig{}, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	return imap.ConnConfigForAccount(account, s.decrypter)
}

func (s *Syncer) limiter(accountID string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	if l, ok := s.limiters[accountID]; ok {
		return l
	}
	limit := rate.Inf
	if s.fetchRate > 0 {
		limit = rate.Limit(s.fetchRate)
	}
	l := rate.NewLimiter(limit, 1)
	s.limiters[accountID] = l
	return l
}

// run holds the state of one sync pass.
type run struct {
	accountID  string
	cfg        imap.ConnConfig
	logger     zerolog.Logger
	onProgress ProgressFunc

	parsed      map[string]*models.ParsedMessage
	threadables map[string]models.ThreadableMessage
	// order keeps fetch order so threading input is deterministic.
	order   []string
	cursors map[string]models.FolderSyncState

	fetched int
	total   int
}

func newRun(accountID string, cfg imap.ConnConfig, onProgress ProgressFunc) *run {
	return &run{
		accountID:   accountID,
		cfg:         cfg,
		logger:      log.With().Str("account_id", accountID).Logger(),
		onProgress:  onProgress,
		parsed:      make(map[string]*models.ParsedMessage),
		threadables: make(map[string]models.ThreadableMessage),
		cursors:     make(map[string]models.FolderSyncState),
	}
}

func (r *run) progress(phase models.SyncPhase, current, total int, folder string) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(models.SyncProgress{Phase: phase, Current: current, Total: total, Folder: folder})
}

func (r *run) setCursor(folder string, uidValidity, lastUID uint32, syncedAt int64) {
	r.cursors[folder] = models.FolderSyncState{
		AccountID:   r.accountID,
		FolderPath:  folder,
		UIDValidity: &uidValidity,
		LastUID:     lastUID,
		LastSyncAt:  syncedAt,
	}
}

func (r *run) add(parsed *models.ParsedMessage, threadable models.ThreadableMessage) {
	if _, seen := r.parsed[parsed.ID]; !seen {
		r.order = append(r.order, parsed.ID)
	}
	r.parsed[parsed.ID] = parsed
	r.threadables[parsed.ID] = threadable
}

// InitialSync fetches every syncable folder from scratch, keeping messages from the last
// daysBack days, and returns the messages it stored. Each folder is asked only for that window,
// newest first.
func (s *Syncer) InitialSync(ctx context.Context, accountID string, daysBack int, onProgress ProgressFunc) (*models.SyncResult, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	cfg, err := s.ConnConfig(ctx, accountID)
	if err != nil {
		return nil, err
	}

	r := newRun(accountID, cfg, onProgress)
	syncable, err := s.syncFolders(ctx, r)
	if err != nil {
		return nil, err
	}

	since := s.now().Unix() - int64(daysBack)*86400

	type folderPlan struct {
		folder models.RemoteFolder
		uids   []uint32
		floor  uint32
	}
	var plans []folderPlan

	for _, f := range syncable {
		if f.Exists == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := s.transport.GetFolderStatus(ctx, cfg, f.RawPath)
		if err != nil {
			r.logger.Warn().Err(err).Str("folder", f.Path).Msg("failed to get folder status, skipping folder")
			continue
		}
		uids, err := s.transport.SearchAllUIDs(ctx, cfg, f.RawPath, time.Unix(since, 0).UTC())
		if err != nil {
			r.logger.Warn().Err(err).Str("folder", f.Path).Msg("failed to list messages, skipping folder")
			continue
		}

		// Every UID below UIDNEXT that the window left out is older than daysBack.
		var floor uint32
		if status.UIDNext > 0 {
			floor = status.UIDNext - 1
		}
		if len(uids) == 0 {
			r.setCursor(f.RawPath, status.UIDValidity, floor, s.now().Unix())
			continue
		}

		plans = append(plans, folderPlan{folder: f, uids: uids, floor: floor})
		r.total += len(uids)
	}

	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		folderLabel := folders.MapFolderToLabel(p.folder).LabelID
		if err := s.fetchFolder(ctx, r, p.folder, folderLabel, p.uids, since, p.floor); err != nil {
			r.logger.Warn().Err(err).Str("folder", p.folder.Path).Msg("failed to fetch folder, continuing")
		}
	}

	return s.finish(ctx, r)
}

// DeltaSync fetches what is new in every syncable folder since the stored cursors. Folders
// never synced before, or whose UID validity changed, are fetched in full. When nothing is new
// it returns an empty result without writing anything but the folder labels and the cursors of
// folders whose UID validity changed.
func (s *Syncer) DeltaSync(ctx context.Context, accountID string, onProgress ProgressFunc) (*models.SyncResult, error) {
	cfg, err := s.ConnConfig(ctx, accountID)
	if err != nil {
		return nil, err
	}

	r := newRun(accountID, cfg, onProgress)
	syncable, err := s.syncFolders(ctx, r)
	if err != nil {
		return nil, err
	}

	states, err := s.store.GetAllFolderSyncStates(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folder sync states: %w", err)
	}

	for _, f := range syncable {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		folderLogger := r.logger.With().Str("folder", f.Path).Logger()
		folderLabel := folders.MapFolderToLabel(f).LabelID

		uids, previous, err := s.deltaUIDs(ctx, r, f, states)
		if err != nil {
			folderLogger.Warn().Err(err).Msg("failed to check folder for new messages, skipping folder")
			continue
		}
		if len(uids) == 0 {
			continue
		}

		r.total += len(uids)
		if err := s.fetchFolder(ctx, r, f, folderLabel, uids, 0, previous); err != nil {
			folderLogger.Warn().Err(err).Msg("failed to fetch folder, continuing")
		}
	}

	if len(r.threadables) == 0 {
		s.storeCursors(ctx, r)
		return &models.SyncResult{Messages: []*models.ParsedMessage{}}, nil
	}

	return s.finish(ctx, r)
}

// deltaUIDs decides what to fetch for one folder. It returns the UIDs and the cursor that the
// new cursor must not fall below. A folder whose UID validity changed and that is now empty
// gets a fresh cursor right away.
func (s *Syncer) deltaUIDs(ctx context.Context, r *run, f models.RemoteFolder, states map[string]models.FolderSyncState) ([]uint32, uint32, error) {
	state, synced := states[f.RawPath]
	if !synced || state.UIDValidity == nil {
		uids, err := s.transport.SearchAllUIDs(ctx, r.cfg, f.RawPath, time.Time{})
		return uids, 0, err
	}

	status, err := s.transport.GetFolderStatus(ctx, r.cfg, f.RawPath)
	if err != nil {
		return nil, 0, err
	}

	if status.UIDValidity != *state.UIDValidity {
		r.logger.Warn().
			Str("folder", f.Path).
			Uint32("stored_uidvalidity", *state.UIDValidity).
			Uint32("server_uidvalidity", status.UIDValidity).
			Msg("UID validity changed, refetching folder")
		uids, err := s.transport.SearchAllUIDs(ctx, r.cfg, f.RawPath, time.Time{})
		if err == nil && len(uids) == 0 {
			r.setCursor(f.RawPath, status.UIDValidity, 0, s.now().Unix())
		}
		return uids, 0, err
	}

	uids, err := s.transport.FetchNewUIDs(ctx, r.cfg, f.RawPath, state.LastUID)
	return uids, state.LastUID, err
}

// syncFolders lists the remote folders, stores their labels and returns the syncable ones.
func (s *Syncer) syncFolders(ctx context.Context, r *run) ([]models.RemoteFolder, error) {
	r.progress(models.PhaseFolders, 0, 1, "")

	remote, err := s.transport.ListFolders(ctx, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	syncable := folders.SyncableFolders(remote)
	if err := s.store.UpsertLabels(ctx, folders.LabelsForFolders(r.accountID, syncable)); err != nil {
		return nil, fmt.Errorf("failed to store folder labels: %w", err)
	}

	r.progress(models.PhaseFolders, 1, 1, "")
	return syncable, nil
}

// fetchFolder fetches uids in batches, translating every message newer than since. The cursor
// never falls below floor. With ascending UIDs it advances with each successful batch, so a
// failure keeps what was fetched before it. Any other order moves it only once every batch is
// in, so a partial pass leaves the folder to be fetched again.
func (s *Syncer) fetchFolder(
	ctx context.Context,
	r *run,
	f models.RemoteFolder,
	folderLabel string,
	uids []uint32,
	since int64,
	floor uint32,
) error {
	limiter := s.limiter(r.accountID)
	ascending := sort.SliceIsSorted(uids, func(i, j int) bool { return uids[i] < uids[j] })

	lastUID := floor
	if cursor, ok := r.cursors[f.RawPath]; ok && cursor.LastUID > lastUID {
		lastUID = cursor.LastUID
	}
	var uidValidity uint32

	for start := 0; start < len(uids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		result, err := s.transport.FetchMessages(ctx, r.cfg, f.RawPath, batch)
		if err != nil {
			return fmt.Errorf("failed to fetch UIDs %d-%d: %w", batch[0], batch[len(batch)-1], err)
		}

		for _, raw := range result.Messages {
			if raw.UID > lastUID {
				lastUID = raw.UID
			}
			if since > 0 && raw.Date < since {
				continue
			}
			if raw.Folder == "" {
				raw.Folder = f.RawPath
			}
			parsed, threadable := translate.ToParsedMessage(raw, r.accountID, folderLabel)
			r.add(parsed, threadable)
		}

		uidValidity = result.FolderStatus.UIDValidity
		if ascending {
			r.setCursor(f.RawPath, uidValidity, lastUID, s.now().Unix())
		}

		r.fetched += len(batch)
		r.progress(models.PhaseMessages, r.fetched, r.total, f.Path)
	}

	if !ascending {
		r.setCursor(f.RawPath, uidValidity, lastUID, s.now().Unix())
	}
	return nil
}

func (s *Syncer) storeCursors(ctx context.Context, r *run) {
	for _, cursor := range r.cursors {
		if err := s.store.UpsertFolderSyncState(ctx, cursor); err != nil {
			r.logger.Error().Err(err).Str("folder", cursor.FolderPath).Msg("failed to store folder cursor")
		}
	}
}

// finish threads everything fetched in this run, persists it and then moves the cursors.
func (s *Syncer) finish(ctx context.Context, r *run) (*models.SyncResult, error) {
	threadables := make([]models.ThreadableMessage, 0, len(r.order))
	headerSet := make(map[string]struct{})
	for _, id := range r.order {
		threadables = append(threadables, r.threadables[id])
		for _, h := range r.parsed[id].ThreadHeaders {
			headerSet[h] = struct{}{}
		}
	}

	r.progress(models.PhaseThreading, 0, len(threadables), "")

	headers := make([]string, 0, len(headerSet))
	for h := range headerSet {
		headers = append(headers, h)
	}
	seeds, err := s.store.GetThreadIDsForHeaders(ctx, r.accountID, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing threads: %w", err)
	}

	groups := threading.BuildThreads(threadables, seeds)
	stored := StoreThreadsAndMessages(ctx, s.store, r.accountID, groups, r.parsed)

	s.storeCursors(ctx, r)

	if err := s.store.RefreshLabelCounts(ctx, r.accountID); err != nil {
		r.logger.Warn().Err(err).Msg("failed to refresh label counts")
	}

	token := fmt.Sprintf("imap-synced-%d", s.now().UnixMilli())
	if err := s.store.UpdateAccountSyncState(ctx, r.accountID, token); err != nil {
		r.logger.Warn().Err(err).Msg("failed to update account sync state")
	}

	r.progress(models.PhaseDone, len(stored), len(stored), "")
	r.logger.Info().
		Int("fetched", r.fetched).
		Int("stored", len(stored)).
		Int("threads", len(groups)).
		Msg("sync finished")

	return &models.SyncResult{Messages: stored}, nil
}
