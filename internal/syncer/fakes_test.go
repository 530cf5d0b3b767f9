package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/imap"
	"github.com/velomail/velo/backend/internal/models"
)

const testAccountID = "00000000-0000-0000-0000-000000000001"

// fakeFolder is one remote folder of fakeTransport.
type fakeFolder struct {
	info        models.RemoteFolder
	uidValidity uint32
	messages    map[uint32]models.RemoteMessage
}

type fakeTransport struct {
	mu         sync.Mutex
	folders    []*fakeFolder
	failFetch  map[string]error
	failSearch map[string]error
	listErr    error
	// fetchesBeforeFailure lets that many fetches of a folder succeed before failFetch applies.
	fetchesBeforeFailure map[string]int

	listCalls      int
	searchAllCalls map[string]int
	searchSince    map[string]time.Time
	fetchNewCalls  map[string]int
	fetchCalls     map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failFetch:            make(map[string]error),
		failSearch:           make(map[string]error),
		fetchesBeforeFailure: make(map[string]int),
		searchAllCalls:       make(map[string]int),
		searchSince:          make(map[string]time.Time),
		fetchNewCalls:        make(map[string]int),
		fetchCalls:           make(map[string]int),
	}
}

func (f *fakeTransport) addFolder(path, specialUse string) *fakeFolder {
	folder := &fakeFolder{
		info: models.RemoteFolder{
			Path:       path,
			RawPath:    path,
			Name:       path,
			Delimiter:  "/",
			SpecialUse: specialUse,
			Selectable: true,
		},
		uidValidity: 1,
		messages:    make(map[uint32]models.RemoteMessage),
	}
	f.folders = append(f.folders, folder)
	return folder
}

func (f *fakeTransport) folder(path string) *fakeFolder {
	for _, folder := range f.folders {
		if folder.info.RawPath == path {
			return folder
		}
	}
	return nil
}

func (ff *fakeFolder) add(msg models.RemoteMessage) {
	msg.Folder = ff.info.RawPath
	ff.messages[msg.UID] = msg
}

func (ff *fakeFolder) sortedUIDs() []uint32 {
	uids := make([]uint32, 0, len(ff.messages))
	for uid := range ff.messages {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

func (f *fakeTransport) ListFolders(_ context.Context, _ imap.ConnConfig) ([]models.RemoteFolder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	result := make([]models.RemoteFolder, 0, len(f.folders))
	for _, folder := range f.folders {
		info := folder.info
		info.Exists = uint32(len(folder.messages))
		result = append(result, info)
	}
	return result, nil
}

func (f *fakeTransport) GetFolderStatus(_ context.Context, _ imap.ConnConfig, path string) (models.FolderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder := f.folder(path)
	if folder == nil {
		return models.FolderStatus{}, imap.ErrNoSuchMailbox
	}
	return folder.status(), nil
}

func (ff *fakeFolder) status() models.FolderStatus {
	var next uint32 = 1
	for uid := range ff.messages {
		if uid >= next {
			next = uid + 1
		}
	}
	return models.FolderStatus{
		UIDValidity: ff.uidValidity,
		UIDNext:     next,
		Exists:      uint32(len(ff.messages)),
	}
}

// SearchAllUIDs answers like a server with SORT: messages dated since or later, newest first.
func (f *fakeTransport) SearchAllUIDs(_ context.Context, _ imap.ConnConfig, path string, since time.Time) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.searchAllCalls[path]++
	f.searchSince[path] = since
	if err := f.failSearch[path]; err != nil {
		return nil, err
	}
	folder := f.folder(path)
	if folder == nil {
		return nil, imap.ErrNoSuchMailbox
	}

	var uids []uint32
	for _, uid := range folder.sortedUIDs() {
		if since.IsZero() || folder.messages[uid].Date >= since.Unix() {
			uids = append(uids, uid)
		}
	}
	sort.SliceStable(uids, func(i, j int) bool {
		return folder.messages[uids[i]].Date > folder.messages[uids[j]].Date
	})
	return uids, nil
}

func (f *fakeTransport) FetchNewUIDs(_ context.Context, _ imap.ConnConfig, path string, lastUID uint32) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchNewCalls[path]++
	folder := f.folder(path)
	if folder == nil {
		return nil, imap.ErrNoSuchMailbox
	}
	var uids []uint32
	for _, uid := range folder.sortedUIDs() {
		if uid > lastUID {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (f *fakeTransport) FetchMessages(_ context.Context, _ imap.ConnConfig, path string, uids []uint32) (*models.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls[path]++
	if err := f.failFetch[path]; err != nil && f.fetchCalls[path] > f.fetchesBeforeFailure[path] {
		return nil, err
	}
	folder := f.folder(path)
	if folder == nil {
		return nil, imap.ErrNoSuchMailbox
	}

	result := &models.FetchResult{FolderStatus: folder.status()}
	for _, uid := range uids {
		if msg, ok := folder.messages[uid]; ok {
			result.Messages = append(result.Messages, msg)
		}
	}
	return result, nil
}

// fakeStore is an in-memory Store. Its thread writer applies changes directly, so a failing
// group can leave partial writes behind; tests that need rollback use the Postgres store.
type fakeStore struct {
	mu sync.Mutex

	account    *models.Account
	labels     map[string]models.Label
	threads    map[string]*models.Thread
	labelsOf   map[string][]string
	messages   map[string]*models.ParsedMessage
	attachment map[string]*models.Attachment
	states     map[string]models.FolderSyncState
	pendingOps map[string][]models.PendingOperation
	syncToken  string

	failThreads map[string]error

	inTxCalls        int
	stateUpserts     int
	labelRefreshes   int
	syncTokenUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		account: &models.Account{
			ID:                    testAccountID,
			Email:                 "me@example.com",
			IMAPHost:              "imap.example.com",
			IMAPSecurity:          "ssl",
			EncryptedIMAPPassword: []byte("sealed"),
		},
		labels:      make(map[string]models.Label),
		threads:     make(map[string]*models.Thread),
		labelsOf:    make(map[string][]string),
		messages:    make(map[string]*models.ParsedMessage),
		attachment:  make(map[string]*models.Attachment),
		states:      make(map[string]models.FolderSyncState),
		pendingOps:  make(map[string][]models.PendingOperation),
		failThreads: make(map[string]error),
	}
}

func (s *fakeStore) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	if s.account == nil || s.account.ID != accountID {
		return nil, db.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *fakeStore) UpsertLabels(_ context.Context, labels []models.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range labels {
		s.labels[l.ID] = l
	}
	return nil
}

func (s *fakeStore) GetAllFolderSyncStates(_ context.Context, _ string) (map[string]models.FolderSyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]models.FolderSyncState, len(s.states))
	for k, v := range s.states {
		result[k] = v
	}
	return result, nil
}

func (s *fakeStore) UpsertFolderSyncState(_ context.Context, state models.FolderSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateUpserts++
	s.states[state.FolderPath] = state
	return nil
}

func (s *fakeStore) GetThreadIDsForHeaders(_ context.Context, _ string, headers []string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		wanted[h] = struct{}{}
	}
	sets := make(map[string]map[string]struct{})
	for _, msg := range s.messages {
		for _, h := range msg.ThreadHeaders {
			if _, ok := wanted[h]; !ok {
				continue
			}
			if sets[h] == nil {
				sets[h] = make(map[string]struct{})
			}
			sets[h][msg.ThreadID] = struct{}{}
		}
	}
	result := make(map[string][]string, len(sets))
	for h, ids := range sets {
		for id := range ids {
			result[h] = append(result[h], id)
		}
		sort.Strings(result[h])
	}
	return result, nil
}

func (s *fakeStore) GetPendingOpsForResource(_ context.Context, _ string, resourceID string) ([]models.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingOps[resourceID], nil
}

func (s *fakeStore) RefreshLabelCounts(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labelRefreshes++
	return nil
}

func (s *fakeStore) UpdateAccountSyncState(_ context.Context, _ string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncTokenUpdates++
	s.syncToken = token
	return nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(w db.ThreadWriter) error) error {
	s.mu.Lock()
	s.inTxCalls++
	s.mu.Unlock()
	return fn(&fakeWriter{store: s})
}

func (s *fakeStore) threadOf(messageID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[messageID]; ok {
		return msg.ThreadID
	}
	return ""
}

func (s *fakeStore) thread(id string) *models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[id]
}

type fakeWriter struct {
	store *fakeStore
}

func (w *fakeWriter) GetThreadMemberSummaries(_ context.Context, _ string, threadID string, exclude []string) ([]models.MessageSummary, error) {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var result []models.MessageSummary
	for _, msg := range w.store.messages {
		if msg.ThreadID != threadID {
			continue
		}
		if _, ok := skip[msg.ID]; ok {
			continue
		}
		result = append(result, summaryOf(msg))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (w *fakeWriter) MergeThreads(_ context.Context, _ string, winner string, losers []string) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	for _, loser := range losers {
		for _, msg := range w.store.messages {
			if msg.ThreadID == loser {
				msg.ThreadID = winner
			}
		}
		if loser != winner {
			delete(w.store.threads, loser)
			delete(w.store.labelsOf, loser)
		}
	}
	return nil
}

func (w *fakeWriter) UpsertThread(_ context.Context, thread *models.Thread) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if err := w.store.failThreads[thread.ID]; err != nil {
		return err
	}
	copied := *thread
	w.store.threads[thread.ID] = &copied
	return nil
}

func (w *fakeWriter) InsertThreadIfMissing(_ context.Context, thread *models.Thread) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if _, ok := w.store.threads[thread.ID]; ok {
		return nil
	}
	copied := *thread
	w.store.threads[thread.ID] = &copied
	return nil
}

func (w *fakeWriter) SetThreadLabels(_ context.Context, _ string, threadID string, labelIDs []string) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.labelsOf[threadID] = append([]string(nil), labelIDs...)
	return nil
}

func (w *fakeWriter) UpsertMessage(_ context.Context, msg *models.ParsedMessage) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if _, ok := w.store.threads[msg.ThreadID]; !ok {
		return fmt.Errorf("thread %s does not exist", msg.ThreadID)
	}
	copied := *msg
	w.store.messages[msg.ID] = &copied
	return nil
}

func (w *fakeWriter) UpsertAttachment(_ context.Context, att *models.Attachment) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if _, ok := w.store.messages[att.MessageID]; !ok {
		return errors.New("attachment without message")
	}
	copied := *att
	w.store.attachment[att.ID] = &copied
	return nil
}

type fakeDecrypter struct{}

func (fakeDecrypter) DecryptPassword(_ string, _ []byte) (string, error) {
	return "password", nil
}
