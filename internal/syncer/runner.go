package syncer

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/models"
	"golang.org/x/sync/singleflight"
)

// AfterSyncFunc is called after a sync run of an account stored at least one message.
type AfterSyncFunc func(ctx context.Context, accountID string, stored int)

// AccountProgressFunc receives the progress events of every account.
type AccountProgressFunc func(accountID string, progress models.SyncProgress)

// Runner serializes sync runs per account. Concurrent delta requests for one account share a
// single run, which outlives any one caller and stops only when the Runner is closed.
type Runner struct {
	syncer     *Syncer
	group      singleflight.Group
	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	onProgress AccountProgressFunc
	afterSync  []AfterSyncFunc

	lifetime context.Context
	close    context.CancelFunc
}

// NewRunner creates a Runner. onProgress may be nil.
func NewRunner(syncer *Syncer, onProgress AccountProgressFunc, afterSync ...AfterSyncFunc) *Runner {
	lifetime, cancel := context.WithCancel(context.Background())
	return &Runner{
		syncer:     syncer,
		locks:      make(map[string]*sync.Mutex),
		onProgress: onProgress,
		afterSync:  afterSync,
		lifetime:   lifetime,
		close:      cancel,
	}
}

// Close cancels the shared delta runs in flight. Later Delta calls return context.Canceled.
func (r *Runner) Close() {
	r.close()
}

// sharedContext keeps the values of ctx but not its cancellation, which belongs to the Runner.
func (r *Runner) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.lifetime, cancel)
	return shared, func() {
		stop()
		cancel()
	}
}

func (r *Runner) accountLock(accountID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[accountID] = l
	}
	return l
}

func (r *Runner) progressFor(accountID string) ProgressFunc {
	if r.onProgress == nil {
		return nil
	}
	return func(p models.SyncProgress) {
		r.onProgress(accountID, p)
	}
}

// Initial runs an initial sync and returns the number of stored messages.
func (r *Runner) Initial(ctx context.Context, accountID string, daysBack int) (int, error) {
	lock := r.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	result, err := r.syncer.InitialSync(ctx, accountID, daysBack, r.progressFor(accountID))
	if err != nil {
		return 0, err
	}

	r.runAfterSync(ctx, accountID, len(result.Messages))
	return len(result.Messages), nil
}

// Delta runs a delta sync and returns the number of stored messages. A call made while a delta
// of the same account is running waits for that run and returns its result. Canceling ctx
// stops the wait, not the run.
func (r *Runner) Delta(ctx context.Context, accountID string) (int, error) {
	if err := r.lifetime.Err(); err != nil {
		return 0, err
	}

	ch := r.group.DoChan(accountID, func() (any, error) {
		runCtx, cancel := r.sharedContext(ctx)
		defer cancel()

		lock := r.accountLock(accountID)
		lock.Lock()
		defer lock.Unlock()

		result, err := r.syncer.DeltaSync(runCtx, accountID, r.progressFor(accountID))
		if err != nil {
			return 0, err
		}

		r.runAfterSync(runCtx, accountID, len(result.Messages))
		return len(result.Messages), nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// DeltaAll runs a delta sync for each account in turn. Failures are logged.
func (r *Runner) DeltaAll(ctx context.Context, accountIDs []string) {
	for _, accountID := range accountIDs {
		if ctx.Err() != nil {
			return
		}
		stored, err := r.Delta(ctx, accountID)
		if err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("delta sync failed")
			continue
		}
		if stored > 0 {
			log.Info().Str("account_id", accountID).Int("stored", stored).Msg("delta sync stored new messages")
		}
	}
}

func (r *Runner) runAfterSync(ctx context.Context, accountID string, stored int) {
	if stored == 0 {
		return
	}
	for _, fn := range r.afterSync {
		fn(ctx, accountID, stored)
	}
}
