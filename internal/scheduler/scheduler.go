// Package scheduler runs the periodic background jobs: delta sync of every account, attachment
// cache eviction and category backfill.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// AccountLister returns the ids of every configured account.
type AccountLister interface {
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// DeltaRunner syncs a set of accounts.
type DeltaRunner interface {
	DeltaAll(ctx context.Context, accountIDs []string)
}

// CacheEvictor trims the attachment cache.
type CacheEvictor interface {
	EvictOldest(ctx context.Context) (int64, error)
}

// BackfillFunc categorizes the uncategorized threads of an account.
type BackfillFunc func(ctx context.Context, accountID string) (int, error)

// Schedules holds cron specs. An empty spec disables the job.
type Schedules struct {
	DeltaSync  string
	CacheEvict string
	Backfill   string
}

// Jobs are the dependencies of the scheduled jobs. A nil dependency disables its job.
type Jobs struct {
	Accounts AccountLister
	Delta    DeltaRunner
	Cache    CacheEvictor
	Backfill BackfillFunc
}

// Scheduler owns a cron instance. Jobs get a context that is cancelled by Stop.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the jobs. It fails on an invalid cron spec.
func New(schedules Schedules, jobs Jobs) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, jobs: jobs, ctx: ctx, cancel: cancel}

	entries := []struct {
		name    string
		spec    string
		enabled bool
		run     func(context.Context)
	}{
		{"delta_sync", schedules.DeltaSync, jobs.Accounts != nil && jobs.Delta != nil, s.runDeltaSync},
		{"cache_evict", schedules.CacheEvict, jobs.Cache != nil, s.runCacheEvict},
		{"category_backfill", schedules.Backfill, jobs.Accounts != nil && jobs.Backfill != nil, s.runBackfill},
	}

	for _, e := range entries {
		if e.spec == "" || !e.enabled {
			continue
		}
		run := e.run
		if _, err := c.AddFunc(e.spec, func() { run(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", e.spec, e.name, err)
		}
		log.Info().Str("job", e.name).Str("schedule", e.spec).Msg("registered background job")
	}

	return s, nil
}

// Start starts the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runDeltaSync(ctx context.Context) {
	ids, err := s.jobs.Accounts.ListAccountIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts for delta sync")
		return
	}
	s.jobs.Delta.DeltaAll(ctx, ids)
}

func (s *Scheduler) runCacheEvict(ctx context.Context) {
	freed, err := s.jobs.Cache.EvictOldest(ctx)
	if err != nil {
		log.Error().Err(err).Msg("attachment cache eviction failed")
		return
	}
	if freed > 0 {
		log.Info().Int64("freed_bytes", freed).Msg("attachment cache trimmed")
	}
}

func (s *Scheduler) runBackfill(ctx context.Context) {
	ids, err := s.jobs.Accounts.ListAccountIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts for category backfill")
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.jobs.Backfill(ctx, id); err != nil {
			log.Warn().Err(err).Str("account_id", id).Msg("category backfill failed")
		}
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
