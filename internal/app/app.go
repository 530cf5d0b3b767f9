// Package app assembles the sync engine from configuration. The HTTP server and the CLI share
// it so both run the same orchestrator.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/attachcache"
	"github.com/velomail/velo/backend/internal/auth"
	"github.com/velomail/velo/backend/internal/categorize"
	"github.com/velomail/velo/backend/internal/config"
	"github.com/velomail/velo/backend/internal/crypto"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/imap"
	"github.com/velomail/velo/backend/internal/scheduler"
	"github.com/velomail/velo/backend/internal/syncer"
	ws "github.com/velomail/velo/backend/internal/websocket"
)

// maxConnectionsPerAccount caps WebSocket connections per account.
const maxConnectionsPerAccount = 10

// App holds the long-lived components.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Store     *db.Store
	Encryptor *crypto.Encryptor
	Validator *auth.Validator
	IMAPPool  *imap.Pool
	Transport *imap.Transport
	Syncer    *syncer.Syncer
	Runner    *syncer.Runner
	Hub       *ws.Hub
	Idle      *imap.IdleManager
	Cache     *attachcache.Manager
	Scheduler *scheduler.Scheduler
}

// New wires every component. Nothing is started; see StartBackground.
func New(cfg *config.Config, pool *pgxpool.Pool) (*App, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	a := &App{
		Config:    cfg,
		Pool:      pool,
		Store:     db.NewStore(pool),
		Encryptor: encryptor,
		Validator: auth.NewValidator(cfg.APIToken, cfg.AccountEmail, cfg.TestMode),
		IMAPPool:  imap.NewPool(cfg.IMAPMaxWorkers),
		Hub:       ws.NewHub(maxConnectionsPerAccount),
	}

	a.Transport = imap.NewTransport(a.IMAPPool, cfg.FetchRetryMaxElapsed)
	a.Syncer = syncer.New(a.Store, a.Transport, encryptor, syncer.Options{
		BatchSize:          cfg.SyncBatchSize,
		FetchRatePerSecond: cfg.FetchRatePerSecond,
	})
	a.Runner = syncer.NewRunner(a.Syncer, a.Hub.SendProgress,
		categorize.AfterSync(a.Store),
		func(_ context.Context, accountID string, stored int) {
			a.Hub.SendSyncDone(accountID, stored)
		},
	)
	a.Idle = imap.NewIdleManager(imap.NewIdleListener(a.IMAPPool, a.Syncer.ConnConfig, a.Runner, a.Hub))
	a.Cache = attachcache.NewManager(a.Store, cfg.AttachmentCacheDir, cfg.AttachmentCacheMaxBytes())

	a.Scheduler, err = scheduler.New(
		scheduler.Schedules{
			DeltaSync:  cfg.DeltaSyncInterval,
			CacheEvict: cfg.CacheEvictInterval,
			Backfill:   cfg.BackfillInterval,
		},
		scheduler.Jobs{
			Accounts: a.Store,
			Delta:    a.Runner,
			Cache:    a.Cache,
			Backfill: a.Backfill,
		},
	)
	if err != nil {
		a.IMAPPool.Close()
		return nil, err
	}

	return a, nil
}

// Backfill categorizes the uncategorized inbox threads of an account.
func (a *App) Backfill(ctx context.Context, accountID string) (int, error) {
	return categorize.Backfill(ctx, a.Store, accountID, categorize.DefaultBatchSize)
}

// AccountSaved drops the account's sessions and restarts its IDLE listener, so new
// connection settings take effect.
func (a *App) AccountSaved(accountID string) {
	a.Idle.Stop(accountID)
	a.Transport.Forget(accountID)
	a.Idle.Ensure(accountID)
}

// StartBackground starts the scheduler and an IDLE listener for every configured account.
func (a *App) StartBackground(ctx context.Context) {
	a.Scheduler.Start()

	ids, err := a.Store.ListAccountIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts for IDLE listeners")
		return
	}
	for _, id := range ids {
		a.Idle.Ensure(id)
	}
}

// Close stops background work and releases IMAP connections. The database pool is owned by
// the caller.
func (a *App) Close(ctx context.Context) {
	if err := a.Scheduler.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not stop in time")
	}
	a.Runner.Close()
	a.Idle.StopAll()
	a.IMAPPool.Close()
}
