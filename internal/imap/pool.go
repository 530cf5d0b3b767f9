package imap

import (
	"context"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"
)

const (
	// workerIdleTimeout is how long a worker client may sit unused before it is closed.
	workerIdleTimeout = 10 * time.Minute
	// healthCheckThreshold is the idle time after which a client is NOOP-checked before reuse.
	healthCheckThreshold = 1 * time.Minute
)

// Pool keeps IMAP sessions per account: up to maxWorkers worker clients for fetches and one
// listener client for IDLE.
type Pool struct {
	workerSets    map[string]*workerClientSet
	listeners     map[string]*threadSafeClient
	mu            sync.RWMutex
	maxWorkers    int
	dial          func(ConnConfig) (*client.Client, error)
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
}

// NewPool creates a pool allowing maxWorkers concurrent worker clients per account.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workerSets:    make(map[string]*workerClientSet),
		listeners:     make(map[string]*threadSafeClient),
		maxWorkers:    maxWorkers,
		dial:          connect,
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
	p.startCleanupGoroutine()
	return p
}

// WithClient runs fn on a worker client of the account. A client that fails with a
// connection-level error is dropped from the pool.
func (p *Pool) WithClient(ctx context.Context, cfg ConnConfig, fn func(c *client.Client) error) error {
	tsClient, release, err := p.getWorkerClient(ctx, cfg)
	if err != nil {
		return err
	}

	err = fn(tsClient.GetClient())
	if err != nil && isConnectionError(err) {
		release()
		p.removeWorker(cfg.AccountID, tsClient)
		return err
	}

	release()
	return err
}

// RemoveAccount closes every client of the account.
func (p *Pool) RemoveAccount(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if set, exists := p.workerSets[accountID]; exists {
		set.close()
		delete(p.workerSets, accountID)
	}

	if listener, exists := p.listeners[accountID]; exists {
		_ = listener.GetClient().Logout()
		delete(p.listeners, accountID)
	}
}

// Close closes all clients and stops the cleanup goroutine.
func (p *Pool) Close() {
	p.cleanupCancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	for accountID, set := range p.workerSets {
		set.close()
		delete(p.workerSets, accountID)
	}

	for accountID, listener := range p.listeners {
		if err := listener.GetClient().Logout(); err != nil {
			log.Debug().Err(err).Str("account_id", accountID).Msg("failed to log out listener client")
		}
		delete(p.listeners, accountID)
	}
}
