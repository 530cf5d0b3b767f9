package imap

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
)

// getOrCreateWorkerSet returns the worker set of an account, creating it on first use.
func (p *Pool) getOrCreateWorkerSet(accountID string) *workerClientSet {
	p.mu.RLock()
	set, exists := p.workerSets[accountID]
	p.mu.RUnlock()

	if exists {
		return set
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if set, exists := p.workerSets[accountID]; exists {
		return set
	}

	set = newWorkerClientSet(p.maxWorkers)
	p.workerSets[accountID] = set
	return set
}

// getWorkerClient returns a locked worker client and a release function that must be called
// when the caller is done with it.
func (p *Pool) getWorkerClient(ctx context.Context, cfg ConnConfig) (*threadSafeClient, func(), error) {
	set := p.getOrCreateWorkerSet(cfg.AccountID)

	tsClient, releaseSlot, err := set.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	if tsClient != nil {
		if p.isUsable(tsClient) {
			tsClient.UpdateLastUsed()
			return tsClient, func() {
				tsClient.Unlock()
				releaseSlot()
			}, nil
		}

		set.remove(tsClient)
		_ = tsClient.GetClient().Logout()
		tsClient.Unlock()
	}

	// The slot is ours; fill it with a fresh session.
	c, err := p.dial(cfg)
	if err != nil {
		releaseSlot()
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}

	tsClient = &threadSafeClient{
		client:   c,
		lastUsed: time.Now(),
		role:     roleWorker,
	}
	tsClient.Lock()
	set.add(tsClient)

	return tsClient, func() {
		tsClient.Unlock()
		releaseSlot()
	}, nil
}

// isUsable reports whether a locked client is still logged in, running a NOOP if it has
// been idle for a while.
func (p *Pool) isUsable(c *threadSafeClient) bool {
	state := c.GetClient().State()
	if state != imap.AuthenticatedState && state != imap.SelectedState {
		return false
	}

	if time.Since(c.GetLastUsed()) > healthCheckThreshold {
		if err := c.GetClient().Noop(); err != nil {
			return false
		}
	}

	return true
}

// removeWorker drops a broken client from the account's set and closes it.
func (p *Pool) removeWorker(accountID string, c *threadSafeClient) {
	p.mu.RLock()
	set, exists := p.workerSets[accountID]
	p.mu.RUnlock()

	if exists && set.remove(c) {
		c.Lock()
		_ = c.GetClient().Logout()
		c.Unlock()
	}
}
