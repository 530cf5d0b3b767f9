package imap

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// IdleManager runs at most one IdleListener loop per account.
type IdleManager struct {
	listener *IdleListener

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewIdleManager creates a manager for the given listener.
func NewIdleManager(listener *IdleListener) *IdleManager {
	return &IdleManager{
		listener: listener,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Ensure starts listening for the account unless a loop is already running.
func (m *IdleManager) Ensure(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.cancels[accountID]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[accountID] = cancel
	m.wg.Add(1)

	log.Info().Str("account_id", accountID).Msg("IMAP IDLE: starting listener")

	go func() {
		defer m.wg.Done()
		m.listener.Run(ctx, accountID)

		m.mu.Lock()
		if current, ok := m.cancels[accountID]; ok && ctx.Err() == nil {
			current()
			delete(m.cancels, accountID)
		}
		m.mu.Unlock()
	}()
}

// Running reports whether a loop is active for the account.
func (m *IdleManager) Running(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancels[accountID]
	return ok
}

// Stop ends the account's loop.
func (m *IdleManager) Stop(accountID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[accountID]
	delete(m.cancels, accountID)
	m.mu.Unlock()

	if ok {
		cancel()
	}
}

// StopAll ends every loop and waits for them to return.
func (m *IdleManager) StopAll() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}
