package imap

import (
	"fmt"
	"time"

	"github.com/emersion/go-imap"
)

// getListenerClient returns the account's IDLE client, dialing one if needed.
// The returned client is locked; the caller must unlock it.
func (p *Pool) getListenerClient(cfg ConnConfig) (*threadSafeClient, error) {
	p.mu.RLock()
	listener, exists := p.listeners[cfg.AccountID]
	p.mu.RUnlock()

	if exists {
		listener.Lock()
		state := listener.GetClient().State()
		if state == imap.AuthenticatedState || state == imap.SelectedState {
			return listener, nil
		}
		listener.Unlock()
		p.removeListener(cfg.AccountID, listener)
	}

	c, err := p.dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect listener: %w", err)
	}

	listener = &threadSafeClient{
		client:   c,
		lastUsed: time.Now(),
		role:     roleListener,
	}

	p.mu.Lock()
	if existing, exists := p.listeners[cfg.AccountID]; exists {
		p.mu.Unlock()
		_ = c.Logout()
		existing.Lock()
		return existing, nil
	}
	p.listeners[cfg.AccountID] = listener
	p.mu.Unlock()

	listener.Lock()
	return listener, nil
}

// removeListener closes the account's listener if it is still the given client.
func (p *Pool) removeListener(accountID string, listener *threadSafeClient) {
	p.mu.Lock()
	current, exists := p.listeners[accountID]
	if exists && current == listener {
		delete(p.listeners, accountID)
	}
	p.mu.Unlock()

	if exists && current == listener {
		_ = listener.GetClient().Logout()
	}
}
