package imap

import (
	"time"
)

// startCleanupGoroutine periodically closes idle worker clients until the pool is closed.
func (p *Pool) startCleanupGoroutine() {
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-p.cleanupCtx.Done():
				return
			case <-ticker.C:
				p.cleanupIdleClients(time.Now())
			}
		}
	}()
}

// cleanupIdleClients closes worker clients unused for longer than workerIdleTimeout and drops
// empty sets. Clients currently in use are skipped.
func (p *Pool) cleanupIdleClients(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for accountID, set := range p.workerSets {
		set.mu.Lock()
		kept := set.clients[:0]
		for _, c := range set.clients {
			if !c.TryLock() {
				kept = append(kept, c)
				continue
			}
			if now.Sub(c.GetLastUsed()) > workerIdleTimeout {
				_ = c.GetClient().Logout()
			} else {
				kept = append(kept, c)
			}
			c.Unlock()
		}
		set.clients = kept
		empty := len(set.clients) == 0 && len(set.semaphore) == 0
		set.mu.Unlock()

		if empty {
			delete(p.workerSets, accountID)
		}
	}
}
