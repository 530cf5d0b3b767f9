package imap

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// workerClientSet holds the worker clients of one account. The semaphore caps how many
// are in use at once.
type workerClientSet struct {
	clients   []*threadSafeClient
	semaphore chan struct{}
	mu        sync.Mutex
}

func newWorkerClientSet(maxWorkers int) *workerClientSet {
	return &workerClientSet{semaphore: make(chan struct{}, maxWorkers)}
}

// acquire takes a slot, blocking until one is free or ctx is done. It returns an idle client
// (locked) if there is one, or nil if the caller should dial a new client into the slot.
// releaseSlot must be called exactly once when the slot is no longer used.
func (s *workerClientSet) acquire(ctx context.Context) (*threadSafeClient, func(), error) {
	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	releaseSlot := func() { <-s.semaphore }

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c.TryLock() {
			return c, releaseSlot, nil
		}
	}

	return nil, releaseSlot, nil
}

func (s *workerClientSet) add(c *threadSafeClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
}

// remove drops c from the set and reports whether it was present.
func (s *workerClientSet) remove(c *threadSafeClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.clients {
		if existing == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			return true
		}
	}
	return false
}

// close logs out every client. Clients in use are logged out too; their holders see a
// connection error on the next command.
func (s *workerClientSet) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if err := c.GetClient().Logout(); err != nil {
			log.Debug().Err(err).Msg("failed to log out worker client")
		}
	}
	s.clients = nil
}
