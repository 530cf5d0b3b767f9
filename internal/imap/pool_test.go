package imap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/velomail/velo/backend/internal/testutil"
)

func countingPool(maxWorkers int) (*Pool, *int32) {
	pool := NewPool(maxWorkers)
	var dials int32
	pool.dial = func(cfg ConnConfig) (*client.Client, error) {
		atomic.AddInt32(&dials, 1)
		return connect(cfg)
	}
	return pool, &dials
}

func TestPool_WithClient(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	cfg := testConnConfig(srv)

	t.Run("reuses an idle client", func(t *testing.T) {
		pool, dials := countingPool(3)
		defer pool.Close()

		var first, second *client.Client
		if err := pool.WithClient(context.Background(), cfg, func(c *client.Client) error {
			first = c
			return nil
		}); err != nil {
			t.Fatalf("WithClient returned error: %v", err)
		}
		if err := pool.WithClient(context.Background(), cfg, func(c *client.Client) error {
			second = c
			return nil
		}); err != nil {
			t.Fatalf("WithClient returned error: %v", err)
		}

		if first != second {
			t.Error("Expected the second call to reuse the first client")
		}
		if got := atomic.LoadInt32(dials); got != 1 {
			t.Errorf("Expected 1 dial, got %d", got)
		}
	})

	t.Run("returns the callback error", func(t *testing.T) {
		pool, _ := countingPool(3)
		defer pool.Close()

		boom := errors.New("boom")
		err := pool.WithClient(context.Background(), cfg, func(*client.Client) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("Expected callback error, got %v", err)
		}
	})

	t.Run("waits for a free slot until the context ends", func(t *testing.T) {
		pool, _ := countingPool(1)
		defer pool.Close()

		holding := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = pool.WithClient(context.Background(), cfg, func(*client.Client) error {
				close(holding)
				<-release
				return nil
			})
		}()
		<-holding

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := pool.WithClient(ctx, cfg, func(*client.Client) error { return nil })
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}

		close(release)
	})

	t.Run("connection failure frees the slot", func(t *testing.T) {
		pool, _ := countingPool(1)
		defer pool.Close()

		bad := cfg
		bad.Password = "wrong"
		if err := pool.WithClient(context.Background(), bad, func(*client.Client) error { return nil }); !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("Expected ErrAuthFailed, got %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pool.WithClient(ctx, cfg, func(*client.Client) error { return nil }); err != nil {
			t.Errorf("Expected the slot to be free again, got %v", err)
		}
	})
}

func TestPool_CleanupIdleClients(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	cfg := testConnConfig(srv)

	pool, dials := countingPool(3)
	defer pool.Close()

	if err := pool.WithClient(context.Background(), cfg, func(*client.Client) error { return nil }); err != nil {
		t.Fatalf("WithClient returned error: %v", err)
	}

	pool.cleanupIdleClients(time.Now())
	pool.mu.RLock()
	_, kept := pool.workerSets[cfg.AccountID]
	pool.mu.RUnlock()
	if !kept {
		t.Fatal("Expected recently used client to be kept")
	}

	pool.cleanupIdleClients(time.Now().Add(workerIdleTimeout + time.Minute))
	pool.mu.RLock()
	_, kept = pool.workerSets[cfg.AccountID]
	pool.mu.RUnlock()
	if kept {
		t.Fatal("Expected idle client and its empty set to be removed")
	}

	if err := pool.WithClient(context.Background(), cfg, func(*client.Client) error { return nil }); err != nil {
		t.Fatalf("WithClient returned error: %v", err)
	}
	if got := atomic.LoadInt32(dials); got != 2 {
		t.Errorf("Expected a new dial after cleanup, got %d dials", got)
	}
}

func TestPool_RemoveAccount(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	cfg := testConnConfig(srv)

	pool, dials := countingPool(3)
	defer pool.Close()

	_ = pool.WithClient(context.Background(), cfg, func(*client.Client) error { return nil })

	listener, err := pool.getListenerClient(cfg)
	if err != nil {
		t.Fatalf("getListenerClient returned error: %v", err)
	}
	listener.Unlock()

	pool.RemoveAccount(cfg.AccountID)
	pool.RemoveAccount("unknown")

	pool.mu.RLock()
	workers, listeners := len(pool.workerSets), len(pool.listeners)
	pool.mu.RUnlock()
	if workers != 0 || listeners != 0 {
		t.Errorf("Expected no clients after RemoveAccount, got %d worker sets and %d listeners", workers, listeners)
	}

	_ = pool.WithClient(context.Background(), cfg, func(*client.Client) error { return nil })
	if got := atomic.LoadInt32(dials); got != 3 {
		t.Errorf("Expected 3 dials, got %d", got)
	}
}

func TestPool_ListenerClient(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	cfg := testConnConfig(srv)

	pool, _ := countingPool(3)
	defer pool.Close()

	first, err := pool.getListenerClient(cfg)
	if err != nil {
		t.Fatalf("getListenerClient returned error: %v", err)
	}
	first.Unlock()

	second, err := pool.getListenerClient(cfg)
	if err != nil {
		t.Fatalf("getListenerClient returned error: %v", err)
	}
	second.Unlock()

	if first != second {
		t.Error("Expected the listener to be reused")
	}
	if first.role != roleListener {
		t.Errorf("Expected listener role, got %v", first.role)
	}
}
