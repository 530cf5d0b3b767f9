package imap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleManager(t *testing.T) {
	var resolves atomic.Int32
	listener := NewIdleListener(NewPool(1), func(context.Context, string) (ConnConfig, error) {
		resolves.Add(1)
		return ConnConfig{}, errors.New("no settings")
	}, &fakeTrigger{}, nil)
	listener.sleep = 10 * time.Millisecond

	m := NewIdleManager(listener)
	defer m.listener.pool.Close()

	m.Ensure("acc1")
	m.Ensure("acc1")
	if !m.Running("acc1") {
		t.Fatal("expected listener to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for resolves.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if resolves.Load() == 0 {
		t.Fatal("expected the listener loop to run")
	}

	m.Stop("acc1")
	if m.Running("acc1") {
		t.Error("expected listener to be stopped")
	}

	m.Ensure("acc2")
	done := make(chan struct{})
	go func() {
		m.StopAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopAll did not return")
	}
	if m.Running("acc2") {
		t.Error("expected every listener to be stopped")
	}
}
