package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
)

// dialTimeout bounds the TCP connect and TLS handshake.
const dialTimeout = 5 * time.Second

// clientRole indicates the purpose of a client.
type clientRole int

const (
	// roleWorker clients serve fetches. There can be several per account.
	roleWorker clientRole = iota
	// roleListener clients sit in IDLE. There is at most one per account.
	roleListener
)

// threadSafeClient wraps an IMAP client with a mutex. Different clients can be used
// concurrently; use of the same client is serialized.
type threadSafeClient struct {
	client   *client.Client
	mu       sync.Mutex
	lastUsed time.Time
	role     clientRole
}

// Lock acquires the mutex for thread-safe access to the underlying client.
func (c *threadSafeClient) Lock() {
	c.mu.Lock()
}

// TryLock acquires the mutex if it is free.
func (c *threadSafeClient) TryLock() bool {
	return c.mu.TryLock()
}

// Unlock releases the mutex.
func (c *threadSafeClient) Unlock() {
	c.mu.Unlock()
}

// GetClient returns the underlying IMAP client. Caller must hold the lock.
func (c *threadSafeClient) GetClient() *client.Client {
	return c.client
}

// UpdateLastUsed updates the lastUsed timestamp to now.
func (c *threadSafeClient) UpdateLastUsed() {
	c.lastUsed = time.Now()
}

// GetLastUsed returns the lastUsed timestamp.
func (c *threadSafeClient) GetLastUsed() time.Time {
	return c.lastUsed
}

// Dial opens a connection using the security level of cfg.
func Dial(cfg ConnConfig) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	switch cfg.Security {
	case SecurityNone:
		c, err := client.DialWithDialer(dialer, cfg.Address())
		if err != nil {
			return nil, fmt.Errorf("failed to dial: %w", err)
		}
		return c, nil
	case SecuritySTARTTLS:
		c, err := client.DialWithDialer(dialer, cfg.Address())
		if err != nil {
			return nil, fmt.Errorf("failed to dial: %w", err)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
		return c, nil
	default:
		c, err := client.DialWithDialerTLS(dialer, cfg.Address(), tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	return nil
}

// connect dials and logs in, closing the connection if login fails.
func connect(cfg ConnConfig) (*client.Client, error) {
	c, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	if err := Login(c, cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	return c, nil
}
