package imap

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAuthFailed is returned when the server rejects the credentials.
	ErrAuthFailed = errors.New("imap authentication failed")
	// ErrNoSuchMailbox is returned when a folder cannot be selected.
	ErrNoSuchMailbox = errors.New("no such mailbox")
)

// isConnectionError reports whether err means the session is unusable and should be dropped.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "imap: connection closed")
}

// isPermanent reports whether retrying err cannot help.
func isPermanent(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNoSuchMailbox) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs op with exponential backoff until it succeeds, fails permanently, or
// maxElapsed has passed. A maxElapsed of zero runs op once.
func withRetry(ctx context.Context, maxElapsed time.Duration, what string, op func() error) error {
	if maxElapsed <= 0 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsed

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("operation", what).Int("attempt", attempt).Dur("retry_in", wait).Msg("IMAP operation failed, retrying")
	})
}
