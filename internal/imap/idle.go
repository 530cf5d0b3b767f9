package imap

import (
	"context"
	"encoding/json"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"
)

const (
	// idleListenerSleep is the pause after an error before IDLE is retried.
	idleListenerSleep = 10 * time.Second
	// idlePollInterval is used by servers without IDLE support.
	idlePollInterval = 1 * time.Minute
)

// DeltaTrigger runs an incremental sync of an account and reports how many messages it stored.
type DeltaTrigger interface {
	Delta(ctx context.Context, accountID string) (int, error)
}

// Notifier pushes an event to the account's connected clients.
type Notifier interface {
	Send(accountID string, payload []byte)
}

// ConfigResolver returns the connection settings of an account.
type ConfigResolver func(ctx context.Context, accountID string) (ConnConfig, error)

// IdleListener keeps one IDLE session per account on INBOX and runs a delta sync whenever the
// mailbox grows.
type IdleListener struct {
	pool     *Pool
	resolve  ConfigResolver
	trigger  DeltaTrigger
	notifier Notifier
	sleep    time.Duration
}

// NewIdleListener creates a listener. notifier may be nil.
func NewIdleListener(pool *Pool, resolve ConfigResolver, trigger DeltaTrigger, notifier Notifier) *IdleListener {
	return &IdleListener{
		pool:     pool,
		resolve:  resolve,
		trigger:  trigger,
		notifier: notifier,
		sleep:    idleListenerSleep,
	}
}

// Run listens for the account until ctx is canceled.
func (l *IdleListener) Run(ctx context.Context, accountID string) {
	logger := log.With().Str("account_id", accountID).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		cfg, err := l.resolve(ctx, accountID)
		if err != nil {
			logger.Warn().Err(err).Msg("IMAP IDLE: failed to resolve account settings")
			l.wait(ctx)
			continue
		}

		listener, err := l.pool.getListenerClient(cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("IMAP IDLE: failed to get listener connection")
			l.wait(ctx)
			continue
		}

		func() {
			defer listener.Unlock()
			l.runIdleLoop(ctx, accountID, listener)
		}()

		l.wait(ctx)
	}
}

func (l *IdleListener) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(l.sleep):
	}
}

// runIdleLoop idles on INBOX until ctx is canceled or the session breaks.
func (l *IdleListener) runIdleLoop(ctx context.Context, accountID string, listener *threadSafeClient) {
	client := listener.GetClient()
	logger := log.With().Str("account_id", accountID).Logger()

	if _, err := client.Select("INBOX", true); err != nil {
		logger.Warn().Err(err).Msg("IMAP IDLE: failed to select INBOX")
		go l.pool.removeListener(accountID, listener)
		return
	}

	idleClient := idle.NewClient(client)

	updates := make(chan imapclient.Update, 10)
	client.Updates = updates
	defer func() { client.Updates = nil }()

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, idlePollInterval)
	}()

	signal, stopWorker := l.startNewMailWorker(ctx, accountID)
	defer stopWorker()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			<-done
			return
		case err := <-done:
			if err != nil {
				logger.Warn().Err(err).Msg("IMAP IDLE: idle loop ended with error")
				go l.pool.removeListener(accountID, listener)
			}
			return
		case update := <-updates:
			if isNewMailUpdate(update) {
				signal()
			}
		}
	}
}

// startNewMailWorker runs delta syncs off the IDLE session, one at a time. Signals that arrive
// while a sync runs collapse into a single follow-up sync. signal never blocks and must not be
// called after stop.
func (l *IdleListener) startNewMailWorker(ctx context.Context, accountID string) (signal func(), stop func()) {
	pending := make(chan struct{}, 1)
	go func() {
		for range pending {
			l.handleNewMail(ctx, accountID)
		}
	}()

	signal = func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}
	return signal, func() { close(pending) }
}

// isNewMailUpdate reports whether an unsolicited update announces messages in INBOX.
func isNewMailUpdate(update imapclient.Update) bool {
	mboxUpdate, ok := update.(*imapclient.MailboxUpdate)
	if !ok || mboxUpdate.Mailbox == nil {
		return false
	}
	return mboxUpdate.Mailbox.Name == "INBOX" && mboxUpdate.Mailbox.Messages > 0
}

// handleNewMail runs a delta sync and tells the account's clients when it stored anything.
func (l *IdleListener) handleNewMail(ctx context.Context, accountID string) {
	stored, err := l.trigger.Delta(ctx, accountID)
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("IMAP IDLE: delta sync failed")
		return
	}
	if stored == 0 || l.notifier == nil {
		return
	}

	payload, err := json.Marshal(struct {
		Type   string `json:"type"`
		Folder string `json:"folder"`
		Count  int    `json:"count"`
	}{
		Type:   "new_email",
		Folder: "INBOX",
		Count:  stored,
	})
	if err != nil {
		log.Error().Err(err).Msg("IMAP IDLE: failed to marshal new_email message")
		return
	}
	l.notifier.Send(accountID, payload)
}
