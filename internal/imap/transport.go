package imap

import (
	"context"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/velomail/velo/backend/internal/models"
)

// Transport is the inbound mail transport over IMAP. Every call borrows a worker client from
// the pool and is retried with backoff on transient failures.
type Transport struct {
	pool            *Pool
	retryMaxElapsed time.Duration
}

// NewTransport creates a transport on top of pool. retryMaxElapsed bounds the retries of a
// single call; zero disables retries.
func NewTransport(pool *Pool, retryMaxElapsed time.Duration) *Transport {
	return &Transport{
		pool:            pool,
		retryMaxElapsed: retryMaxElapsed,
	}
}

func (t *Transport) do(ctx context.Context, cfg ConnConfig, what string, fn func(c *client.Client) error) error {
	return withRetry(ctx, t.retryMaxElapsed, what, func() error {
		return t.pool.WithClient(ctx, cfg, fn)
	})
}

// ListFolders lists all folders of the account with their counts.
func (t *Transport) ListFolders(ctx context.Context, cfg ConnConfig) ([]models.RemoteFolder, error) {
	var folders []models.RemoteFolder
	err := t.do(ctx, cfg, "list folders", func(c *client.Client) error {
		var err error
		folders, err = listFolders(c)
		return err
	})
	return folders, err
}

// GetFolderStatus returns the UID validity, next UID and counts of a folder.
func (t *Transport) GetFolderStatus(ctx context.Context, cfg ConnConfig, folder string) (models.FolderStatus, error) {
	var status models.FolderStatus
	err := t.do(ctx, cfg, "folder status", func(c *client.Client) error {
		var err error
		status, err = folderStatus(c, folder)
		return err
	})
	return status, err
}

// SearchAllUIDs returns the UIDs of a folder received since the given day, newest first. A zero
// since returns every UID.
func (t *Transport) SearchAllUIDs(ctx context.Context, cfg ConnConfig, folder string, since time.Time) ([]uint32, error) {
	var uids []uint32
	err := t.do(ctx, cfg, "search all", func(c *client.Client) error {
		var err error
		uids, err = searchAllUIDs(c, folder, since)
		return err
	})
	return uids, err
}

// FetchNewUIDs returns the UIDs of a folder above lastUID, ascending.
func (t *Transport) FetchNewUIDs(ctx context.Context, cfg ConnConfig, folder string, lastUID uint32) ([]uint32, error) {
	var uids []uint32
	err := t.do(ctx, cfg, "search new", func(c *client.Client) error {
		var err error
		uids, err = fetchNewUIDs(c, folder, lastUID)
		return err
	})
	return uids, err
}

// FetchMessages fetches and parses the given UIDs of a folder.
func (t *Transport) FetchMessages(ctx context.Context, cfg ConnConfig, folder string, uids []uint32) (*models.FetchResult, error) {
	var result *models.FetchResult
	err := t.do(ctx, cfg, "fetch messages", func(c *client.Client) error {
		var err error
		result, err = fetchMessages(c, folder, uids)
		return err
	})
	return result, err
}

// FetchAttachment returns the content of one attachment part of a message.
func (t *Transport) FetchAttachment(ctx context.Context, cfg ConnConfig, folder string, uid uint32, partID string) ([]byte, error) {
	var data []byte
	err := t.do(ctx, cfg, "fetch attachment", func(c *client.Client) error {
		var err error
		data, err = fetchAttachment(c, folder, uid, partID)
		return err
	})
	return data, err
}

// Forget closes every session of an account, e.g. after its credentials changed.
func (t *Transport) Forget(accountID string) {
	t.pool.RemoveAccount(accountID)
}
