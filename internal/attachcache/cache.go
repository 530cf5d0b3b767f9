// Package attachcache keeps downloaded attachment bytes on local disk, bounded by a size limit.
package attachcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
)

// evictBatchSize is the number of cached files considered per eviction query.
const evictBatchSize = 100

// fileNamespace scopes the file names derived from attachment ids.
var fileNamespace = uuid.MustParse("0b6f3c7e-3d55-4c1e-9a63-5f0f0c9a2e41")

// Store is the attachment cache bookkeeping in the database.
type Store interface {
	SetAttachmentCached(ctx context.Context, accountID, attachmentID, localPath string, size, cachedAt int64) error
	ClearAttachmentCache(ctx context.Context, accountID, attachmentID string) error
	GetOldestCachedAttachments(ctx context.Context, limit int) ([]db.CachedAttachment, error)
	GetCacheSize(ctx context.Context) (int64, error)
}

// Manager writes attachments under dir and evicts the oldest ones once the cache grows past
// maxBytes.
type Manager struct {
	store    Store
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewManager creates a Manager. The directory is created on first write.
func NewManager(store Store, dir string, maxBytes int64) *Manager {
	return &Manager{
		store:    store,
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// PathFor returns where an attachment is cached. Attachment ids contain folder names, so the
// file name is derived from the id rather than being the id.
func (m *Manager) PathFor(accountID, attachmentID string) string {
	name := uuid.NewSHA1(fileNamespace, []byte(attachmentID)).String()
	return filepath.Join(m.dir, accountID, name)
}

// Cache writes data to disk and records it in the database. It returns the file path.
func (m *Manager) Cache(ctx context.Context, accountID, attachmentID string, data []byte) (string, error) {
	path := m.PathFor(accountID, attachmentID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Write then rename so a reader never sees a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write cached attachment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move cached attachment into place: %w", err)
	}

	if err := m.store.SetAttachmentCached(ctx, accountID, attachmentID, path, int64(len(data)), m.now().Unix()); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	return path, nil
}

// Load reads a cached file. It reports false when the file is gone.
func (m *Manager) Load(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("failed to read cached attachment")
		}
		return nil, false
	}
	return data, true
}

// Size returns the total bytes the database records as cached.
func (m *Manager) Size(ctx context.Context) (int64, error) {
	return m.store.GetCacheSize(ctx)
}

// EvictOldest deletes the oldest cached files until the cache fits under the limit and returns
// the number of bytes freed.
func (m *Manager) EvictOldest(ctx context.Context) (int64, error) {
	size, err := m.store.GetCacheSize(ctx)
	if err != nil {
		return 0, err
	}
	if size <= m.maxBytes {
		return 0, nil
	}

	excess := size - m.maxBytes
	var freed int64

	for freed < excess {
		if err := ctx.Err(); err != nil {
			return freed, err
		}

		oldest, err := m.store.GetOldestCachedAttachments(ctx, evictBatchSize)
		if err != nil {
			return freed, err
		}
		if len(oldest) == 0 {
			break
		}

		for _, c := range oldest {
			if freed >= excess {
				break
			}
			if err := os.Remove(c.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("path", c.LocalPath).Msg("failed to remove cached attachment")
			}
			if err := m.store.ClearAttachmentCache(ctx, c.AccountID, c.ID); err != nil {
				return freed, err
			}
			freed += c.Size
		}
	}

	log.Info().Int64("freed_bytes", freed).Int64("max_bytes", m.maxBytes).Msg("evicted cached attachments")
	return freed, nil
}
