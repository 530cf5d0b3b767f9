package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/imap"
)

// AttachmentCache stores attachment bytes on disk.
type AttachmentCache interface {
	Load(path string) ([]byte, bool)
	Cache(ctx context.Context, accountID, attachmentID string, data []byte) (string, error)
}

// AttachmentFetcher downloads one attachment part from the server.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, cfg imap.ConnConfig, folder string, uid uint32, partID string) ([]byte, error)
}

// ConnConfigResolver returns the connection settings of an account.
type ConnConfigResolver interface {
	ConnConfig(ctx context.Context, accountID string) (imap.ConnConfig, error)
}

// AttachmentsHandler serves attachment bytes, from the disk cache when possible.
type AttachmentsHandler struct {
	pool     *pgxpool.Pool
	cache    AttachmentCache
	fetcher  AttachmentFetcher
	accounts ConnConfigResolver
}

// NewAttachmentsHandler creates an AttachmentsHandler.
func NewAttachmentsHandler(pool *pgxpool.Pool, cache AttachmentCache, fetcher AttachmentFetcher, accounts ConnConfigResolver) *AttachmentsHandler {
	return &AttachmentsHandler{pool: pool, cache: cache, fetcher: fetcher, accounts: accounts}
}

// GetAttachment serves /api/v1/attachments/{id}.
func (h *AttachmentsHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := GetAccountIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	attachmentID := r.PathValue("id")
	if attachmentID == "" {
		http.Error(w, "attachment id is required", http.StatusBadRequest)
		return
	}

	att, err := db.GetAttachment(ctx, h.pool, accountID, attachmentID)
	if errors.Is(err, db.ErrAttachmentNotFound) {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("attachment_id", attachmentID).Msg("AttachmentsHandler: failed to get attachment")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data, ok := h.cachedBytes(att.LocalPath)
	if !ok {
		data, err = h.download(ctx, accountID, att.MessageID, att.PartID)
		if errors.Is(err, db.ErrMessageNotFound) {
			http.Error(w, "Attachment not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Str("attachment_id", attachmentID).Msg("AttachmentsHandler: failed to download attachment")
			http.Error(w, "Failed to download attachment", http.StatusBadGateway)
			return
		}
		if _, err := h.cache.Cache(ctx, accountID, att.ID, data); err != nil {
			log.Warn().Err(err).Str("attachment_id", attachmentID).Msg("AttachmentsHandler: failed to cache attachment")
		}
	}

	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	disposition := "attachment"
	if att.IsInline {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", contentDisposition(disposition, att.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warn().Err(err).Str("attachment_id", attachmentID).Msg("AttachmentsHandler: failed to write attachment")
	}
}

func (h *AttachmentsHandler) cachedBytes(localPath string) ([]byte, bool) {
	if localPath == "" {
		return nil, false
	}
	return h.cache.Load(localPath)
}

func (h *AttachmentsHandler) download(ctx context.Context, accountID, messageID, partID string) ([]byte, error) {
	msg, err := db.GetMessage(ctx, h.pool, accountID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IMAPFolder == "" || msg.IMAPUID == 0 {
		return nil, fmt.Errorf("message %s has no server location", messageID)
	}

	cfg, err := h.accounts.ConnConfig(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return h.fetcher.FetchAttachment(ctx, cfg, msg.IMAPFolder, msg.IMAPUID, partID)
}

func contentDisposition(disposition, filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return disposition
	}
	return mime.FormatMediaType(disposition, map[string]string{"filename": filename})
}
