package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/models"
)

const (
	defaultThreadsPerPage = 50
	maxThreadsPerPage     = 200
)

// ThreadsHandler serves thread lists.
type ThreadsHandler struct {
	pool *pgxpool.Pool
}

// NewThreadsHandler creates a ThreadsHandler.
func NewThreadsHandler(pool *pgxpool.Pool) *ThreadsHandler {
	return &ThreadsHandler{pool: pool}
}

// BuildPaginationResponse wraps a page of threads.
func BuildPaginationResponse(threads []*models.Thread, totalCount, page, limit int) *models.ThreadsResponse {
	if threads == nil {
		threads = []*models.Thread{}
	}
	return &models.ThreadsResponse{
		Threads: threads,
		Pagination: models.PaginationInfo{
			TotalCount: totalCount,
			Page:       page,
			PerPage:    limit,
		},
	}
}

// GetThreads returns a page of the threads carrying ?label=ID (INBOX by default), newest first.
func (h *ThreadsHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := GetAccountIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	labelID := r.URL.Query().Get("label")
	if labelID == "" {
		labelID = models.LabelInbox
	}

	page, limit := ParsePaginationParams(r, defaultThreadsPerPage, maxThreadsPerPage)
	offset := (page - 1) * limit

	threads, err := db.ListThreadsByLabel(ctx, h.pool, accountID, labelID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("label", labelID).Msg("ThreadsHandler: failed to get threads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	totalCount, err := db.CountThreadsByLabel(ctx, h.pool, accountID, labelID)
	if err != nil {
		log.Error().Err(err).Str("label", labelID).Msg("ThreadsHandler: failed to count threads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, BuildPaginationResponse(threads, totalCount, page, limit))
}

// GetThread serves /api/v1/threads/{id}: the thread and a summary of each of its messages.
func (h *ThreadsHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := GetAccountIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	threadID := r.PathValue("id")
	if threadID == "" {
		http.Error(w, "thread id is required", http.StatusBadRequest)
		return
	}

	thread, err := db.GetThread(ctx, h.pool, accountID, threadID)
	if errors.Is(err, db.ErrThreadNotFound) {
		http.Error(w, "Thread not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("ThreadsHandler: failed to get thread")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	messages, err := db.GetThreadMemberSummaries(ctx, h.pool, accountID, threadID, nil)
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("ThreadsHandler: failed to get messages")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, models.ThreadDetailResponse{Thread: thread, Messages: messages})
}
