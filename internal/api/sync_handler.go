package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/models"
	"github.com/velomail/velo/backend/internal/syncer"
)

// SyncRunner starts sync runs.
type SyncRunner interface {
	Initial(ctx context.Context, accountID string, daysBack int) (int, error)
	Delta(ctx context.Context, accountID string) (int, error)
}

// SyncHandler triggers syncs of the authenticated account.
type SyncHandler struct {
	pool        *pgxpool.Pool
	runner      SyncRunner
	defaultDays int
	// background is the parent context of initial syncs, which outlive the request.
	background context.Context
	resolve    func(ctx context.Context, w http.ResponseWriter, pool *pgxpool.Pool) (string, bool)
}

// NewSyncHandler creates a SyncHandler. Initial syncs run under background.
func NewSyncHandler(background context.Context, pool *pgxpool.Pool, runner SyncRunner, defaultDays int) *SyncHandler {
	return &SyncHandler{
		pool:        pool,
		runner:      runner,
		defaultDays: defaultDays,
		background:  background,
		resolve:     GetAccountIDFromContext,
	}
}

// PostInitial starts an initial sync in the background and returns 202. Progress is pushed
// over the WebSocket. ?days=N limits how far back it goes.
func (h *SyncHandler) PostInitial(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	accountID, ok := h.resolve(r.Context(), w, h.pool)
	if !ok {
		return
	}

	days := h.defaultDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	go func() {
		stored, err := h.runner.Initial(h.background, accountID, days)
		if err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("initial sync failed")
			return
		}
		log.Info().Str("account_id", accountID).Int("stored", stored).Msg("initial sync finished")
	}()

	writeJSONStatus(w, http.StatusAccepted, models.SyncResponse{Status: "started"})
}

// PostDelta runs a delta sync and returns how many messages it stored.
func (h *SyncHandler) PostDelta(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	accountID, ok := h.resolve(r.Context(), w, h.pool)
	if !ok {
		return
	}

	stored, err := h.runner.Delta(r.Context(), accountID)
	if errors.Is(err, syncer.ErrAccountNotFound) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("delta sync failed")
		http.Error(w, "Sync failed", http.StatusBadGateway)
		return
	}

	WriteJSONResponse(w, models.SyncResponse{Status: "done", Stored: stored})
}
