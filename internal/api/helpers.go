package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/auth"
	"github.com/velomail/velo/backend/internal/db"
)

// GetAccountIDFromContext resolves the authenticated email to an account id, creating an empty
// account on first use. It writes the HTTP error itself and returns false on failure.
func GetAccountIDFromContext(ctx context.Context, w http.ResponseWriter, pool *pgxpool.Pool) (string, bool) {
	email, ok := auth.GetAccountEmailFromContext(ctx)
	if !ok {
		log.Debug().Msg("API: no account email in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	accountID, err := db.GetOrCreateAccount(ctx, pool, email)
	if err != nil {
		log.Error().Err(err).Msg("API: failed to resolve account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return "", false
	}

	return accountID, true
}

// ParsePaginationParams parses page and limit, falling back to page 1 and defaultLimit.
// limit is capped at maxLimit.
func ParsePaginationParams(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}

	return page, limit
}

// WriteJSONResponse encodes v into a buffer first so an encoding failure never leaves a
// partial body. It returns false if nothing could be written.
func WriteJSONResponse(w http.ResponseWriter, v any) bool {
	return writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("API: failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warn().Err(err).Msg("API: failed to write response")
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
