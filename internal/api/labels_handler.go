package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/models"
)

// LabelsHandler lists the labels of the authenticated account.
type LabelsHandler struct {
	pool *pgxpool.Pool
}

// NewLabelsHandler creates a LabelsHandler.
func NewLabelsHandler(pool *pgxpool.Pool) *LabelsHandler {
	return &LabelsHandler{pool: pool}
}

// GetLabels returns every label with its thread and unread counters.
func (h *LabelsHandler) GetLabels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := GetAccountIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	labels, err := db.ListLabels(ctx, h.pool, accountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("LabelsHandler: failed to list labels")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if labels == nil {
		labels = []*models.Label{}
	}

	WriteJSONResponse(w, labels)
}
