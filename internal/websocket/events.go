package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/models"
)

// Event types sent to clients.
const (
	EventSyncProgress = "sync_progress"
	EventSyncDone     = "sync_done"
)

// ProgressEvent is the payload of a sync progress push.
type ProgressEvent struct {
	Type    string           `json:"type"`
	Phase   models.SyncPhase `json:"phase"`
	Current int              `json:"current"`
	Total   int              `json:"total"`
	Folder  string           `json:"folder,omitempty"`
}

// SyncDoneEvent tells clients a sync stored new messages and lists should be reloaded.
type SyncDoneEvent struct {
	Type   string `json:"type"`
	Stored int    `json:"stored"`
}

// SendProgress pushes a sync progress event to the account's connections.
func (h *Hub) SendProgress(accountID string, p models.SyncProgress) {
	h.sendJSON(accountID, ProgressEvent{
		Type:    EventSyncProgress,
		Phase:   p.Phase,
		Current: p.Current,
		Total:   p.Total,
		Folder:  p.Folder,
	})
}

// SendSyncDone pushes a sync completion event.
func (h *Hub) SendSyncDone(accountID string, stored int) {
	h.sendJSON(accountID, SyncDoneEvent{Type: EventSyncDone, Stored: stored})
}

func (h *Hub) sendJSON(accountID string, v any) {
	if h.ActiveConnections(accountID) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal websocket event")
		return
	}
	h.Send(accountID, payload)
}
