package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/auth"
	"github.com/velomail/velo/backend/internal/db"
	ws "github.com/velomail/velo/backend/internal/websocket"
)

// IdleStarter keeps a push listener running for an account.
type IdleStarter interface {
	Ensure(accountID string)
}

// DeltaRunner runs a delta sync for one account.
type DeltaRunner interface {
	Delta(ctx context.Context, accountID string) (int, error)
}

// WebSocketHandler handles /api/v1/ws, over which sync progress and new-mail events are pushed.
type WebSocketHandler struct {
	pool       *pgxpool.Pool
	validator  *auth.Validator
	hub        *ws.Hub
	idle       IdleStarter
	delta      DeltaRunner
	background context.Context
}

// NewWebSocketHandler creates a WebSocketHandler. Catch-up syncs run under background.
func NewWebSocketHandler(
	background context.Context,
	pool *pgxpool.Pool,
	validator *auth.Validator,
	hub *ws.Hub,
	idle IdleStarter,
	delta DeltaRunner,
) *WebSocketHandler {
	return &WebSocketHandler{
		pool:       pool,
		validator:  validator,
		hub:        hub,
		idle:       idle,
		delta:      delta,
		background: background,
	}
}

var wsUpgrader = websocket.Upgrader{
	// Served behind a reverse proxy that enforces origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and registers the connection. Browsers cannot set headers
// on WebSocket requests, so the token may come as ?token=... as well.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		log.Debug().Msg("WebSocketHandler: no token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	email, err := h.validator.ValidateToken(token)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocketHandler: token rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accountID, err := db.GetOrCreateAccount(ctx, h.pool, email)
	if err != nil {
		log.Error().Err(err).Msg("WebSocketHandler: failed to resolve account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("WebSocketHandler: upgrade failed")
		return
	}

	isFirstConnection := h.hub.ActiveConnections(accountID) == 0

	client := h.hub.Register(accountID, conn)
	if client == nil {
		return
	}
	log.Debug().Str("account_id", accountID).Msg("WebSocketHandler: connection established")

	if h.idle != nil {
		h.idle.Ensure(accountID)
	}

	// Mail may have arrived while nobody was listening.
	if isFirstConnection && h.delta != nil {
		go func() {
			if _, err := h.delta.Delta(h.background, accountID); err != nil {
				log.Warn().Err(err).Str("account_id", accountID).Msg("WebSocketHandler: catch-up sync failed")
			}
		}()
	}

	go h.readLoop(accountID, client)
}

// readLoop drains the connection until it closes. The push listener keeps running so the
// mirror stays fresh for scheduled work.
func (h *WebSocketHandler) readLoop(accountID string, client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(accountID, client)
}
