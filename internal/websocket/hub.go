// Package websocket pushes sync progress and new-mail events to connected clients.
package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxPerAccount = 10
	writeTimeout         = 10 * time.Second
)

// Client wraps one WebSocket connection. Writes are serialized because a gorilla connection
// supports only one concurrent writer.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Conn returns the underlying connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub tracks the open connections of each account. An account may have several (one per
// browser tab).
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]map[*Client]struct{}
	maxPerAccount int
}

// NewHub creates a Hub with a per-account connection limit.
func NewHub(maxPerAccount int) *Hub {
	if maxPerAccount <= 0 {
		maxPerAccount = defaultMaxPerAccount
	}
	return &Hub{
		clients:       make(map[string]map[*Client]struct{}),
		maxPerAccount: maxPerAccount,
	}
}

// Register adds a connection for the account. Over the limit the connection is closed with a
// policy violation and nil is returned.
func (h *Hub) Register(accountID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	accountClients, ok := h.clients[accountID]
	if !ok {
		accountClients = make(map[*Client]struct{})
		h.clients[accountID] = accountClients
	}

	if len(accountClients) >= h.maxPerAccount {
		log.Warn().
			Str("account_id", accountID).
			Int("limit", h.maxPerAccount).
			Msg("websocket connection limit reached, closing new connection")
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this account"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	accountClients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(accountID string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	if accountClients, ok := h.clients[accountID]; ok {
		delete(accountClients, client)
		if len(accountClients) == 0 {
			delete(h.clients, accountID)
		}
	}
	h.mu.Unlock()

	_ = client.conn.Close()
}

// Send writes msg to every connection of the account. A connection that fails is dropped.
func (h *Hub) Send(accountID string, msg []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[accountID]))
	for client := range h.clients[accountID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.write(msg); err != nil {
			log.Debug().Err(err).Str("account_id", accountID).Msg("websocket write failed, dropping connection")
			h.Unregister(accountID, client)
		}
	}
}

// ActiveConnections returns the number of open connections of an account.
func (h *Hub) ActiveConnections(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[accountID])
}
