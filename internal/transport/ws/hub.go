// Package ws fans chat and session events out to websocket clients grouped in rooms.
//
// Every socket joins its user's room on connect. Clients join conversation rooms with
//
//	{"type":"joinRoom","conversationId":"<uuid>"}
//
// and receive frames shaped {"event":"onMessage","data":{...}}.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"messenger/internal/domain"
	"messenger/internal/events"
	"messenger/internal/httpx"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
	sendBuffer     = 32
)

type authorizer interface {
	Authorize(ctx context.Context, rawHeader string) (*domain.User, error)
	AuthorizeToken(ctx context.Context, token string) (*domain.User, error)
}

type participantChecker interface {
	IsParticipant(ctx context.Context, convID domain.ConversationID, userID domain.UserID) (bool, error)
}

// Frame is the envelope of every server-to-client message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type outbound struct {
	payload []byte
	// final frames are followed by a close handshake
	final bool
}

type client struct {
	conn   *websocket.Conn
	userID string
	send   chan outbound
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

type Hub struct {
	gate     authorizer
	chat     participantChecker
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub builds a hub. allowedOrigins mirrors the CORS list; "*" or empty accepts any origin.
func NewHub(gate authorizer, chat participantChecker, allowedOrigins []string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		gate:  gate,
		chat:  chat,
		log:   log,
		rooms: make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Publish delivers event to every socket in room. Slow sockets whose buffer is full are dropped.
// A sessionRevoked event closes the sockets it reaches once the frame is written.
func (h *Hub) Publish(room, event string, payload any) {
	msg, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		h.log.Error("ws marshal failed", "event", event, "err", err)
		return
	}
	out := outbound{payload: msg, final: event == events.NameSessionRevoked}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- out:
		case <-c.done:
		default:
			h.log.Warn("ws client too slow, dropping", "user_id", c.userID, "room", room)
			c.stop()
		}
	}
}

// ClientCount reports how many sockets are in room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) join(room string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

func (h *Hub) leave(room string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) leaveAll(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// ServeHTTP handles GET /ws. The bearer comes from the Authorization header or the
// access_token query parameter, since browsers cannot set headers on websocket requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		u   *domain.User
		err error
	)
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		u, err = h.gate.AuthorizeToken(r.Context(), tok)
	} else {
		u, err = h.gate.Authorize(r.Context(), r.Header.Get("Authorization"))
	}
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", "err", err)
		return
	}
	c := &client{
		conn:   conn,
		userID: u.ID.String(),
		send:   make(chan outbound, sendBuffer),
		done:   make(chan struct{}),
	}
	h.join(events.UserRoom(c.userID), c)
	h.log.Debug("ws client connected", "user_id", c.userID)

	go h.writePump(c)
	h.readPump(context.WithoutCancel(r.Context()), c, u.ID)
}

func (h *Hub) readPump(ctx context.Context, c *client, userID domain.UserID) {
	defer func() {
		h.leaveAll(c)
		c.stop()
		h.log.Debug("ws client disconnected", "user_id", c.userID)
	}()
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("ws read error", "user_id", c.userID, "err", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(c, "error", map[string]string{"message": "Malformed message"})
			continue
		}
		switch msg.Type {
		case "joinRoom":
			h.handleJoin(ctx, c, userID, msg.ConversationID)
		case "leaveRoom":
			if id, err := uuid.Parse(msg.ConversationID); err == nil {
				h.leave(id.String(), c)
			}
		case "ping":
			h.reply(c, "pong", nil)
		default:
			h.reply(c, "error", map[string]string{"message": "Unknown message type"})
		}
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *client, userID domain.UserID, rawID string) {
	convID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		h.reply(c, "error", map[string]string{"message": "Invalid conversation id"})
		return
	}
	ok, err := h.chat.IsParticipant(ctx, convID, userID)
	if err != nil {
		h.log.Warn("ws participant check failed", "user_id", c.userID, "conversation_id", convID, "err", err)
		h.reply(c, "error", map[string]string{"message": "Could not join conversation"})
		return
	}
	if !ok {
		h.reply(c, "error", map[string]string{"message": domain.ErrConversationAccess.Message})
		return
	}
	h.join(convID.String(), c)
	h.reply(c, "joinedRoom", map[string]string{"conversationId": convID.String()})
}

func (h *Hub) reply(c *client, event string, data any) {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- outbound{payload: msg}:
	case <-c.done:
	default:
		c.stop()
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case out := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, out.payload); err != nil {
				c.stop()
				return
			}
			if out.final {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session revoked"),
					time.Now().Add(writeWait))
				c.stop()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
