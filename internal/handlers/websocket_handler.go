package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rag-chat/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// wsEvent is the wire format for both directions of the websocket.
type wsEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	UseRAG    *bool       `json:"use_rag,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type wsClient struct {
	conn *websocket.Conn
	// write serializes writes; gorilla connections allow one concurrent writer
	write sync.Mutex
	// sessions this client has joined
	sessions map[string]bool
}

func (c *wsClient) send(event wsEvent) error {
	c.write.Lock()
	defer c.write.Unlock()
	return c.conn.WriteJSON(event)
}

// WebSocketHandler bridges chat sessions onto websocket connections.
// Clients join sessions by id and receive every message broadcast to them.
type WebSocketHandler struct {
	chatService *services.ChatService
	logger      *log.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool
	// session id -> subscribed clients
	rooms map[string]map[*wsClient]bool
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(chatService *services.ChatService, logger *log.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		logger:      logger,
		clients:     make(map[*wsClient]bool),
		rooms:       make(map[string]map[*wsClient]bool),
	}
}

// HandleConnection upgrades the request and runs the read loop
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, sessions: make(map[string]bool)}
	h.register(client)
	defer h.unregister(client)
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var event wsEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			h.sendError(client, "", "invalid message format")
			continue
		}

		h.handleEvent(r.Context(), client, event)
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, client *wsClient, event wsEvent) {
	switch event.Type {
	case "join_session":
		h.joinSession(client, event.SessionID)
	case "leave_session":
		h.leaveSession(client, event.SessionID)
	case "send_message":
		h.handleChatMessage(ctx, client, event)
	case "ping":
		client.send(wsEvent{Type: "pong", Timestamp: time.Now().UTC()})
	default:
		h.sendError(client, event.SessionID, "unknown event type: "+event.Type)
	}
}

func (h *WebSocketHandler) joinSession(client *wsClient, sessionID string) {
	if sessionID == "" {
		h.sendError(client, "", "session_id is required")
		return
	}
	if _, err := h.chatService.GetSession(sessionID); err != nil {
		h.sendError(client, sessionID, err.Error())
		return
	}

	h.mu.Lock()
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[*wsClient]bool)
	}
	h.rooms[sessionID][client] = true
	client.sessions[sessionID] = true
	h.mu.Unlock()

	client.send(wsEvent{Type: "session_joined", SessionID: sessionID, Timestamp: time.Now().UTC()})
}

func (h *WebSocketHandler) leaveSession(client *wsClient, sessionID string) {
	h.mu.Lock()
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	delete(client.sessions, sessionID)
	h.mu.Unlock()

	client.send(wsEvent{Type: "session_left", SessionID: sessionID, Timestamp: time.Now().UTC()})
}

func (h *WebSocketHandler) handleChatMessage(ctx context.Context, client *wsClient, event wsEvent) {
	if event.SessionID == "" || event.Content == "" {
		h.sendError(client, event.SessionID, "session_id and content are required")
		return
	}

	useRAG := true
	if event.UseRAG != nil {
		useRAG = *event.UseRAG
	}

	h.broadcast(event.SessionID, wsEvent{
		Type:      "user_message",
		SessionID: event.SessionID,
		Content:   event.Content,
		Timestamp: time.Now().UTC(),
	})

	result, err := h.chatService.GenerateResponse(ctx, event.SessionID, event.Content, useRAG, "")
	if err != nil {
		h.logger.Printf("WebSocket chat failed for session %s: %v", event.SessionID, err)
		h.broadcast(event.SessionID, wsEvent{
			Type:      "error",
			SessionID: event.SessionID,
			Content:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	h.broadcast(event.SessionID, wsEvent{
		Type:      "ai_response",
		SessionID: event.SessionID,
		Content:   result.Response,
		Data:      result,
		Timestamp: time.Now().UTC(),
	})
}

func (h *WebSocketHandler) broadcast(sessionID string, event wsEvent) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[sessionID]))
	for c := range h.rooms[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(event); err != nil {
			h.logger.Printf("WebSocket write failed: %v", err)
		}
	}
}

func (h *WebSocketHandler) sendError(client *wsClient, sessionID, message string) {
	if err := client.send(wsEvent{
		Type:      "error",
		SessionID: sessionID,
		Content:   message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		h.logger.Printf("WebSocket write failed: %v", err)
	}
}

func (h *WebSocketHandler) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *WebSocketHandler) unregister(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	for sessionID := range client.sessions {
		if room, ok := h.rooms[sessionID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, sessionID)
			}
		}
	}
	h.mu.Unlock()
}
