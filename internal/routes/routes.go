package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"rag-chat/internal/handlers"
)

// Handlers bundles every handler the router mounts
type Handlers struct {
	Health    *handlers.HealthHandler
	Sessions  *handlers.SessionHandler
	Chat      *handlers.ChatHandler
	Documents *handlers.DocumentHandler
	WebSocket *handlers.WebSocketHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Health endpoints
	router.HandleFunc("/health", h.Health.Liveness).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", h.Health.Readiness).Methods(http.MethodGet)

	// Session management
	api.HandleFunc("/sessions", h.Sessions.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.Sessions.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.Sessions.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.Sessions.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/history", h.Sessions.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/clear", h.Sessions.ClearConversation).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/prompt", h.Sessions.UpdateSystemPrompt).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/settings", h.Sessions.UpdateSettings).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/statistics", h.Sessions.GetStatistics).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/export", h.Sessions.Export).Methods(http.MethodGet)

	// Chat
	api.HandleFunc("/sessions/{id}/chat", h.Chat.SendMessage).Methods(http.MethodPost)

	// Documents
	api.HandleFunc("/documents", h.Documents.List).Methods(http.MethodGet)
	api.HandleFunc("/documents/upload", h.Documents.Upload).Methods(http.MethodPost)
	api.HandleFunc("/documents/search", h.Documents.Search).Methods(http.MethodPost)
	api.HandleFunc("/documents/search", h.Documents.SearchSimple).Methods(http.MethodGet)
	api.HandleFunc("/documents/statistics", h.Documents.Statistics).Methods(http.MethodGet)
	api.HandleFunc("/documents/clear", h.Documents.ClearAll).Methods(http.MethodPost)
	api.HandleFunc("/documents/chunks/{id}/similar", h.Documents.GetSimilar).Methods(http.MethodGet)
	api.HandleFunc("/documents/{source}", h.Documents.Delete).Methods(http.MethodDelete)

	// WebSocket chat
	router.HandleFunc("/ws", h.WebSocket.HandleConnection)
}
