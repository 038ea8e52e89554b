package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rag-chat/internal/services"
)

// SessionHandler handles HTTP requests for chat session management
type SessionHandler struct {
	chatService *services.ChatService
	logger      *log.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(chatService *services.ChatService, logger *log.Logger) *SessionHandler {
	return &SessionHandler{
		chatService: chatService,
		logger:      logger,
	}
}

type createSessionRequest struct {
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
}

type updatePromptRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

// CreateSession handles session creation
// @Summary Create a chat session
// @Description Create a new chat session with an optional system prompt and settings
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body createSessionRequest false "Session options"
// @Success 201 {object} models.ChatSession
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var reqBody createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	session := h.chatService.CreateSession(reqBody.SystemPrompt, reqBody.Settings)
	writeJSON(w, http.StatusCreated, session)
}

// ListSessions returns metadata for all sessions
// @Summary List chat sessions
// @Tags sessions
// @Produce json
// @Success 200 {array} models.SessionInfo
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.ListSessions())
}

// GetSession returns one full session
// @Summary Get a chat session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.ChatSession
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.chatService.GetSession(sessionID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// DeleteSession removes a session
// @Summary Delete a chat session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if !h.chatService.DeleteSession(sessionID) {
		writeError(w, http.StatusNotFound, "session not found: "+sessionID)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Session deleted"})
}

// GetHistory returns a session's recent messages
// @Summary Get conversation history
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param limit query int false "Maximum messages to return"
// @Success 200 {array} models.ChatMessage
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/history [get]
func (h *SessionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	messages, err := h.chatService.GetHistory(sessionID, limit)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// ClearConversation drops a session's non-system messages
// @Summary Clear conversation history
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/clear [post]
func (h *SessionHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.chatService.ClearConversation(sessionID); err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Conversation cleared"})
}

// UpdateSystemPrompt replaces a session's system prompt
// @Summary Update system prompt
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param prompt body updatePromptRequest true "New system prompt"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/prompt [put]
func (h *SessionHandler) UpdateSystemPrompt(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var reqBody updatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if reqBody.SystemPrompt == "" {
		writeError(w, http.StatusBadRequest, "system_prompt is required")
		return
	}

	if err := h.chatService.UpdateSystemPrompt(sessionID, reqBody.SystemPrompt); err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "System prompt updated"})
}

// UpdateSettings merges new settings into a session
// @Summary Update session settings
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param settings body map[string]interface{} true "Settings to merge"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/settings [put]
func (h *SessionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var settings map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.chatService.UpdateSettings(sessionID, settings); err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Settings updated"})
}

// GetStatistics returns per-session counters
// @Summary Get session statistics
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionStats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/statistics [get]
func (h *SessionHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	stats, err := h.chatService.GetStatistics(sessionID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export renders a session transcript
// @Summary Export a conversation
// @Description Export a session as json, txt or md
// @Tags sessions
// @Produce plain
// @Param id path string true "Session ID"
// @Param format query string false "Export format" default(json)
// @Success 200 {string} string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/export [get]
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	out, err := h.chatService.Export(sessionID, format)
	if err != nil {
		var notFound *services.SessionNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := "text/plain; charset=utf-8"
	if format == "json" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, err error) {
	var notFound *services.SessionNotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Printf("Session operation failed: %v", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
