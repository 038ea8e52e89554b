package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"rag-chat/internal/services"
)

// ChatHandler handles HTTP chat-turn submission
type ChatHandler struct {
	chatService *services.ChatService
	logger      *log.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *services.ChatService, logger *log.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

type chatRequest struct {
	Message  string `json:"message"`
	UseRAG   *bool  `json:"use_rag,omitempty"`
	RAGQuery string `json:"rag_query,omitempty"`
}

// SendMessage submits one chat turn and returns the assistant reply
// @Summary Send a chat message
// @Description Append a user message, retrieve document context and generate an assistant reply
// @Tags chat
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param message body chatRequest true "Chat message"
// @Success 200 {object} models.ChatResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/chat [post]
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var reqBody chatRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if reqBody.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	useRAG := true
	if reqBody.UseRAG != nil {
		useRAG = *reqBody.UseRAG
	}

	result, err := h.chatService.GenerateResponse(r.Context(), sessionID, reqBody.Message, useRAG, reqBody.RAGQuery)
	if err != nil {
		var notFound *services.SessionNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Printf("Chat turn failed for session %s: %v", sessionID, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
