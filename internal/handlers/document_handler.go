package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rag-chat/internal/models"
	"rag-chat/internal/repositories"
	"rag-chat/internal/services"
)

// DocumentHandler handles HTTP requests for document upload and retrieval
type DocumentHandler struct {
	documentService *services.DocumentService
	maxUploadBytes  int64
	logger          *log.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService *services.DocumentService, maxUploadBytes int64, logger *log.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

type searchRequest struct {
	Query  string                 `json:"query"`
	Limit  int                    `json:"limit,omitempty"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// Upload ingests one multipart file upload
// @Summary Upload a document
// @Description Upload a file to be extracted, chunked and indexed for retrieval
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Success 201 {object} models.UploadResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/upload [post]
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	h.logger.Printf("Upload request: %s (%d bytes)", header.Filename, header.Size)

	result, err := h.documentService.Upload(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		h.writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// List returns every indexed document grouped by source file
// @Summary List documents
// @Tags documents
// @Produce json
// @Success 200 {array} services.DocumentSummary
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents [get]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.documentService.ListDocuments(r.Context())
	if err != nil {
		h.logger.Printf("Document listing failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Search runs a similarity search over the index
// @Summary Search documents
// @Description Perform vector similarity search across indexed document chunks
// @Tags documents
// @Accept json
// @Produce json
// @Param query body searchRequest true "Search request"
// @Success 200 {array} models.SearchResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/search [post]
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	var reqBody searchRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	results, err := h.documentService.Search(r.Context(), reqBody.Query, reqBody.Limit, reqBody.Filter)
	if err != nil {
		h.logger.Printf("Search failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// SearchSimple runs a search from query parameters
// @Summary Simple document search
// @Tags documents
// @Produce json
// @Param q query string true "Search query"
// @Param limit query int false "Number of results" default(5)
// @Success 200 {array} models.SearchResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/search [get]
func (h *DocumentHandler) SearchSimple(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	limit := 5
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	results, err := h.documentService.Search(r.Context(), query, limit, nil)
	if err != nil {
		h.logger.Printf("Search failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GetSimilar finds chunks similar to an indexed chunk
// @Summary Similar chunks
// @Tags documents
// @Produce json
// @Param id path string true "Chunk ID"
// @Param limit query int false "Number of results" default(5)
// @Success 200 {array} models.SearchResult
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/chunks/{id}/similar [get]
func (h *DocumentHandler) GetSimilar(w http.ResponseWriter, r *http.Request) {
	chunkID := mux.Vars(r)["id"]

	limit := 5
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	results, err := h.documentService.GetSimilar(r.Context(), chunkID, limit)
	if err != nil {
		var idxErr *repositories.VectorIndexError
		if errors.As(err, &idxErr) && idxErr.Operation == "get_record" {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Printf("Similar lookup failed for %s: %v", chunkID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Delete removes every chunk indexed from a source file
// @Summary Delete a document
// @Tags documents
// @Produce json
// @Param source path string true "Stored source filename"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/{source} [delete]
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]

	deleted, err := h.documentService.Delete(r.Context(), source)
	if err != nil {
		h.logger.Printf("Document delete failed for %s: %v", source, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "document not found: "+source)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Document deleted"})
}

// Statistics reports index-level statistics
// @Summary Index statistics
// @Description Totals plus a file-type histogram computed from a bounded sample
// @Tags documents
// @Produce json
// @Success 200 {object} models.IndexStats
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/statistics [get]
func (h *DocumentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.documentService.Statistics(r.Context())
	if err != nil {
		h.logger.Printf("Statistics failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearAll drops every vector from the index
// @Summary Clear the index
// @Description Remove every indexed document chunk. Irreversible.
// @Tags documents
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents/clear [post]
func (h *DocumentHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.documentService.ClearAll(r.Context()); err != nil {
		h.logger.Printf("Clear index failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Index cleared"})
}

func (h *DocumentHandler) writeUploadError(w http.ResponseWriter, err error) {
	var valErr *models.ValidationError
	var extractErr *models.ExtractionError

	switch {
	case errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &extractErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Printf("Upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
