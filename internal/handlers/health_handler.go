package handlers

import (
	"log"
	"net/http"

	"rag-chat/internal/repositories"
)

// HealthHandler reports service and dependency health
type HealthHandler struct {
	index        repositories.VectorIndex
	registry     repositories.DocumentRegistry
	providerName string
	logger       *log.Logger
}

// NewHealthHandler creates a new health handler. The registry may be nil
// when the service runs without Redis.
func NewHealthHandler(index repositories.VectorIndex, registry repositories.DocumentRegistry, providerName string, logger *log.Logger) *HealthHandler {
	return &HealthHandler{
		index:        index,
		registry:     registry,
		providerName: providerName,
		logger:       logger,
	}
}

type healthReport struct {
	Status     string                 `json:"status"`
	Provider   string                 `json:"llm_provider"`
	Components map[string]interface{} `json:"components"`
}

// Liveness answers whether the HTTP server itself is up
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /health [get]
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Server is healthy"})
}

// Readiness checks the vector index, embedder and document registry
// @Summary Readiness check
// @Description Aggregate health of the vector index, embedding backend and registry
// @Tags health
// @Produce json
// @Success 200 {object} healthReport
// @Failure 503 {object} healthReport
// @Router /api/v1/health [get]
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]interface{})
	healthy := true

	indexHealth := h.index.HealthCheck(r.Context())
	components["vector_index"] = indexHealth
	if indexHealth.Status != "healthy" {
		healthy = false
	}

	if h.registry != nil {
		if err := h.registry.Ping(r.Context()); err != nil {
			h.logger.Printf("Registry health check failed: %v", err)
			components["document_registry"] = map[string]string{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			components["document_registry"] = map[string]string{"status": "healthy"}
		}
	} else {
		components["document_registry"] = map[string]string{"status": "disabled"}
	}

	report := healthReport{
		Status:     "healthy",
		Provider:   h.providerName,
		Components: components,
	}
	status := http.StatusOK
	if !healthy {
		report.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
