package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eshaffer321/invoice-matcher/internal/api/dto"
)

// HealthHandler answers load balancer probes. It never touches storage.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a health handler reporting the build version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := dto.NewHealthResponse()
	response.Version = h.version
	_ = json.NewEncoder(w).Encode(response)
}
