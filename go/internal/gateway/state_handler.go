package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the current timer and roster over plain HTTP
type StateHandler struct {
	engine SessionEngine
}

// NewStateHandler creates a new state handler
func NewStateHandler(engine SessionEngine) *StateHandler {
	return &StateHandler{
		engine: engine,
	}
}

// HandleGetState handles GET /api/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := h.engine.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get session state")
		http.Error(w, "Failed to get session state", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode session state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.HandleGetState)
}
