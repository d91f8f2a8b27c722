package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tkytts/experimentServer/internal/catalog"
)

// StateProvider exposes the session fields served on read endpoints
type StateProvider interface {
	Participant() string
}

// Handler serves the websocket endpoint and the plain read endpoints
type Handler struct {
	connectionManager *ConnectionManager
	catalog           *catalog.Catalog
	state             StateProvider
}

// NewHandler creates a new HTTP handler for the gateway
func NewHandler(cm *ConnectionManager, cat *catalog.Catalog, state StateProvider) *Handler {
	return &Handler{
		connectionManager: cm,
		catalog:           cat,
		state:             state,
	}
}

// HandleConnection upgrades an HTTP request to a session websocket
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleCatalog serves the full content catalog
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.catalog.Blocks())
}

// HandleParticipant serves the current participant name
func (h *Handler) HandleParticipant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"participantName": h.state.Participant()})
}

// RegisterRoutes registers the gateway routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/api/catalog", h.HandleCatalog)
	mux.HandleFunc("/api/participant", h.HandleParticipant)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
