package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/listsync/server/internal/services"
)

// SyncHandler handles sync status and manual trigger endpoints
type SyncHandler struct {
	engine *services.SyncEngine
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(engine *services.SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// Status reports snapshot counts, cloud sync time and companion reachability
// GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Trigger forces an immediate reconciliation, bypassing the debounce window
// POST /api/sync/trigger
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.TriggerManualSync(r.Context()); err != nil {
		http.Error(w, "Sync failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(h.engine.Status())
}
