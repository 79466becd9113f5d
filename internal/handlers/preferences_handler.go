package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/services"
)

// defaultUserID is the single-user account every preference row belongs
// to. Multi-account support would thread a real user id through here.
const defaultUserID = "local"

// PreferencesHandler handles user preferences endpoints
type PreferencesHandler struct {
	engine *services.SyncEngine
}

// NewPreferencesHandler creates a new PreferencesHandler
func NewPreferencesHandler(engine *services.SyncEngine) *PreferencesHandler {
	return &PreferencesHandler{engine: engine}
}

// GetPreferences returns the stored preferences, or defaults if none
// have been saved yet
// GET /api/preferences
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.engine.GetPreferences(r.Context(), defaultUserID)
	if err != nil {
		http.Error(w, "Failed to retrieve preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// UpdatePreferences applies a partial preferences update
// PUT /api/preferences
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req models.UserPreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	prefs, err := h.engine.UpdatePreferences(r.Context(), defaultUserID, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSortMode) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to update preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}
