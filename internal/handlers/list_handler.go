package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/services"
)

// ListHandler handles list API endpoints
type ListHandler struct {
	engine *services.SyncEngine
}

// NewListHandler creates a new ListHandler
func NewListHandler(engine *services.SyncEngine) *ListHandler {
	return &ListHandler{engine: engine}
}

// GetLists returns the published snapshot of active lists
// GET /api/lists
func (h *ListHandler) GetLists(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.CurrentSnapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// GetList returns a single list from the published snapshot
// GET /api/lists/:id
func (h *ListHandler) GetList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	if listID == "" {
		http.Error(w, "List ID is required", http.StatusBadRequest)
		return
	}

	list := h.engine.CurrentSnapshot().FindList(listID)
	if list == nil {
		http.Error(w, "List not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// CreateList creates a new list
// POST /api/lists
func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req models.CreateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	list, err := h.engine.CreateList(r.Context(), req)
	if err != nil {
		writeListError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(list)
}

// UpdateList applies a partial update to a list
// PUT /api/lists/:id
func (h *ListHandler) UpdateList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	if listID == "" {
		http.Error(w, "List ID is required", http.StatusBadRequest)
		return
	}

	var req models.UpdateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	list, err := h.engine.UpdateList(r.Context(), listID, req)
	if err != nil {
		writeListError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// ArchiveList archives a list without deleting it
// POST /api/lists/:id/archive
func (h *ListHandler) ArchiveList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	if listID == "" {
		http.Error(w, "List ID is required", http.StatusBadRequest)
		return
	}

	list, err := h.engine.ArchiveList(r.Context(), listID)
	if err != nil {
		writeListError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// DeleteList permanently deletes a list with its items and images
// DELETE /api/lists/:id
func (h *ListHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	if listID == "" {
		http.Error(w, "List ID is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.PurgeList(r.Context(), listID); err != nil {
		writeListError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeListError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrListNotFound):
		http.Error(w, "List not found", http.StatusNotFound)
	case errors.Is(err, models.ErrListNameRequired), errors.Is(err, models.ErrListArchived):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Failed to process list", http.StatusInternalServerError)
	}
}
