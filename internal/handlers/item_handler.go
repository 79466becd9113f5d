package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/services"
)

// ItemHandler handles item API endpoints
type ItemHandler struct {
	engine *services.SyncEngine
}

// NewItemHandler creates a new ItemHandler
func NewItemHandler(engine *services.SyncEngine) *ItemHandler {
	return &ItemHandler{engine: engine}
}

// CreateItem adds an item to a list
// POST /api/lists/:id/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "id")
	if listID == "" {
		http.Error(w, "List ID is required", http.StatusBadRequest)
		return
	}

	var req models.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.engine.CreateItem(r.Context(), listID, req)
	if err != nil {
		writeItemError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

// UpdateItem applies a partial update to an item
// PUT /api/items/:id
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	var req models.UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.engine.UpdateItem(r.Context(), itemID, req)
	if err != nil {
		writeItemError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// DeleteItem permanently deletes an item and its images
// DELETE /api/items/:id
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteItem(r.Context(), itemID); err != nil {
		writeItemError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeItemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrItemNotFound), errors.Is(err, models.ErrListNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrItemTitleRequired),
		errors.Is(err, models.ErrItemQuantityInvalid),
		errors.Is(err, models.ErrListArchived):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Failed to process item", http.StatusInternalServerError)
	}
}
