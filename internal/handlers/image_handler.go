package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/repository"
	"github.com/listsync/server/internal/services"
)

// maxImageUpload bounds a single image body
const maxImageUpload = 10 << 20 // 10MB

// ImageHandler handles item image endpoints. Image payloads live only in
// the local store and the HTTP surface; they are never sent over the
// companion link.
type ImageHandler struct {
	engine *services.SyncEngine
	stores *repository.Stores
}

// NewImageHandler creates a new ImageHandler
func NewImageHandler(engine *services.SyncEngine, stores *repository.Stores) *ImageHandler {
	return &ImageHandler{engine: engine, stores: stores}
}

// AddImage attaches an uploaded image to an item
// POST /api/items/:id/images
func (h *ImageHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageUpload+1))
	if err != nil {
		http.Error(w, "Failed to read image body", http.StatusBadRequest)
		return
	}
	if len(data) > maxImageUpload {
		http.Error(w, "Image too large", http.StatusRequestEntityTooLarge)
		return
	}

	image, err := h.engine.AddImage(r.Context(), itemID, data)
	if err != nil {
		writeImageError(w, err)
		return
	}

	// The payload is echoed back by id, not inline.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeImageMeta(w, image)
}

// GetImage serves a stored image payload
// GET /api/images/:id
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	if imageID == "" {
		http.Error(w, "Image ID is required", http.StatusBadRequest)
		return
	}

	image, err := h.stores.Images.GetByID(r.Context(), imageID)
	if err != nil {
		http.Error(w, "Failed to retrieve image", http.StatusInternalServerError)
		return
	}
	if image == nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(image.Data))
	w.Write(image.Data)
}

// DeleteImage removes an image from an item
// DELETE /api/images/:id
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "id")
	if imageID == "" {
		http.Error(w, "Image ID is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteImage(r.Context(), imageID); err != nil {
		writeImageError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeImageMeta(w http.ResponseWriter, image *models.ItemImage) {
	meta := struct {
		ID          string `json:"id"`
		ItemID      string `json:"itemId"`
		OrderNumber int    `json:"orderNumber"`
		Size        int    `json:"size"`
	}{
		ID:          image.ID,
		ItemID:      image.ItemID,
		OrderNumber: image.OrderNumber,
		Size:        len(image.Data),
	}
	json.NewEncoder(w).Encode(meta)
}

func writeImageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrImageNotFound), errors.Is(err, models.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrImageDataRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Failed to process image", http.StatusInternalServerError)
	}
}
