package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/services"
)

// ImportHandler handles snapshot import endpoints
type ImportHandler struct {
	importer *services.Importer
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(importer *services.Importer) *ImportHandler {
	return &ImportHandler{importer: importer}
}

// Import applies an external snapshot with the requested strategy
// POST /api/import
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req models.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !models.IsValidStrategy(req.Strategy) {
		http.Error(w, "Strategy must be replace, merge or append", http.StatusBadRequest)
		return
	}

	result, err := h.importer.Import(r.Context(), req.Snapshot, models.MergeStrategy(req.Strategy), func(p models.ImportProgress) {
		observability.Debugf("Import progress: %d/%d lists, %d/%d items",
			p.ListsProcessed, p.TotalLists, p.ItemsProcessed, p.TotalItems)
	})
	if err != nil {
		writeImportError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Preview reports what an import would do without applying it
// POST /api/import/preview
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req models.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !models.IsValidStrategy(req.Strategy) {
		http.Error(w, "Strategy must be replace, merge or append", http.StatusBadRequest)
		return
	}

	preview, err := h.importer.Preview(r.Context(), req.Snapshot, models.MergeStrategy(req.Strategy))
	if err != nil {
		writeImportError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

func writeImportError(w http.ResponseWriter, err error) {
	var derr *models.DecodeError
	if errors.As(err, &derr) {
		http.Error(w, derr.Error(), http.StatusBadRequest)
		return
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		// The full violation list goes back so the client can show every
		// failing record at once.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(verr)
		return
	}

	http.Error(w, "Import failed", http.StatusInternalServerError)
}
