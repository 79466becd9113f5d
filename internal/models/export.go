package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportSchemaVersion is the current snapshot schema version. Imports of
// newer versions are rejected during validation.
const ExportSchemaVersion = 2

// MergeStrategy selects how an imported snapshot is applied
type MergeStrategy string

const (
	// StrategyReplace deletes all existing lists, then recreates the
	// incoming ones with their original ids.
	StrategyReplace MergeStrategy = "replace"
	// StrategyMerge updates-by-id where present, creates where absent,
	// and never deletes anything.
	StrategyMerge MergeStrategy = "merge"
	// StrategyAppend creates everything fresh under newly generated ids.
	StrategyAppend MergeStrategy = "append"
)

// IsValidStrategy checks if a merge strategy value is valid
func IsValidStrategy(s string) bool {
	switch MergeStrategy(s) {
	case StrategyReplace, StrategyMerge, StrategyAppend:
		return true
	}
	return false
}

// ExportSnapshot is the external snapshot format (file/clipboard export)
type ExportSnapshot struct {
	SchemaVersion int          `json:"schemaVersion"`
	ExportedAt    time.Time    `json:"exportedAt"`
	Lists         []ExportList `json:"lists"`
}

// ExportList is a list record in an external snapshot
type ExportList struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	OrderNumber int          `json:"orderNumber"`
	IsArchived  bool         `json:"isArchived"`
	CreatedAt   time.Time    `json:"createdAt"`
	ModifiedAt  time.Time    `json:"modifiedAt"`
	Items       []ExportItem `json:"items"`
}

// ExportItem is an item record in an external snapshot
type ExportItem struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  *string       `json:"description,omitempty"`
	Quantity     int           `json:"quantity"`
	OrderNumber  int           `json:"orderNumber"`
	IsCrossedOut bool          `json:"isCrossedOut"`
	CreatedAt    time.Time     `json:"createdAt"`
	ModifiedAt   time.Time     `json:"modifiedAt"`
	Images       []ExportImage `json:"images,omitempty"`
}

// ExportImage is an image record in an external snapshot
type ExportImage struct {
	ID          string    `json:"id"`
	Data        []byte    `json:"data"`
	OrderNumber int       `json:"orderNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DecodeExportSnapshot parses raw export data
func DecodeExportSnapshot(data []byte) (*ExportSnapshot, error) {
	var snap ExportSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return &snap, nil
}

// Validate checks the snapshot against the import rules. All failing
// records are collected so the caller can report every violation at once.
func (s *ExportSnapshot) Validate() error {
	verr := &ValidationError{}

	if s.SchemaVersion > ExportSchemaVersion {
		verr.Add("", "", fmt.Sprintf("unsupported schema version %d (max %d)", s.SchemaVersion, ExportSchemaVersion))
	}

	for _, l := range s.Lists {
		if strings.TrimSpace(l.Name) == "" {
			verr.Add(l.ID, "", "list name is empty")
		}
		for _, it := range l.Items {
			if strings.TrimSpace(it.Title) == "" {
				verr.Add(l.ID, it.ID, "item title is empty")
			}
			if it.Quantity < 0 {
				verr.Add(l.ID, it.ID, fmt.Sprintf("item quantity %d is negative", it.Quantity))
			}
		}
	}

	if verr.HasViolations() {
		return verr
	}
	return nil
}

// TotalItems returns the number of items across all lists
func (s *ExportSnapshot) TotalItems() int {
	total := 0
	for _, l := range s.Lists {
		total += len(l.Items)
	}
	return total
}

// ToList converts an export list (without items) into a store list
func (el ExportList) ToList() *List {
	return &List{
		ID:          el.ID,
		Name:        el.Name,
		OrderNumber: el.OrderNumber,
		IsArchived:  el.IsArchived,
		CreatedAt:   el.CreatedAt,
		ModifiedAt:  el.ModifiedAt,
	}
}

// ToItem converts an export item into a store item for the given list
func (ei ExportItem) ToItem(listID string) *Item {
	return &Item{
		ID:           ei.ID,
		ListID:       listID,
		Title:        ei.Title,
		Description:  ei.Description,
		Quantity:     ei.Quantity,
		OrderNumber:  ei.OrderNumber,
		IsCrossedOut: ei.IsCrossedOut,
		CreatedAt:    ei.CreatedAt,
		ModifiedAt:   ei.ModifiedAt,
	}
}

// ConflictKind classifies a conflict report entry
type ConflictKind string

const (
	ConflictUpdated ConflictKind = "updated"
	ConflictDeleted ConflictKind = "deleted"
)

// ConflictEntry records one record that changed during a merge. It is
// informational, never blocking.
type ConflictEntry struct {
	Kind   ConflictKind `json:"kind"`
	ListID string       `json:"listId"`
	ItemID string       `json:"itemId,omitempty"`
	Field  string       `json:"field,omitempty"`
	Before string       `json:"before,omitempty"`
	After  string       `json:"after,omitempty"`
}

// ImportResult reports what an applied import did
type ImportResult struct {
	Strategy      MergeStrategy   `json:"strategy"`
	ListsCreated  int             `json:"listsCreated"`
	ListsUpdated  int             `json:"listsUpdated"`
	ListsDeleted  int             `json:"listsDeleted"`
	ItemsCreated  int             `json:"itemsCreated"`
	ItemsUpdated  int             `json:"itemsUpdated"`
	ItemsDeleted  int             `json:"itemsDeleted"`
	ImagesCreated int             `json:"imagesCreated"`
	Conflicts     []ConflictEntry `json:"conflicts,omitempty"`
}

// ImportPreview is the non-mutating twin of ImportResult
type ImportPreview struct {
	ImportResult
	TotalLists int `json:"totalLists"`
	TotalItems int `json:"totalItems"`
}

// ImportProgress reports incremental counts during a large import
type ImportProgress struct {
	ListsProcessed int `json:"listsProcessed"`
	ItemsProcessed int `json:"itemsProcessed"`
	TotalLists     int `json:"totalLists"`
	TotalItems     int `json:"totalItems"`
}
