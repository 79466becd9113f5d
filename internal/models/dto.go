package models

import (
	"encoding/json"
	"time"
)

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the standard error body for API responses
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateListRequest is the request body for creating a list
type CreateListRequest struct {
	Name string `json:"name"`
}

// UpdateListRequest is the request body for updating a list
type UpdateListRequest struct {
	Name        *string `json:"name,omitempty"`
	OrderNumber *int    `json:"orderNumber,omitempty"`
	IsArchived  *bool   `json:"isArchived,omitempty"`
}

// CreateItemRequest is the request body for creating an item
type CreateItemRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Quantity    *int    `json:"quantity,omitempty"`
}

// UpdateItemRequest is the request body for updating an item
type UpdateItemRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Quantity     *int    `json:"quantity,omitempty"`
	OrderNumber  *int    `json:"orderNumber,omitempty"`
	IsCrossedOut *bool   `json:"isCrossedOut,omitempty"`
}

// ImportRequest is the request body for import and preview endpoints
type ImportRequest struct {
	Strategy string `json:"strategy"`
	// Snapshot carries the raw export payload. Kept as raw JSON so decode
	// failures are reported by the import engine, not the HTTP layer.
	Snapshot json.RawMessage `json:"snapshot"`
}

// SyncStatusResponse is returned by GET /api/sync/status
type SyncStatusResponse struct {
	Lists              int        `json:"lists"`
	Items              int        `json:"items"`
	SnapshotAt         time.Time  `json:"snapshotAt"`
	LastCloudSyncAt    *time.Time `json:"lastCloudSyncAt,omitempty"`
	CompanionReachable bool       `json:"companionReachable"`
}
