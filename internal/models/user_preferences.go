package models

import (
	"fmt"
	"time"
)

// SortMode controls the default ordering of items in the UI
type SortMode string

const (
	SortManual    SortMode = "manual"
	SortAlpha     SortMode = "alpha"
	SortCreatedAt SortMode = "created_at"
)

// IsValidSortMode checks if a sort mode value is valid
func IsValidSortMode(m string) bool {
	switch SortMode(m) {
	case SortManual, SortAlpha, SortCreatedAt:
		return true
	}
	return false
}

// UserPreferences holds display/sort/filter defaults plus the last time a
// cloud sync was observed
type UserPreferences struct {
	UserID         string     `json:"userId"`
	SortMode       SortMode   `json:"sortMode"`
	HideCrossedOut bool       `json:"hideCrossedOut"`
	ShowArchived   bool       `json:"showArchived"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewUserPreferences creates preferences with defaults
func NewUserPreferences(userID string) *UserPreferences {
	now := time.Now().UTC()
	return &UserPreferences{
		UserID:    userID,
		SortMode:  SortManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if user preferences are valid
func (p *UserPreferences) Validate() error {
	if p.UserID == "" {
		return ErrInvalidUserID
	}
	if !IsValidSortMode(string(p.SortMode)) {
		return ErrInvalidSortMode
	}
	return nil
}

// UserPreferencesRequest is the request body for updating preferences
type UserPreferencesRequest struct {
	SortMode       *string `json:"sortMode,omitempty"`
	HideCrossedOut *bool   `json:"hideCrossedOut,omitempty"`
	ShowArchived   *bool   `json:"showArchived,omitempty"`
}

// Common user preferences errors
var (
	ErrInvalidUserID       = fmt.Errorf("user ID is required")
	ErrInvalidSortMode     = fmt.Errorf("invalid sort mode")
	ErrPreferencesNotFound = fmt.Errorf("user preferences not found")
)
