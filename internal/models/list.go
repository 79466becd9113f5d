package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// List represents a user list of items
type List struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OrderNumber int       `json:"orderNumber"`
	IsArchived  bool      `json:"isArchived"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`

	// Seq is the storage row sequence. It is never part of the logical
	// identity; the repair pass uses it as a deterministic tie-break when
	// two rows share the same id.
	Seq int64 `json:"-"`

	// Items are loaded by explicit query on the list id, ordered by
	// orderNumber ascending. Never populated by relationship traversal.
	Items []*Item `json:"items,omitempty"`
}

// NewList creates a new list with a generated ID
func NewList(name string, orderNumber int) (*List, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrListNameRequired
	}

	now := time.Now().UTC()
	return &List{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		OrderNumber: orderNumber,
		CreatedAt:   now,
		ModifiedAt:  now,
	}, nil
}

// Validate checks list invariants
func (l *List) Validate() error {
	if l.ID == "" {
		return ErrListIDRequired
	}
	if strings.TrimSpace(l.Name) == "" {
		return ErrListNameRequired
	}
	return nil
}

// Touch bumps ModifiedAt to now, keeping it monotonically non-decreasing
func (l *List) Touch() {
	now := time.Now().UTC()
	if now.After(l.ModifiedAt) {
		l.ModifiedAt = now
	}
}

// ItemCount returns the number of loaded items
func (l *List) ItemCount() int {
	return len(l.Items)
}

// List errors
type ListError struct {
	Message string
}

func (e ListError) Error() string {
	return e.Message
}

var (
	ErrListNotFound     = ListError{"list not found"}
	ErrListIDRequired   = ListError{"list ID is required"}
	ErrListNameRequired = ListError{"list name is required"}
	ErrListArchived     = ListError{"list is archived"}
)
