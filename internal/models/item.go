package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item represents a single entry within a list
type Item struct {
	ID           string    `json:"id"`
	ListID       string    `json:"listId"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	Quantity     int       `json:"quantity"`
	OrderNumber  int       `json:"orderNumber"`
	IsCrossedOut bool      `json:"isCrossedOut"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `json:"modifiedAt"`

	// Seq is the storage row sequence, used only as a deterministic
	// tie-break by the repair pass.
	Seq int64 `json:"-"`

	// Images are loaded by explicit query on the item id, ordered by
	// orderNumber ascending.
	Images []*ItemImage `json:"images,omitempty"`
}

// NewItem creates a new item belonging to the given list
func NewItem(listID, title string, orderNumber int) (*Item, error) {
	if strings.TrimSpace(listID) == "" {
		return nil, ErrItemListRequired
	}
	if strings.TrimSpace(title) == "" {
		return nil, ErrItemTitleRequired
	}

	now := time.Now().UTC()
	return &Item{
		ID:          uuid.New().String(),
		ListID:      listID,
		Title:       strings.TrimSpace(title),
		Quantity:    1,
		OrderNumber: orderNumber,
		CreatedAt:   now,
		ModifiedAt:  now,
	}, nil
}

// Validate checks item invariants
func (i *Item) Validate() error {
	if i.ID == "" {
		return ErrItemIDRequired
	}
	if strings.TrimSpace(i.Title) == "" {
		return ErrItemTitleRequired
	}
	if i.Quantity < 1 {
		return ErrItemQuantityInvalid
	}
	return nil
}

// Touch bumps ModifiedAt to now, keeping it monotonically non-decreasing
func (i *Item) Touch() {
	now := time.Now().UTC()
	if now.After(i.ModifiedAt) {
		i.ModifiedAt = now
	}
}

// Item errors
type ItemError struct {
	Message string
}

func (e ItemError) Error() string {
	return e.Message
}

var (
	ErrItemNotFound        = ItemError{"item not found"}
	ErrItemIDRequired      = ItemError{"item ID is required"}
	ErrItemListRequired    = ItemError{"item list ID is required"}
	ErrItemTitleRequired   = ItemError{"item title is required"}
	ErrItemQuantityInvalid = ItemError{"item quantity must be at least 1"}
)
