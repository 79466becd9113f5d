package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemImage represents a compressed image attached to an item. Image
// payloads never travel over the companion link; only counts do.
type ItemImage struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	Data        []byte    `json:"data,omitempty"`
	OrderNumber int       `json:"orderNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewItemImage creates a new image record for the given item
func NewItemImage(itemID string, data []byte, orderNumber int) (*ItemImage, error) {
	if itemID == "" {
		return nil, ErrImageItemRequired
	}
	if len(data) == 0 {
		return nil, ErrImageDataRequired
	}

	return &ItemImage{
		ID:          uuid.New().String(),
		ItemID:      itemID,
		Data:        data,
		OrderNumber: orderNumber,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// ItemImage errors
type ImageError struct {
	Message string
}

func (e ImageError) Error() string {
	return e.Message
}

var (
	ErrImageNotFound     = ImageError{"image not found"}
	ErrImageItemRequired = ImageError{"image item ID is required"}
	ErrImageDataRequired = ImageError{"image data is required"}
)
