package repository

import (
	"context"
	"database/sql"

	"github.com/listsync/server/internal/models"
)

// ImageRepository implements ImageRepo for PostgreSQL/SQLite
type ImageRepository struct {
	db DBTX
}

// NewImageRepository creates a new ImageRepository
func NewImageRepository(db DBTX) *ImageRepository {
	return &ImageRepository{db: db}
}

// GetByItem returns the images of an item ordered by order_number
func (r *ImageRepository) GetByItem(ctx context.Context, itemID string) ([]*models.ItemImage, error) {
	query := `SELECT id, item_id, data, order_number, created_at FROM item_images
			  WHERE item_id = $1 ORDER BY order_number ASC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.ItemImage
	for rows.Next() {
		var img models.ItemImage
		if err := rows.Scan(&img.ID, &img.ItemID, &img.Data, &img.OrderNumber, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// GetByID returns an image by id, or nil if none exists
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*models.ItemImage, error) {
	query := `SELECT id, item_id, data, order_number, created_at FROM item_images
			  WHERE id = $1 LIMIT 1`

	var img models.ItemImage
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&img.ID, &img.ItemID, &img.Data, &img.OrderNumber, &img.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// CountByItem returns the number of images attached to an item
func (r *ImageRepository) CountByItem(ctx context.Context, itemID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM item_images WHERE item_id = $1`, itemID).Scan(&count)
	return count, err
}

// MaxOrderNumber returns the highest order_number within an item, 0 when empty
func (r *ImageRepository) MaxOrderNumber(ctx context.Context, itemID string) (int, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(order_number) FROM item_images WHERE item_id = $1`, itemID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// Add inserts a new image row
func (r *ImageRepository) Add(ctx context.Context, image *models.ItemImage) error {
	query := `INSERT INTO item_images (id, item_id, data, order_number, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		image.ID, image.ItemID, image.Data, image.OrderNumber, image.CreatedAt,
	)
	return err
}

// Delete removes an image by id
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM item_images WHERE id = $1`, id)
	return err
}

// DeleteByItem removes every image attached to an item
func (r *ImageRepository) DeleteByItem(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM item_images WHERE item_id = $1`, itemID)
	return err
}

// DeleteAll removes every image row
func (r *ImageRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM item_images`)
	return err
}
