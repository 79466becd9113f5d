package repository

import (
	"context"
	"database/sql"

	"github.com/listsync/server/internal/models"
)

// ItemRepository implements ItemRepo for PostgreSQL/SQLite
type ItemRepository struct {
	db DBTX
}

// NewItemRepository creates a new ItemRepository
func NewItemRepository(db DBTX) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `seq, id, list_id, title, description, quantity, order_number, is_crossed_out, created_at, modified_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*models.Item, error) {
	var i models.Item
	err := row.Scan(&i.Seq, &i.ID, &i.ListID, &i.Title, &i.Description, &i.Quantity,
		&i.OrderNumber, &i.IsCrossedOut, &i.CreatedAt, &i.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// GetByList returns the items of a list ordered by order_number. This is
// the only sanctioned way to derive a list's children; the published
// snapshot never trusts an in-memory relationship.
func (r *ItemRepository) GetByList(ctx context.Context, listID string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE list_id = $1
			  ORDER BY order_number ASC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// GetByID returns the freshest row for an id, or nil if none exists
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1
			  ORDER BY modified_at DESC, seq ASC LIMIT 1`

	i, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// GetRowsByID returns every row sharing an id, used by the repair pass
func (r *ItemRepository) GetRowsByID(ctx context.Context, id string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1
			  ORDER BY modified_at DESC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// DuplicateIDs returns ids held by more than one row
func (r *ItemRepository) DuplicateIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM items GROUP BY id HAVING COUNT(*) > 1`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Add inserts a new item row
func (r *ItemRepository) Add(ctx context.Context, item *models.Item) error {
	query := `INSERT INTO items (id, list_id, title, description, quantity, order_number,
			  is_crossed_out, created_at, modified_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.ListID, item.Title, item.Description, item.Quantity,
		item.OrderNumber, item.IsCrossedOut, item.CreatedAt, item.ModifiedAt,
	)
	return err
}

// Update rewrites the logical record (every row holding the id)
func (r *ItemRepository) Update(ctx context.Context, item *models.Item) error {
	query := `UPDATE items SET list_id = $1, title = $2, description = $3, quantity = $4,
			  order_number = $5, is_crossed_out = $6, modified_at = $7
			  WHERE id = $8`

	_, err := r.db.ExecContext(ctx, query,
		item.ListID, item.Title, item.Description, item.Quantity,
		item.OrderNumber, item.IsCrossedOut, item.ModifiedAt, item.ID,
	)
	return err
}

// Delete removes every row holding the id
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	return err
}

// DeleteRow removes one storage row by seq
func (r *ItemRepository) DeleteRow(ctx context.Context, seq int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE seq = $1`, seq)
	return err
}

// DeleteByList removes every item belonging to a list
func (r *ItemRepository) DeleteByList(ctx context.Context, listID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE list_id = $1`, listID)
	return err
}

// DeleteAll removes every item row
func (r *ItemRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items`)
	return err
}

// MaxOrderNumber returns the highest order_number within a list, 0 when empty
func (r *ItemRepository) MaxOrderNumber(ctx context.Context, listID string) (int, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(order_number) FROM items WHERE list_id = $1`, listID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// Count returns the number of item rows
func (r *ItemRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}
