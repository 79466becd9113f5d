package repository

import (
	"context"
	"database/sql"

	"github.com/listsync/server/internal/models"
)

// ListRepository implements ListRepo for PostgreSQL/SQLite
type ListRepository struct {
	db DBTX
}

// NewListRepository creates a new ListRepository
func NewListRepository(db DBTX) *ListRepository {
	return &ListRepository{db: db}
}

const listColumns = `seq, id, name, order_number, is_archived, created_at, modified_at`

func scanList(row interface{ Scan(...interface{}) error }) (*models.List, error) {
	var l models.List
	err := row.Scan(&l.Seq, &l.ID, &l.Name, &l.OrderNumber, &l.IsArchived, &l.CreatedAt, &l.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetActive returns all non-archived lists ordered by order_number
func (r *ListRepository) GetActive(ctx context.Context) ([]*models.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE is_archived = $1
			  ORDER BY order_number ASC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, false)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*models.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// GetAll returns every list row, archived and duplicates included
func (r *ListRepository) GetAll(ctx context.Context) ([]*models.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists ORDER BY order_number ASC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*models.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// GetByID returns the freshest row for an id, or nil if none exists.
// With duplicates present the newest modified_at wins, smallest seq on a
// timestamp tie, so reads are deterministic before a repair pass runs.
func (r *ListRepository) GetByID(ctx context.Context, id string) (*models.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE id = $1
			  ORDER BY modified_at DESC, seq ASC LIMIT 1`

	l, err := scanList(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetRowsByID returns every row sharing an id, used by the repair pass
func (r *ListRepository) GetRowsByID(ctx context.Context, id string) ([]*models.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE id = $1
			  ORDER BY modified_at DESC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*models.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// DuplicateIDs returns ids held by more than one row
func (r *ListRepository) DuplicateIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM lists GROUP BY id HAVING COUNT(*) > 1`

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

// Add inserts a new list row
func (r *ListRepository) Add(ctx context.Context, list *models.List) error {
	query := `INSERT INTO lists (id, name, order_number, is_archived, created_at, modified_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		list.ID, list.Name, list.OrderNumber, list.IsArchived, list.CreatedAt, list.ModifiedAt,
	)
	return err
}

// Update rewrites the logical record (every row holding the id)
func (r *ListRepository) Update(ctx context.Context, list *models.List) error {
	query := `UPDATE lists SET name = $1, order_number = $2, is_archived = $3, modified_at = $4
			  WHERE id = $5`

	_, err := r.db.ExecContext(ctx, query,
		list.Name, list.OrderNumber, list.IsArchived, list.ModifiedAt, list.ID,
	)
	return err
}

// Delete removes every row holding the id
func (r *ListRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lists WHERE id = $1`, id)
	return err
}

// DeleteRow removes one storage row by seq, leaving other rows with the
// same id (and all id-keyed children) untouched
func (r *ListRepository) DeleteRow(ctx context.Context, seq int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lists WHERE seq = $1`, seq)
	return err
}

// DeleteAll removes every list row
func (r *ListRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lists`)
	return err
}

// MaxOrderNumber returns the highest order_number, 0 when empty
func (r *ListRepository) MaxOrderNumber(ctx context.Context) (int, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(order_number) FROM lists`).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// Count returns the number of list rows
func (r *ListRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lists`).Scan(&count)
	return count, err
}
