package repository

import (
	"context"
	"database/sql"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repositories can run inside
// or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ListRepo defines the interface for list persistence operations
type ListRepo interface {
	GetActive(ctx context.Context) ([]*models.List, error)
	GetAll(ctx context.Context) ([]*models.List, error)
	GetByID(ctx context.Context, id string) (*models.List, error)
	GetRowsByID(ctx context.Context, id string) ([]*models.List, error)
	DuplicateIDs(ctx context.Context) ([]string, error)
	Add(ctx context.Context, list *models.List) error
	Update(ctx context.Context, list *models.List) error
	Delete(ctx context.Context, id string) error
	DeleteRow(ctx context.Context, seq int64) error
	DeleteAll(ctx context.Context) error
	MaxOrderNumber(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// ItemRepo defines the interface for item persistence operations
type ItemRepo interface {
	GetByList(ctx context.Context, listID string) ([]*models.Item, error)
	GetByID(ctx context.Context, id string) (*models.Item, error)
	GetRowsByID(ctx context.Context, id string) ([]*models.Item, error)
	DuplicateIDs(ctx context.Context) ([]string, error)
	Add(ctx context.Context, item *models.Item) error
	Update(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, id string) error
	DeleteRow(ctx context.Context, seq int64) error
	DeleteByList(ctx context.Context, listID string) error
	DeleteAll(ctx context.Context) error
	MaxOrderNumber(ctx context.Context, listID string) (int, error)
	Count(ctx context.Context) (int, error)
}

// ImageRepo defines the interface for item image persistence operations
type ImageRepo interface {
	GetByItem(ctx context.Context, itemID string) ([]*models.ItemImage, error)
	GetByID(ctx context.Context, id string) (*models.ItemImage, error)
	CountByItem(ctx context.Context, itemID string) (int, error)
	MaxOrderNumber(ctx context.Context, itemID string) (int, error)
	Add(ctx context.Context, image *models.ItemImage) error
	Delete(ctx context.Context, id string) error
	DeleteByItem(ctx context.Context, itemID string) error
	DeleteAll(ctx context.Context) error
}

// PreferencesRepo defines the interface for user preferences persistence
type PreferencesRepo interface {
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	CreateOrUpdate(ctx context.Context, prefs *models.UserPreferences) error
	Delete(ctx context.Context, userID string) error
}

// Stores bundles the repositories over one database handle
type Stores struct {
	db *sql.DB

	Lists  ListRepo
	Items  ItemRepo
	Images ImageRepo
	Prefs  PreferencesRepo
}

// NewStores creates the repository set over the given database.
// Queries outside a transaction go through the traced handle; the raw
// handle is kept for BeginTx.
func NewStores(db *sql.DB) *Stores {
	var handle DBTX = db
	if traced, err := observability.NewTraceDB(db); err == nil {
		handle = traced
	}

	return &Stores{
		db:     db,
		Lists:  NewListRepository(handle),
		Items:  NewItemRepository(handle),
		Images: NewImageRepository(handle),
		Prefs:  NewUserPreferencesRepository(handle),
	}
}

// Transact runs fn with a repository set bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
// Nested calls reuse the surrounding transaction.
func (s *Stores) Transact(ctx context.Context, fn func(tx *Stores) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStores := &Stores{
		Lists:  NewListRepository(tx),
		Items:  NewItemRepository(tx),
		Images: NewImageRepository(tx),
		Prefs:  NewUserPreferencesRepository(tx),
	}

	if err := fn(txStores); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
