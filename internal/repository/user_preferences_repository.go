package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/listsync/server/internal/models"
)

type userPreferencesRepository struct {
	db DBTX
}

// NewUserPreferencesRepository creates a new user preferences repository
func NewUserPreferencesRepository(db DBTX) PreferencesRepo {
	return &userPreferencesRepository{db: db}
}

// Get retrieves user preferences by user ID
func (r *userPreferencesRepository) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	query := `
		SELECT user_id, sort_mode, hide_crossed_out, show_archived, last_sync_at, created_at, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`

	var prefs models.UserPreferences
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.SortMode,
		&prefs.HideCrossedOut,
		&prefs.ShowArchived,
		&prefs.LastSyncAt,
		&prefs.CreatedAt,
		&prefs.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrPreferencesNotFound
	}

	if err != nil {
		return nil, err
	}

	return &prefs, nil
}

// CreateOrUpdate creates or updates user preferences (upsert)
func (r *userPreferencesRepository) CreateOrUpdate(ctx context.Context, prefs *models.UserPreferences) error {
	prefs.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO user_preferences (user_id, sort_mode, hide_crossed_out, show_archived, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET sort_mode = excluded.sort_mode,
		    hide_crossed_out = excluded.hide_crossed_out,
		    show_archived = excluded.show_archived,
		    last_sync_at = excluded.last_sync_at,
		    updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		prefs.UserID,
		prefs.SortMode,
		prefs.HideCrossedOut,
		prefs.ShowArchived,
		prefs.LastSyncAt,
		prefs.CreatedAt,
		prefs.UpdatedAt,
	)

	return err
}

// Delete deletes user preferences
func (r *userPreferencesRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM user_preferences WHERE user_id = $1`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return models.ErrPreferencesNotFound
	}

	return nil
}
