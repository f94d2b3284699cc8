package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// ErrStaleDataVersion is returned when a conditional override write lost a race.
var ErrStaleDataVersion = errors.New("stale data version")

// OverrideRepository is the key/value store over template_assignments.data.
// It knows nothing about template structure; callers supply the keys.
type OverrideRepository struct {
	db *sqlx.DB
}

// NewOverrideRepository constructs the repository.
func NewOverrideRepository(db *sqlx.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// Get returns the raw value stored under key. The boolean is false when the key
// is absent; sql.ErrNoRows is returned for an unknown assignment.
func (r *OverrideRepository) Get(ctx context.Context, assignmentID, key string) (json.RawMessage, bool, error) {
	const query = `SELECT data -> $2 FROM template_assignments WHERE id = $1`
	var raw []byte
	if err := r.db.QueryRowxContext(ctx, query, assignmentID, key).Scan(&raw); err != nil {
		return nil, false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

// Set stores a single key and bumps data_version.
func (r *OverrideRepository) Set(ctx context.Context, assignmentID, key string, value json.RawMessage) (int, error) {
	return r.SetMany(ctx, assignmentID, models.OverrideData{key: value}, nil)
}

// SetMany merges entries into the assignment's data with a single data_version
// increment. When expectedDataVersion is set the write only lands if nobody
// else wrote in between; otherwise ErrStaleDataVersion is returned.
func (r *OverrideRepository) SetMany(ctx context.Context, assignmentID string, entries models.OverrideData, expectedDataVersion *int) (int, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("set overrides for %s: no entries", assignmentID)
	}
	payload, err := entries.Value()
	if err != nil {
		return 0, err
	}
	query := `UPDATE template_assignments
	SET data = COALESCE(data, '{}'::jsonb) || $2::jsonb, data_version = data_version + 1, updated_at = NOW()
	WHERE id = $1`
	args := []interface{}{assignmentID, payload}
	if expectedDataVersion != nil {
		query += ` AND data_version = $3`
		args = append(args, *expectedDataVersion)
	}
	query += ` RETURNING data_version`

	var version int
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.missOrStale(ctx, assignmentID, expectedDataVersion != nil)
		}
		return 0, fmt.Errorf("set overrides for %s: %w", assignmentID, err)
	}
	return version, nil
}

func (r *OverrideRepository) missOrStale(ctx context.Context, assignmentID string, conditional bool) error {
	if !conditional {
		return sql.ErrNoRows
	}
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM template_assignments WHERE id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, assignmentID); err != nil {
		return fmt.Errorf("check assignment %s: %w", assignmentID, err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrStaleDataVersion
}
