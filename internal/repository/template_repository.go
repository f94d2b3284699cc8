package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// TemplateRepository persists templates and their append-only version snapshots.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a template at version 1 together with its first snapshot.
func (r *TemplateRepository) Create(ctx context.Context, template *models.Template, snapshot *models.VersionSnapshot) (err error) {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	template.CurrentVersion = 1
	template.CreatedAt = now
	template.UpdatedAt = now
	snapshot.TemplateID = template.ID
	snapshot.Version = 1
	snapshot.CreatedAt = now
	if snapshot.SaveType == "" {
		snapshot.SaveType = models.SaveTypeManual
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertTemplate = `INSERT INTO templates (id, name, current_version, pages, created_at, updated_at)
	VALUES (:id, :name, :current_version, :pages, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertTemplate, template); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if err = insertSnapshot(ctx, tx, snapshot); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit template: %w", err)
	}
	return nil
}

// FindByID returns the live template.
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*models.Template, error) {
	const query = `SELECT id, name, current_version, pages, created_at, updated_at FROM templates WHERE id = $1`
	var template models.Template
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}
	return &template, nil
}

// AppendVersionParams carries a structural edit to commit.
type AppendVersionParams struct {
	TemplateID        string
	Pages             models.Pages
	CreatedBy         string
	ChangeDescription string
	SaveType          models.SaveType
}

// AppendVersion locks the template row, appends snapshot currentVersion+1 and moves the head.
// Concurrent commits on one template serialize on the row lock.
func (r *TemplateRepository) AppendVersion(ctx context.Context, params AppendVersionParams) (snapshot *models.VersionSnapshot, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin version transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current int
	const lockQuery = `SELECT current_version FROM templates WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.TemplateID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshot = &models.VersionSnapshot{
		TemplateID:        params.TemplateID,
		Version:           current + 1,
		Pages:             params.Pages,
		CreatedAt:         now,
		CreatedBy:         params.CreatedBy,
		ChangeDescription: params.ChangeDescription,
		SaveType:          params.SaveType,
	}
	if snapshot.SaveType == "" {
		snapshot.SaveType = models.SaveTypeManual
	}
	if err = insertSnapshot(ctx, tx, snapshot); err != nil {
		return nil, err
	}

	const updateHead = `UPDATE templates SET pages = $2, current_version = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateHead, params.TemplateID, params.Pages, snapshot.Version, now); err != nil {
		return nil, fmt.Errorf("advance template head: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit template version: %w", err)
	}
	return snapshot, nil
}

// GetVersion returns one snapshot.
func (r *TemplateRepository) GetVersion(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, error) {
	const query = `SELECT template_id, version, pages, created_at, created_by, change_description, save_type
	FROM template_versions WHERE template_id = $1 AND version = $2`
	var snapshot models.VersionSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, templateID, version); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListVersions returns every snapshot of a template, most recent first.
func (r *TemplateRepository) ListVersions(ctx context.Context, templateID string) ([]models.VersionSnapshot, error) {
	const query = `SELECT template_id, version, pages, created_at, created_by, change_description, save_type
	FROM template_versions WHERE template_id = $1 ORDER BY version DESC`
	var snapshots []models.VersionSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, templateID); err != nil {
		return nil, fmt.Errorf("list template versions: %w", err)
	}
	return snapshots, nil
}

func insertSnapshot(ctx context.Context, tx *sqlx.Tx, snapshot *models.VersionSnapshot) error {
	const query = `INSERT INTO template_versions (template_id, version, pages, created_at, created_by, change_description, save_type)
	VALUES (:template_id, :version, :pages, :created_at, :created_by, :change_description, :save_type)`
	if _, err := tx.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("insert template version %d: %w", snapshot.Version, err)
	}
	return nil
}
