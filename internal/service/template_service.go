package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type templateRepository interface {
	Create(ctx context.Context, template *models.Template, snapshot *models.VersionSnapshot) error
	FindByID(ctx context.Context, id string) (*models.Template, error)
	AppendVersion(ctx context.Context, params repository.AppendVersionParams) (*models.VersionSnapshot, error)
	GetVersion(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, error)
	ListVersions(ctx context.Context, templateID string) ([]models.VersionSnapshot, error)
}

type versionCounter interface {
	CountByVersion(ctx context.Context, templateID string) (map[int]int, error)
}

// TemplateService owns templates and their append-only snapshot history.
type TemplateService struct {
	repo      templateRepository
	counts    versionCounter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs TemplateService. cache and metrics may be nil.
func NewTemplateService(repo templateRepository, counts versionCounter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, counts: counts, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Create stores a new template at version 1.
func (s *TemplateService) Create(ctx context.Context, req dto.CreateTemplateRequest, actorID string) (*models.Template, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	if err := ValidatePages(req.Pages); err != nil {
		return nil, err
	}
	template := &models.Template{Name: strings.TrimSpace(req.Name), Pages: req.Pages}
	snapshot := &models.VersionSnapshot{
		Pages:             req.Pages.Clone(),
		CreatedBy:         actorID,
		ChangeDescription: "initial version",
		SaveType:          models.SaveTypeManual,
	}
	if err := s.repo.Create(ctx, template, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	s.cache.PutSnapshot(ctx, snapshot)
	s.metrics.RecordVersionCommitted()
	s.logger.Info("template created", zap.String("template_id", template.ID), zap.String("actor_id", actorID))
	return template, nil
}

// Get returns the live template.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.Template, error) {
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, templateNotFound(id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	return template, nil
}

// CommitEdit validates newPages, appends snapshot currentVersion+1 and makes it
// live. No assignment is touched.
func (s *TemplateService) CommitEdit(ctx context.Context, templateID string, req dto.CommitEditRequest, actorID string) (*models.VersionSnapshot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template edit")
	}
	if err := ValidatePages(req.Pages); err != nil {
		return nil, err
	}
	snapshot, err := s.repo.AppendVersion(ctx, repository.AppendVersionParams{
		TemplateID:        templateID,
		Pages:             req.Pages,
		CreatedBy:         actorID,
		ChangeDescription: req.ChangeDescription,
		SaveType:          req.SaveType,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, templateNotFound(templateID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit template edit")
	}
	s.cache.PutSnapshot(ctx, snapshot)
	s.metrics.RecordVersionCommitted()
	s.logger.Info("template version committed",
		zap.String("template_id", templateID),
		zap.Int("version", snapshot.Version),
		zap.String("save_type", string(snapshot.SaveType)),
		zap.String("actor_id", actorID),
	)
	return snapshot, nil
}

// GetSnapshot returns snapshot version of the template. Versions outside
// [1, currentVersion] are not found.
func (s *TemplateService) GetSnapshot(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, error) {
	if version < 1 {
		return nil, versionNotFound(templateID, version)
	}
	if snapshot, ok := s.cache.GetSnapshot(ctx, templateID, version); ok {
		return snapshot, nil
	}
	template, err := s.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if version > template.CurrentVersion {
		return nil, versionNotFound(templateID, version)
	}
	snapshot, err := s.repo.GetVersion(ctx, templateID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionNotFound(templateID, version)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template version")
	}
	s.cache.PutSnapshot(ctx, snapshot)
	return snapshot, nil
}

// GetHistory lists every snapshot, most recent first, with the number of
// assignments currently bound to each.
func (s *TemplateService) GetHistory(ctx context.Context, templateID string) ([]models.VersionHistoryEntry, error) {
	template, err := s.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.repo.ListVersions(ctx, templateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list template versions")
	}
	counts, err := s.counts.CountByVersion(ctx, templateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count bound assignments")
	}
	history := make([]models.VersionHistoryEntry, 0, len(snapshots))
	for _, snapshot := range snapshots {
		history = append(history, models.VersionHistoryEntry{
			VersionSnapshot: snapshot,
			BoundCount:      counts[snapshot.Version],
			IsCurrent:       snapshot.Version == template.CurrentVersion,
		})
	}
	return history, nil
}

// ValidatePages enforces identity uniqueness: a blockId may appear once in the
// whole template and a rowId once within its table.
func ValidatePages(pages models.Pages) error {
	seenBlocks := make(map[string][2]int)
	for p, page := range pages {
		for b, block := range page.Blocks {
			if blockID := block.Props.BlockID(); blockID != "" {
				if first, dup := seenBlocks[blockID]; dup {
					return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "duplicate blockId"), map[string]interface{}{
						"blockId":    blockID,
						"pageIndex":  p,
						"blockIndex": b,
						"firstPage":  first[0],
						"firstBlock": first[1],
					})
				}
				seenBlocks[blockID] = [2]int{p, b}
			}
			if block.Type != models.BlockTypeTable {
				continue
			}
			seenRows := make(map[string]int)
			for r, rowID := range block.Props.RowIDs() {
				if rowID == "" {
					continue
				}
				if first, dup := seenRows[rowID]; dup {
					return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "duplicate rowId"), map[string]interface{}{
						"blockId":    block.Props.BlockID(),
						"rowId":      rowID,
						"pageIndex":  p,
						"blockIndex": b,
						"rowIndex":   r,
						"firstRow":   first,
					})
				}
				seenRows[rowID] = r
			}
		}
	}
	return nil
}

func templateNotFound(id string) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "template not found"), map[string]interface{}{"templateId": id})
}

func versionNotFound(templateID string, version int) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "template version not found"), map[string]interface{}{
		"templateId": templateID,
		"version":    version,
	})
}
