package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.TemplateAssignment) (bool, error)
	FindByID(ctx context.Context, id string) (*models.TemplateAssignment, error)
	FindByTemplateAndStudent(ctx context.Context, templateID, studentID string) (*models.TemplateAssignment, error)
}

type overrideRepository interface {
	Get(ctx context.Context, assignmentID, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, assignmentID, key string, value json.RawMessage) (int, error)
}

// AssignmentService binds students to templates and writes their override data.
type AssignmentService struct {
	repo      assignmentRepository
	overrides overrideRepository
	templates templateGetter
	snapshots snapshotReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, overrides overrideRepository, templates templateGetter, snapshots snapshotReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, overrides: overrides, templates: templates, snapshots: snapshots, validator: validate, logger: logger}
}

// Assign binds a student to the template's current version. An existing
// assignment for the pair is returned unchanged with created=false.
func (s *AssignmentService) Assign(ctx context.Context, req dto.AssignTemplateRequest) (*models.TemplateAssignment, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	template, err := s.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, false, err
	}
	assignment := &models.TemplateAssignment{
		TemplateID:         template.ID,
		StudentID:          req.StudentID,
		TemplateVersion:    template.CurrentVersion,
		Data:               models.OverrideData{},
		Status:             models.AssignmentStatusDraft,
		TeacherCompletions: models.TeacherCompletions{},
	}
	created, err := s.repo.Create(ctx, assignment)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	if created {
		s.logger.Info("template assigned",
			zap.String("assignment_id", assignment.ID),
			zap.String("template_id", template.ID),
			zap.String("student_id", req.StudentID),
			zap.Int("version", assignment.TemplateVersion),
		)
		return assignment, true, nil
	}
	existing, err := s.repo.FindByTemplateAndStudent(ctx, req.TemplateID, req.StudentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing assignment")
	}
	return existing, false, nil
}

// Get returns an assignment with its override data.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.TemplateAssignment, error) {
	return loadAssignment(ctx, s.repo, id)
}

// SetToggleItems stores the items of one toggle block, or table row, of the
// snapshot the assignment is bound to. The key follows the write rule.
func (s *AssignmentService) SetToggleItems(ctx context.Context, id string, req dto.SetToggleItemsRequest) (*dto.OverrideWriteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid toggle payload")
	}
	assignment, err := loadAssignment(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.snapshots.GetSnapshot(ctx, assignment.TemplateID, assignment.TemplateVersion)
	if err != nil {
		return nil, err
	}
	slot, ok := findSlot(snapshot.Pages, *req.PageIndex, *req.BlockIndex, req.RowIndex)
	if !ok {
		details := map[string]interface{}{"pageIndex": *req.PageIndex, "blockIndex": *req.BlockIndex}
		if req.RowIndex != nil {
			details["rowIndex"] = *req.RowIndex
		}
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "no toggle block at position"), details)
	}
	raw, err := models.EncodeToggleItems(req.Items)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid toggle items")
	}
	key := slot.WriteKey()
	return s.write(ctx, id, key, raw)
}

// SetOverride stores a raw value under key.
func (s *AssignmentService) SetOverride(ctx context.Context, id, key string, req dto.SetOverrideRequest) (*dto.OverrideWriteResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override key is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if !json.Valid(req.Value) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "override value must be JSON"), map[string]interface{}{"key": key})
	}
	return s.write(ctx, id, key, req.Value)
}

// GetOverride returns the raw value stored under key.
func (s *AssignmentService) GetOverride(ctx context.Context, id, key string) (*dto.OverrideValueResponse, error) {
	raw, found, err := s.overrides.Get(ctx, id, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "assignment not found"), map[string]interface{}{"assignmentId": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load override")
	}
	if !found {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "override not set"), map[string]interface{}{"assignmentId": id, "key": key})
	}
	return &dto.OverrideValueResponse{AssignmentID: id, Key: key, Value: raw}, nil
}

func (s *AssignmentService) write(ctx context.Context, id, key string, raw json.RawMessage) (*dto.OverrideWriteResult, error) {
	dataVersion, err := s.overrides.Set(ctx, id, key, raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "assignment not found"), map[string]interface{}{"assignmentId": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write override")
	}
	s.logger.Debug("override written", zap.String("assignment_id", id), zap.String("key", key), zap.Int("data_version", dataVersion))
	return &dto.OverrideWriteResult{AssignmentID: id, Key: key, DataVersion: dataVersion}, nil
}
