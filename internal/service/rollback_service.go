package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type rollbackRepository interface {
	ListRefsByIDs(ctx context.Context, ids []string) ([]models.AssignmentRef, error)
	RewindVersion(ctx context.Context, templateID string, ids []string, target int) ([]string, error)
}

type templateGetter interface {
	Get(ctx context.Context, id string) (*models.Template, error)
}

// RollbackService moves assignments back to an earlier snapshot. Override data is never touched.
type RollbackService struct {
	templates templateGetter
	repo      rollbackRepository
	metrics   *MetricsService
	opts      BatchOptions
	logger    *zap.Logger
}

// NewRollbackService constructs RollbackService.
func NewRollbackService(templates templateGetter, repo rollbackRepository, metrics *MetricsService, opts BatchOptions, logger *zap.Logger) *RollbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollbackService{templates: templates, repo: repo, metrics: metrics, opts: opts.normalized(), logger: logger}
}

// Rollback sets templateVersion = targetVersion on every listed assignment.
// The whole list is validated before anything is written: unknown assignments
// are not found, an assignment below the target or a list with nothing above
// it is an invalid target. Assignments already on the target are skipped.
func (s *RollbackService) Rollback(ctx context.Context, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackResult, error) {
	ids := dedupeIDs(assignmentIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rollback requires assignment ids")
	}
	template, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if targetVersion < 1 || targetVersion > template.CurrentVersion {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTarget, "target version does not exist"), map[string]interface{}{
			"templateId":     templateID,
			"targetVersion":  targetVersion,
			"currentVersion": template.CurrentVersion,
		})
	}

	refs, err := s.repo.ListRefsByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rollback assignments")
	}
	byID := make(map[string]models.AssignmentRef, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
	}
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		ref, ok := byID[id]
		if !ok || ref.TemplateID != templateID {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "assignment not found for template"), map[string]interface{}{
				"templateId":   templateID,
				"assignmentId": id,
			})
		}
		if ref.TemplateVersion < targetVersion {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTarget, "rollback cannot move an assignment forward"), map[string]interface{}{
				"assignmentId":    id,
				"templateVersion": ref.TemplateVersion,
				"targetVersion":   targetVersion,
			})
		}
		if ref.TemplateVersion > targetVersion {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTarget, "assignments are already on the target version"), map[string]interface{}{
			"templateId":    templateID,
			"targetVersion": targetVersion,
		})
	}

	outcomes := make([]models.AssignmentOutcome, len(pending))
	err = forEachChunk(ctx, len(pending), s.opts, func(ctx context.Context, start, end int) error {
		s.rewindChunk(ctx, templateID, targetVersion, pending[start:end], outcomes[start:end])
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rollback interrupted")
	}

	result := &models.RollbackResult{TemplateID: templateID, TargetVersion: targetVersion, Matched: len(pending), Outcomes: outcomes}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case models.OutcomeUpdated:
			result.Changed++
		case models.OutcomeFailed:
			result.Failed++
		}
	}
	s.metrics.RecordBatch(operationRollback, result.Changed, result.Failed)
	s.logger.Sugar().Infow("template rollback applied",
		"template_id", templateID,
		"target_version", targetVersion,
		"matched", result.Matched,
		"changed", result.Changed,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *RollbackService) rewindChunk(ctx context.Context, templateID string, target int, ids []string, outcomes []models.AssignmentOutcome) {
	for i, id := range ids {
		outcomes[i] = models.AssignmentOutcome{AssignmentID: id, Status: models.OutcomeUnchanged}
	}
	var updated []string
	err := withRetries(ctx, s.opts.WriteRetries, isRetryable, func() error {
		var err error
		updated, err = s.repo.RewindVersion(ctx, templateID, ids, target)
		return err
	})
	if err != nil {
		s.logger.Warn("rollback chunk failed",
			zap.String("template_id", templateID),
			zap.Int("target_version", target),
			zap.Int("assignments", len(ids)),
			zap.Error(err),
		)
		markFailed(outcomes, ids, err)
		return
	}
	markUpdated(outcomes, updated)
}
