package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type propagationRepository interface {
	ListRefsByTemplate(ctx context.Context, templateID string) ([]models.AssignmentRef, error)
	ListRefsByIDs(ctx context.Context, ids []string) ([]models.AssignmentRef, error)
	AdvanceVersion(ctx context.Context, templateID string, ids []string, version int) ([]string, error)
}

type versionedTemplates interface {
	Get(ctx context.Context, id string) (*models.Template, error)
	CommitEdit(ctx context.Context, templateID string, req dto.CommitEditRequest, actorID string) (*models.VersionSnapshot, error)
}

// PropagationService moves in-flight assignments forward to a template's current version.
type PropagationService struct {
	templates versionedTemplates
	repo      propagationRepository
	metrics   *MetricsService
	opts      BatchOptions
	logger    *zap.Logger
}

// NewPropagationService constructs PropagationService.
func NewPropagationService(templates versionedTemplates, repo propagationRepository, metrics *MetricsService, opts BatchOptions, logger *zap.Logger) *PropagationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropagationService{templates: templates, repo: repo, metrics: metrics, opts: opts.normalized(), logger: logger}
}

// Publish commits a structural edit and, when the request carries a selector,
// propagates it. The snapshot is returned even if propagation then fails; a
// later Propagate call with the same selector finishes the job.
func (s *PropagationService) Publish(ctx context.Context, templateID string, req dto.CommitEditRequest, actorID string) (*models.CommitResult, error) {
	if req.Propagation != nil {
		if err := validateSelector(*req.Propagation); err != nil {
			return nil, err
		}
	}
	snapshot, err := s.templates.CommitEdit(ctx, templateID, req, actorID)
	if err != nil {
		return nil, err
	}
	result := &models.CommitResult{Snapshot: snapshot}
	if req.Propagation == nil || req.Propagation.Mode == models.PropagationModeNone {
		return result, nil
	}
	propagation, err := s.propagateTo(ctx, templateID, snapshot.Version, req.ChangeDescription, *req.Propagation)
	if err != nil {
		s.logger.Error("propagation after commit failed",
			zap.String("template_id", templateID),
			zap.Int("version", snapshot.Version),
			zap.Error(err),
		)
		return result, err
	}
	result.Propagation = propagation
	return result, nil
}

// Propagate advances the selected assignments to the template's current
// version. Only the version pointer is written. Assignments already on or past
// that version are reported unchanged, so the call can be repeated safely.
func (s *PropagationService) Propagate(ctx context.Context, templateID, changeDescription string, selector models.PropagationSelector) (*models.PropagationResult, error) {
	if err := validateSelector(selector); err != nil {
		return nil, err
	}
	template, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.propagateTo(ctx, templateID, template.CurrentVersion, changeDescription, selector)
}

// propagateTo advances the selected assignments to version, which Publish pins
// to the snapshot it just committed even if another commit has moved the head.
func (s *PropagationService) propagateTo(ctx context.Context, templateID string, version int, changeDescription string, selector models.PropagationSelector) (*models.PropagationResult, error) {
	result := &models.PropagationResult{
		TemplateID:        templateID,
		Version:           version,
		ChangeDescription: changeDescription,
		Outcomes:          []models.AssignmentOutcome{},
	}
	if selector.Mode == models.PropagationModeNone {
		return result, nil
	}

	refs, rejected, err := s.selectRefs(ctx, templateID, selector)
	if err != nil {
		return nil, err
	}
	outcomes := make([]models.AssignmentOutcome, len(refs))
	err = forEachChunk(ctx, len(refs), s.opts, func(ctx context.Context, start, end int) error {
		s.advanceChunk(ctx, templateID, version, refs[start:end], outcomes[start:end])
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "propagation interrupted")
	}
	outcomes = append(outcomes, rejected...)

	result.Matched = len(refs)
	result.Outcomes = outcomes
	for _, outcome := range outcomes {
		switch outcome.Status {
		case models.OutcomeUpdated:
			result.Updated++
		case models.OutcomeUnchanged:
			result.Unchanged++
		case models.OutcomeFailed:
			result.Failed++
		}
	}
	s.metrics.RecordBatch(operationPropagate, result.Updated, result.Failed)
	s.logger.Sugar().Infow("template propagated",
		"template_id", templateID,
		"version", result.Version,
		"mode", selector.Mode,
		"matched", result.Matched,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *PropagationService) selectRefs(ctx context.Context, templateID string, selector models.PropagationSelector) ([]models.AssignmentRef, []models.AssignmentOutcome, error) {
	if selector.Mode == models.PropagationModeAll {
		refs, err := s.repo.ListRefsByTemplate(ctx, templateID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list template assignments")
		}
		return refs, nil, nil
	}

	ids := dedupeIDs(selector.AssignmentIDs)
	found, err := s.repo.ListRefsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selected assignments")
	}
	byID := make(map[string]models.AssignmentRef, len(found))
	for _, ref := range found {
		byID[ref.ID] = ref
	}
	refs := make([]models.AssignmentRef, 0, len(ids))
	var rejected []models.AssignmentOutcome
	for _, id := range ids {
		ref, ok := byID[id]
		switch {
		case !ok:
			rejected = append(rejected, failedOutcome(id, "assignment not found"))
		case ref.TemplateID != templateID:
			rejected = append(rejected, failedOutcome(id, "assignment belongs to another template"))
		default:
			refs = append(refs, ref)
		}
	}
	return refs, rejected, nil
}

// advanceChunk writes one chunk with a single conditional update. outcomes is
// index-aligned with refs.
func (s *PropagationService) advanceChunk(ctx context.Context, templateID string, version int, refs []models.AssignmentRef, outcomes []models.AssignmentOutcome) {
	pending := make([]string, 0, len(refs))
	for i, ref := range refs {
		outcomes[i] = models.AssignmentOutcome{AssignmentID: ref.ID, Status: models.OutcomeUnchanged}
		if ref.TemplateVersion < version {
			pending = append(pending, ref.ID)
		}
	}
	if len(pending) == 0 {
		return
	}

	var updated []string
	err := withRetries(ctx, s.opts.WriteRetries, isRetryable, func() error {
		var err error
		updated, err = s.repo.AdvanceVersion(ctx, templateID, pending, version)
		return err
	})
	if err != nil {
		s.logger.Warn("propagation chunk failed",
			zap.String("template_id", templateID),
			zap.Int("version", version),
			zap.Int("assignments", len(pending)),
			zap.Error(err),
		)
		markFailed(outcomes, pending, err)
		return
	}
	markUpdated(outcomes, updated)
}

func validateSelector(selector models.PropagationSelector) error {
	switch selector.Mode {
	case models.PropagationModeAll, models.PropagationModeNone:
		return nil
	case models.PropagationModeSelected:
		if len(dedupeIDs(selector.AssignmentIDs)) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "selected propagation requires assignment ids")
		}
		return nil
	default:
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown propagation mode"), map[string]interface{}{"mode": selector.Mode})
	}
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func failedOutcome(id, message string) models.AssignmentOutcome {
	return models.AssignmentOutcome{AssignmentID: id, Status: models.OutcomeFailed, Error: message}
}

func markFailed(outcomes []models.AssignmentOutcome, ids []string, err error) {
	failed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		failed[id] = struct{}{}
	}
	for i := range outcomes {
		if _, ok := failed[outcomes[i].AssignmentID]; ok {
			outcomes[i].Status = models.OutcomeFailed
			outcomes[i].Error = err.Error()
		}
	}
}

func markUpdated(outcomes []models.AssignmentOutcome, ids []string) {
	updated := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		updated[id] = struct{}{}
	}
	for i := range outcomes {
		if _, ok := updated[outcomes[i].AssignmentID]; ok {
			outcomes[i].Status = models.OutcomeUpdated
		}
	}
}

func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
