package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type classLister interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error)
}

type enrollmentLister interface {
	ListActiveByClasses(ctx context.Context, classIDs []string, schoolYearID string) ([]models.EnrolledStudent, error)
}

type toggleAssignmentRepository interface {
	ListByStudents(ctx context.Context, studentIDs []string) ([]models.TemplateAssignment, error)
	FindByID(ctx context.Context, id string) (*models.TemplateAssignment, error)
}

type overrideBatchWriter interface {
	SetMany(ctx context.Context, assignmentID string, entries models.OverrideData, expectedDataVersion *int) (int, error)
}

// BatchToggleService bulk-writes and aggregates toggle-item active flags over
// the assignments of a class or level scope.
type BatchToggleService struct {
	classes     classLister
	enrollments enrollmentLister
	assignments toggleAssignmentRepository
	overrides   overrideBatchWriter
	snapshots   snapshotReader
	order       *LevelOrder
	metrics     *MetricsService
	opts        BatchOptions
	logger      *zap.Logger
}

// NewBatchToggleService constructs BatchToggleService.
func NewBatchToggleService(classes classLister, enrollments enrollmentLister, assignments toggleAssignmentRepository, overrides overrideBatchWriter, snapshots snapshotReader, order *LevelOrder, metrics *MetricsService, opts BatchOptions, logger *zap.Logger) *BatchToggleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if order == nil {
		order = NewLevelOrder(nil)
	}
	return &BatchToggleService{
		classes:     classes,
		enrollments: enrollments,
		assignments: assignments,
		overrides:   overrides,
		snapshots:   snapshots,
		order:       order,
		metrics:     metrics,
		opts:        opts.normalized(),
		logger:      logger,
	}
}

// scopedAssignment is an assignment together with its student's class level.
type scopedAssignment struct {
	assignment models.TemplateAssignment
	classID    string
	classLevel string
}

type scopeResolution struct {
	classes     []models.Class
	students    int
	assignments []scopedAssignment
}

// Mutate sets active on every item the filters include. Each assignment is
// resolved against the snapshot it is bound to and written with one
// conditional SetMany; a lost race is recomputed from fresh data.
func (s *BatchToggleService) Mutate(ctx context.Context, mutation models.ToggleMutation) (*models.ToggleMutationResult, error) {
	if err := validateMutation(mutation); err != nil {
		return nil, err
	}
	filter := classFilterForScope(mutation)
	scope, err := s.resolveScope(ctx, filter, mutation.SchoolYearID)
	if err != nil {
		return nil, err
	}
	if mutation.Scope.Type == models.ToggleScopeClass && len(scope.classes) == 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "class not found in school year"), map[string]interface{}{
			"classId":      mutation.Scope.Value,
			"schoolYearId": mutation.SchoolYearID,
		})
	}

	rule := toggleFilter{
		order:            s.order,
		toggleLevel:      mutation.ToggleLevel,
		levelRelation:    mutation.LevelRelation,
		languageCategory: mutation.LanguageCategory,
	}
	memo := newSnapshotMemo(s.snapshots)
	type tally struct {
		blocks int
		items  int
	}
	outcomes := make([]models.AssignmentOutcome, len(scope.assignments))
	tallies := make([]tally, len(scope.assignments))
	err = forEachChunk(ctx, len(scope.assignments), s.opts, func(ctx context.Context, start, end int) error {
		for i := start; i < end; i++ {
			target := scope.assignments[i]
			blocks, items, err := s.mutateAssignment(ctx, memo, target, rule, mutation.Active)
			switch {
			case err != nil:
				s.logger.Warn("toggle mutation failed for assignment",
					zap.String("assignment_id", target.assignment.ID),
					zap.Error(err),
				)
				outcomes[i] = failedOutcome(target.assignment.ID, err.Error())
			case items > 0:
				outcomes[i] = models.AssignmentOutcome{AssignmentID: target.assignment.ID, Status: models.OutcomeUpdated}
				tallies[i] = tally{blocks: blocks, items: items}
			default:
				outcomes[i] = models.AssignmentOutcome{AssignmentID: target.assignment.ID, Status: models.OutcomeUnchanged}
			}
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "toggle mutation interrupted")
	}

	result := &models.ToggleMutationResult{
		MatchedClasses:     len(scope.classes),
		MatchedStudents:    scope.students,
		MatchedAssignments: len(scope.assignments),
		Outcomes:           outcomes,
	}
	for i, outcome := range outcomes {
		switch outcome.Status {
		case models.OutcomeUpdated:
			result.UpdatedAssignments++
			result.UpdatedBlocks += tallies[i].blocks
			result.UpdatedItems += tallies[i].items
		case models.OutcomeFailed:
			result.FailedAssignments++
		}
	}
	s.metrics.RecordTogglesMutated(result.UpdatedItems)
	s.metrics.RecordBatch(operationMutate, result.UpdatedAssignments, result.FailedAssignments)
	s.logger.Sugar().Infow("toggle mutation applied",
		"scope_type", mutation.Scope.Type,
		"scope_value", mutation.Scope.Value,
		"toggle_level", mutation.ToggleLevel,
		"level_relation", mutation.LevelRelation,
		"language_category", mutation.LanguageCategory,
		"active", mutation.Active,
		"matched_assignments", result.MatchedAssignments,
		"updated_assignments", result.UpdatedAssignments,
		"updated_items", result.UpdatedItems,
		"failed_assignments", result.FailedAssignments,
	)
	return result, nil
}

func (s *BatchToggleService) mutateAssignment(ctx context.Context, memo *snapshotMemo, target scopedAssignment, rule toggleFilter, active bool) (int, int, error) {
	assignment := target.assignment
	attempts := s.opts.WriteRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			fresh, err := s.assignments.FindByID(ctx, assignment.ID)
			if err != nil {
				return 0, 0, fmt.Errorf("reload assignment: %w", err)
			}
			assignment = *fresh
		}
		snapshot, err := memo.get(ctx, assignment.TemplateID, assignment.TemplateVersion)
		if err != nil {
			return 0, 0, err
		}
		entries, blocks, items := planToggleMutation(snapshot.Pages, assignment.Data, target.classLevel, rule, active)
		if items == 0 {
			return 0, 0, nil
		}
		expected := assignment.DataVersion
		_, err = s.overrides.SetMany(ctx, assignment.ID, entries, &expected)
		if err == nil {
			return blocks, items, nil
		}
		if !errors.Is(err, repository.ErrStaleDataVersion) {
			return 0, 0, err
		}
		s.metrics.RecordWriteConflict(operationMutate)
		lastErr = err
	}
	return 0, 0, appErrors.WithDetails(appErrors.Wrap(lastErr, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message), map[string]interface{}{
		"assignmentId": assignment.ID,
	})
}

// planToggleMutation computes the override entries that set active on every
// included item. Each changed block or row is rewritten whole under its write key.
func planToggleMutation(pages models.Pages, data models.OverrideData, classLevel string, rule toggleFilter, active bool) (models.OverrideData, int, int) {
	entries := models.OverrideData{}
	blocks, flipped := 0, 0
	for _, slot := range ToggleSlots(pages) {
		items, _, _ := slot.ResolveItems(data)
		changed := 0
		for i := range items {
			if _, _, ok := rule.match(items[i], classLevel); !ok {
				continue
			}
			if items[i].Active != active {
				items[i].Active = active
				changed++
			}
		}
		if changed == 0 {
			continue
		}
		raw, err := models.EncodeToggleItems(items)
		if err != nil {
			continue
		}
		entries[slot.WriteKey()] = raw
		blocks++
		flipped += changed
	}
	return entries, blocks, flipped
}

// Summarize tallies toggle items per class, per class level and per
// class x item level x language, read-only.
func (s *BatchToggleService) Summarize(ctx context.Context, schoolYearID, toggleLevel string) (*models.ToggleSummary, error) {
	if strings.TrimSpace(schoolYearID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolYearId is required")
	}
	if strings.TrimSpace(toggleLevel) == "" {
		toggleLevel = models.ToggleLevelAll
	}
	scope, err := s.resolveScope(ctx, models.ClassFilter{SchoolYearID: schoolYearID}, schoolYearID)
	if err != nil {
		return nil, err
	}

	summary := &models.ToggleSummary{
		SchoolYearID: schoolYearID,
		ToggleLevel:  toggleLevel,
		Classes:      make([]models.ClassToggleSummary, 0, len(scope.classes)),
		Levels:       make(map[string]*models.ToggleCount),
	}
	classIndex := make(map[string]int, len(scope.classes))
	for _, class := range scope.classes {
		classIndex[class.ID] = len(summary.Classes)
		summary.Classes = append(summary.Classes, models.ClassToggleSummary{
			ClassID:    class.ID,
			ClassName:  class.Name,
			ClassLevel: class.Level,
			Matrix:     make(map[string]*models.LevelMatrixRow),
		})
	}

	rule := toggleFilter{order: s.order, toggleLevel: toggleLevel}
	memo := newSnapshotMemo(s.snapshots)
	for _, target := range scope.assignments {
		snapshot, err := memo.get(ctx, target.assignment.TemplateID, target.assignment.TemplateVersion)
		if err != nil {
			return nil, err
		}
		class := &summary.Classes[classIndex[target.classID]]
		for _, slot := range ToggleSlots(snapshot.Pages) {
			items, _, _ := slot.ResolveItems(target.assignment.Data)
			for _, item := range items {
				placement, category, ok := rule.match(item, target.classLevel)
				if !ok {
					continue
				}
				class.Counts.Add(item.Active)
				row, exists := class.Matrix[placement.Level]
				if !exists {
					row = &models.LevelMatrixRow{Relation: placement.Relation, Languages: make(map[models.LanguageCategory]*models.MatrixCell)}
					class.Matrix[placement.Level] = row
				}
				cell, exists := row.Languages[category]
				if !exists {
					cell = &models.MatrixCell{}
					row.Languages[category] = cell
				}
				cell.Total++
				if item.Active {
					cell.On++
				}
			}
		}
	}

	for _, class := range summary.Classes {
		level := normalizeLevel(class.ClassLevel)
		rollup, ok := summary.Levels[level]
		if !ok {
			rollup = &models.ToggleCount{}
			summary.Levels[level] = rollup
		}
		rollup.On += class.Counts.On
		rollup.Off += class.Counts.Off
		rollup.Total += class.Counts.Total
		summary.Totals.On += class.Counts.On
		summary.Totals.Off += class.Counts.Off
		summary.Totals.Total += class.Counts.Total
	}
	return summary, nil
}

// resolveScope walks classes -> active enrollments -> assignments.
func (s *BatchToggleService) resolveScope(ctx context.Context, filter models.ClassFilter, schoolYearID string) (*scopeResolution, error) {
	classes, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	scope := &scopeResolution{classes: classes}
	if len(classes) == 0 {
		return scope, nil
	}
	classIDs := make([]string, len(classes))
	for i, class := range classes {
		classIDs[i] = class.ID
	}
	enrolled, err := s.enrollments.ListActiveByClasses(ctx, classIDs, schoolYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	byStudent := make(map[string]models.EnrolledStudent, len(enrolled))
	studentIDs := make([]string, 0, len(enrolled))
	for _, enrollment := range enrolled {
		if _, seen := byStudent[enrollment.StudentID]; seen {
			continue
		}
		byStudent[enrollment.StudentID] = enrollment
		studentIDs = append(studentIDs, enrollment.StudentID)
	}
	scope.students = len(studentIDs)
	if len(studentIDs) == 0 {
		return scope, nil
	}
	assignments, err := s.assignments.ListByStudents(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	scope.assignments = make([]scopedAssignment, 0, len(assignments))
	for _, assignment := range assignments {
		enrollment := byStudent[assignment.StudentID]
		scope.assignments = append(scope.assignments, scopedAssignment{
			assignment: assignment,
			classID:    enrollment.ClassID,
			classLevel: enrollment.ClassLevel,
		})
	}
	return scope, nil
}

func classFilterForScope(mutation models.ToggleMutation) models.ClassFilter {
	filter := models.ClassFilter{SchoolYearID: mutation.SchoolYearID}
	if mutation.Scope.Type == models.ToggleScopeClass {
		filter.IDs = []string{mutation.Scope.Value}
	} else {
		filter.Level = mutation.Scope.Value
	}
	return filter
}

func validateMutation(mutation models.ToggleMutation) error {
	invalid := func(message string, details map[string]interface{}) error {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, message), details)
	}
	switch mutation.Scope.Type {
	case models.ToggleScopeClass, models.ToggleScopeLevel:
	default:
		return invalid("unknown scope type", map[string]interface{}{"scopeType": mutation.Scope.Type})
	}
	if strings.TrimSpace(mutation.Scope.Value) == "" {
		return invalid("scope value is required", nil)
	}
	if strings.TrimSpace(mutation.SchoolYearID) == "" {
		return invalid("schoolYearId is required", nil)
	}
	if strings.TrimSpace(mutation.ToggleLevel) == "" {
		return invalid("toggleLevel is required", nil)
	}
	switch mutation.LevelRelation {
	case "", models.LevelRelationAll, models.LevelRelationCurrent, models.LevelRelationPast:
	default:
		return invalid("unknown level relation", map[string]interface{}{"levelRelation": mutation.LevelRelation})
	}
	switch mutation.LanguageCategory {
	case "", models.LanguageCategoryAll, models.LanguageCategoryPoly, models.LanguageCategoryArabic, models.LanguageCategoryEnglish:
	default:
		return invalid("unknown language category", map[string]interface{}{"languageCategory": mutation.LanguageCategory})
	}
	return nil
}

// snapshotMemo shares snapshot lookups across the assignments of one pass.
type snapshotMemo struct {
	reader snapshotReader
	mu     sync.Mutex
	cache  map[string]*models.VersionSnapshot
}

func newSnapshotMemo(reader snapshotReader) *snapshotMemo {
	return &snapshotMemo{reader: reader, cache: make(map[string]*models.VersionSnapshot)}
}

func (m *snapshotMemo) get(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, error) {
	key := snapshotCacheKey(templateID, version)
	m.mu.Lock()
	snapshot, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return snapshot, nil
	}
	snapshot, err := m.reader.GetSnapshot(ctx, templateID, version)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[key] = snapshot
	m.mu.Unlock()
	return snapshot, nil
}
