package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type assignmentLoader interface {
	FindByID(ctx context.Context, id string) (*models.TemplateAssignment, error)
}

type snapshotReader interface {
	GetSnapshot(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, error)
}

// BindingService resolves the effective document of an assignment.
type BindingService struct {
	assignments assignmentLoader
	snapshots   snapshotReader
	logger      *zap.Logger
}

// NewBindingService constructs BindingService.
func NewBindingService(assignments assignmentLoader, snapshots snapshotReader, logger *zap.Logger) *BindingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BindingService{assignments: assignments, snapshots: snapshots, logger: logger}
}

// Resolve loads the assignment and the snapshot it is bound to and layers the
// override data on top. It never writes.
func (s *BindingService) Resolve(ctx context.Context, assignmentID string) (*models.EffectiveDocument, error) {
	assignment, err := loadAssignment(ctx, s.assignments, assignmentID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.snapshots.GetSnapshot(ctx, assignment.TemplateID, assignment.TemplateVersion)
	if err != nil {
		return nil, err
	}
	return ResolveDocument(assignment, snapshot), nil
}

// ResolveDocument is the pure core of Resolve: deterministic for a given
// (snapshot, data) pair and free of side effects on both.
func ResolveDocument(assignment *models.TemplateAssignment, snapshot *models.VersionSnapshot) *models.EffectiveDocument {
	pages := snapshot.Pages.Clone()
	doc := &models.EffectiveDocument{
		AssignmentID:    assignment.ID,
		TemplateID:      assignment.TemplateID,
		StudentID:       assignment.StudentID,
		TemplateVersion: snapshot.Version,
		DataVersion:     assignment.DataVersion,
		Status:          assignment.Status,
		Pages:           pages,
		Data:            assignment.Data.Clone(),
	}
	for _, slot := range ToggleSlots(pages) {
		items, key, source := slot.ResolveItems(assignment.Data)
		block := &pages[slot.Page].Blocks[slot.Block]
		if block.Props == nil {
			block.Props = models.BlockProps{}
		}
		resolved := models.ResolvedToggle{
			PageIndex:  slot.Page,
			BlockIndex: slot.Block,
			BlockType:  slot.BlockType,
			BlockID:    slot.BlockID,
			RowID:      slot.RowID,
			Key:        key,
			WriteKey:   slot.WriteKey(),
			Source:     source,
			Items:      items,
		}
		if slot.IsRow() {
			row := slot.Row
			resolved.RowIndex = &row
			block.Props.SetRowItems(slot.Row, items)
		} else {
			block.Props.SetItems(items)
		}
		doc.Toggles = append(doc.Toggles, resolved)
	}
	return doc
}

func loadAssignment(ctx context.Context, repo assignmentLoader, id string) (*models.TemplateAssignment, error) {
	assignment, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "assignment not found"), map[string]interface{}{"assignmentId": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}
