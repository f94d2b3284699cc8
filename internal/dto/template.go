package dto

import "github.com/noah-isme/gradebook-api/internal/models"

// CreateTemplateRequest creates a template at version 1.
type CreateTemplateRequest struct {
	Name  string       `json:"name" validate:"required,max=200"`
	Pages models.Pages `json:"pages" validate:"required,min=1"`
}

// CommitEditRequest commits a structural edit. Propagation, when present, is
// applied to in-flight assignments right after the new snapshot is appended.
type CommitEditRequest struct {
	Pages             models.Pages                `json:"pages" validate:"required,min=1"`
	ChangeDescription string                      `json:"changeDescription" validate:"max=500"`
	SaveType          models.SaveType             `json:"saveType" validate:"omitempty,oneof=manual auto"`
	Propagation       *models.PropagationSelector `json:"propagation,omitempty"`
}

// PropagateRequest advances in-flight assignments to the template's current
// version. It is checked by gin on bind.
type PropagateRequest struct {
	ChangeDescription string                 `json:"changeDescription" binding:"max=500"`
	Mode              models.PropagationMode `json:"mode" binding:"required,oneof=all none selected"`
	AssignmentIDs     []string               `json:"assignmentIds" binding:"required_if=Mode selected,dive,required"`
}

// Selector converts the request into a propagation selector.
func (r PropagateRequest) Selector() models.PropagationSelector {
	return models.PropagationSelector{Mode: r.Mode, AssignmentIDs: r.AssignmentIDs}
}

// RollbackRequest moves the listed assignments back to TargetVersion. The
// target is range-checked by the rollback engine, which reports InvalidTarget.
type RollbackRequest struct {
	TargetVersion int      `json:"targetVersion"`
	AssignmentIDs []string `json:"assignmentIds" binding:"required,min=1,dive,required"`
}

// RollbackCandidatesQuery filters rollback candidates.
type RollbackCandidatesQuery struct {
	TargetVersion int `form:"targetVersion" binding:"required"`
}
