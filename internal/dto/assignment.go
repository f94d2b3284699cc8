package dto

import (
	"encoding/json"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// AssignTemplateRequest binds a student to a template at its current version.
type AssignTemplateRequest struct {
	TemplateID string `json:"templateId" validate:"required"`
	StudentID  string `json:"studentId" validate:"required"`
}

// SetToggleItemsRequest writes the toggle items of one block, or one table row
// when RowIndex is set, of the assignment's bound snapshot.
type SetToggleItemsRequest struct {
	PageIndex  *int                `json:"pageIndex" validate:"required,min=0"`
	BlockIndex *int                `json:"blockIndex" validate:"required,min=0"`
	RowIndex   *int                `json:"rowIndex" validate:"omitempty,min=0"`
	Items      []models.ToggleItem `json:"items" validate:"required,dive"`
}

// SetOverrideRequest stores an arbitrary JSON value under a data key.
type SetOverrideRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
}

// OverrideWriteResult reports where a write landed.
type OverrideWriteResult struct {
	AssignmentID string `json:"assignmentId"`
	Key          string `json:"key"`
	DataVersion  int    `json:"dataVersion"`
}

// OverrideValueResponse is a single override lookup.
type OverrideValueResponse struct {
	AssignmentID string          `json:"assignmentId"`
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
}
