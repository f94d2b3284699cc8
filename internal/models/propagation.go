package models

import "time"

// PropagationMode selects which in-flight assignments adopt a new template version.
type PropagationMode string

const (
	PropagationModeAll      PropagationMode = "all"
	PropagationModeNone     PropagationMode = "none"
	PropagationModeSelected PropagationMode = "selected"
)

// PropagationSelector is either 'all', 'none', or an explicit set of assignment ids.
type PropagationSelector struct {
	Mode          PropagationMode `json:"mode"`
	AssignmentIDs []string        `json:"assignmentIds,omitempty"`
}

// OutcomeStatus is the per-assignment result of a batch pass.
type OutcomeStatus string

const (
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeFailed    OutcomeStatus = "failed"
)

// AssignmentOutcome reports what a batch pass did to one assignment.
type AssignmentOutcome struct {
	AssignmentID string        `json:"assignmentId"`
	Status       OutcomeStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
}

// PropagationResult aggregates a propagation pass.
type PropagationResult struct {
	TemplateID        string              `json:"templateId"`
	Version           int                 `json:"version"`
	ChangeDescription string              `json:"changeDescription,omitempty"`
	Matched           int                 `json:"matched"`
	Updated           int                 `json:"updated"`
	Unchanged         int                 `json:"unchanged"`
	Failed            int                 `json:"failed"`
	Outcomes          []AssignmentOutcome `json:"outcomes"`
}

// RollbackResult aggregates a rollback pass.
type RollbackResult struct {
	TemplateID    string              `json:"templateId"`
	TargetVersion int                 `json:"targetVersion"`
	Matched       int                 `json:"matched"`
	Changed       int                 `json:"changed"`
	Failed        int                 `json:"failed"`
	Outcomes      []AssignmentOutcome `json:"outcomes"`
}

// CommitResult is returned when an edit is committed, optionally propagated in the same call.
type CommitResult struct {
	Snapshot    *VersionSnapshot   `json:"snapshot"`
	Propagation *PropagationResult `json:"propagation,omitempty"`
}

// RollbackStage is a step of the three-click rollback confirmation.
type RollbackStage string

const (
	RollbackStageIdle     RollbackStage = "idle"
	RollbackStageConfirm1 RollbackStage = "confirm1"
	RollbackStageConfirm2 RollbackStage = "confirm2"
	RollbackStageRolling  RollbackStage = "rolling"
)

// RollbackConfirmationState is the persisted progress of one actor's confirmation.
type RollbackConfirmationState struct {
	Stage         RollbackStage `json:"stage"`
	TemplateID    string        `json:"templateId"`
	TargetVersion int           `json:"targetVersion"`
	AssignmentIDs []string      `json:"assignmentIds"`
	TouchedAt     time.Time     `json:"touchedAt"`
}

// RollbackConfirmResult is returned by each confirmation step; Rollback is set once executed.
type RollbackConfirmResult struct {
	Stage    RollbackStage   `json:"stage"`
	Rollback *RollbackResult `json:"rollback,omitempty"`
}
