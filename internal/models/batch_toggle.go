package models

// ToggleScopeType selects how the batch scope is resolved to classes.
type ToggleScopeType string

const (
	ToggleScopeClass ToggleScopeType = "class"
	ToggleScopeLevel ToggleScopeType = "level"
)

// ToggleScope is a class id or a level name.
type ToggleScope struct {
	Type  ToggleScopeType `json:"type"`
	Value string          `json:"value"`
}

// ToggleMutation describes a scoped bulk write of toggle-item active flags.
type ToggleMutation struct {
	Scope            ToggleScope      `json:"scope"`
	ToggleLevel      string           `json:"toggleLevel"`
	LevelRelation    LevelRelation    `json:"levelRelation"`
	LanguageCategory LanguageCategory `json:"languageCategory"`
	Active           bool             `json:"active"`
	SchoolYearID     string           `json:"schoolYearId"`
}

// ToggleMutationResult reports the counts of a Mutate pass.
type ToggleMutationResult struct {
	MatchedClasses     int                 `json:"matchedClasses"`
	MatchedStudents    int                 `json:"matchedStudents"`
	MatchedAssignments int                 `json:"matchedAssignments"`
	UpdatedAssignments int                 `json:"updatedAssignments"`
	UpdatedBlocks      int                 `json:"updatedBlocks"`
	UpdatedItems       int                 `json:"updatedItems"`
	FailedAssignments  int                 `json:"failedAssignments"`
	Outcomes           []AssignmentOutcome `json:"outcomes,omitempty"`
}

// ToggleCount is an on/total/off tally.
type ToggleCount struct {
	On    int `json:"on"`
	Total int `json:"total"`
	Off   int `json:"off"`
}

// Add tallies one item.
func (c *ToggleCount) Add(active bool) {
	c.Total++
	if active {
		c.On++
	} else {
		c.Off++
	}
}

// MatrixCell is one class x item-level x language cell.
type MatrixCell struct {
	On    int `json:"on"`
	Total int `json:"total"`
}

// LevelMatrixRow holds the per-language cells for one item level inside a class.
type LevelMatrixRow struct {
	Relation  LevelRelation                    `json:"relation"`
	Languages map[LanguageCategory]*MatrixCell `json:"languages"`
}

// ClassToggleSummary is the per-class section of a summary.
type ClassToggleSummary struct {
	ClassID    string                     `json:"classId"`
	ClassName  string                     `json:"className"`
	ClassLevel string                     `json:"classLevel"`
	Counts     ToggleCount                `json:"counts"`
	Matrix     map[string]*LevelMatrixRow `json:"matrix"`
}

// ToggleSummary is the read-only aggregate produced by Summarize.
type ToggleSummary struct {
	SchoolYearID string                  `json:"schoolYearId"`
	ToggleLevel  string                  `json:"toggleLevel"`
	Classes      []ClassToggleSummary    `json:"classes"`
	Levels       map[string]*ToggleCount `json:"levels"`
	Totals       ToggleCount             `json:"totals"`
}
