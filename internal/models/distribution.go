package models

// VersionDistribution groups a template's assignments by school year, class and version.
type VersionDistribution struct {
	TemplateID     string                   `json:"templateId"`
	CurrentVersion int                      `json:"currentVersion"`
	Totals         map[int]int              `json:"totals"`
	SchoolYears    []SchoolYearDistribution `json:"schoolYears"`
	// Unenrolled lists assignments whose student has no active enrollment.
	Unenrolled []DistributionStudent `json:"unenrolled,omitempty"`
}

// SchoolYearDistribution is one school year bucket.
type SchoolYearDistribution struct {
	SchoolYearID   string              `json:"schoolYearId"`
	SchoolYearName string              `json:"schoolYearName"`
	Classes        []ClassDistribution `json:"classes"`
}

// ClassDistribution lists the students of a class keyed by the version they are bound to.
type ClassDistribution struct {
	ClassID    string                        `json:"classId"`
	ClassName  string                        `json:"className"`
	ClassLevel string                        `json:"classLevel"`
	Versions   map[int][]DistributionStudent `json:"versions"`
}

// DistributionStudent is a single assignment inside a distribution bucket.
type DistributionStudent struct {
	AssignmentID    string `db:"assignment_id" json:"assignmentId"`
	StudentID       string `db:"student_id" json:"studentId"`
	StudentName     string `db:"student_name" json:"studentName"`
	TemplateVersion int    `db:"template_version" json:"templateVersion"`
}

// DistributionRow is the flat join the distribution is folded from.
type DistributionRow struct {
	AssignmentID    string  `db:"assignment_id"`
	StudentID       string  `db:"student_id"`
	StudentName     string  `db:"student_name"`
	TemplateVersion int     `db:"template_version"`
	ClassID         *string `db:"class_id"`
	ClassName       *string `db:"class_name"`
	ClassLevel      *string `db:"class_level"`
	SchoolYearID    *string `db:"school_year_id"`
	SchoolYearName  *string `db:"school_year_name"`
}
