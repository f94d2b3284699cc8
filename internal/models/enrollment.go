package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Only ACTIVE enrollments are in scope for batch operations.
const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusArchived    EnrollmentStatus = "ARCHIVED"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
)

// Enrollment captures a student's registration to a class within a school year.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"studentId"`
	ClassID      string           `db:"class_id" json:"classId"`
	SchoolYearID string           `db:"school_year_id" json:"schoolYearId"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
}

// EnrolledStudent is an active enrollment joined with its student, class and year names.
type EnrolledStudent struct {
	StudentID      string `db:"student_id" json:"studentId"`
	StudentName    string `db:"student_name" json:"studentName"`
	ClassID        string `db:"class_id" json:"classId"`
	ClassName      string `db:"class_name" json:"className"`
	ClassLevel     string `db:"class_level" json:"classLevel"`
	SchoolYearID   string `db:"school_year_id" json:"schoolYearId"`
	SchoolYearName string `db:"school_year_name" json:"schoolYearName"`
}
