package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// EnrollmentRepository reads enrollments owned by the enrollment service.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveByClasses returns the non-archived enrollments of the given classes
// for a school year, joined with student, class and year names.
func (r *EnrollmentRepository) ListActiveByClasses(ctx context.Context, classIDs []string, schoolYearID string) ([]models.EnrolledStudent, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT e.student_id, COALESCE(s.full_name, '') AS student_name, e.class_id, c.name AS class_name,
       c.level AS class_level, e.school_year_id, COALESCE(sy.name, '') AS school_year_name
FROM enrollments e
JOIN classes c ON c.id = e.class_id
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN school_years sy ON sy.id = e.school_year_id
WHERE e.class_id = ANY($1) AND e.school_year_id = $2 AND e.status = $3
ORDER BY c.name, student_name`
	var students []models.EnrolledStudent
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(classIDs), schoolYearID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return students, nil
}
