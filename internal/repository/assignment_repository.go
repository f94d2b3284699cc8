package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const assignmentColumns = `id, template_id, student_id, template_version, data, data_version, status, teacher_completions, created_at, updated_at`

// AssignmentRepository persists template assignments and their version pointers.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment. It reports false when the student already
// holds an assignment for the template.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.TemplateAssignment) (bool, error) {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusDraft
	}
	if assignment.Data == nil {
		assignment.Data = models.OverrideData{}
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	const query = `INSERT INTO template_assignments (` + assignmentColumns + `)
	VALUES (:id, :template_id, :student_id, :template_version, :data, :data_version, :status, :teacher_completions, :created_at, :updated_at)
	ON CONFLICT (template_id, student_id) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, assignment)
	if err != nil {
		return false, fmt.Errorf("create template assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check template assignment insert: %w", err)
	}
	return rows > 0, nil
}

// FindByID loads a full assignment including its override data.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.TemplateAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM template_assignments WHERE id = $1`
	var assignment models.TemplateAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindByTemplateAndStudent loads the assignment of a student for a template.
func (r *AssignmentRepository) FindByTemplateAndStudent(ctx context.Context, templateID, studentID string) (*models.TemplateAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM template_assignments WHERE template_id = $1 AND student_id = $2`
	var assignment models.TemplateAssignment
	if err := r.db.GetContext(ctx, &assignment, query, templateID, studentID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByStudents loads every assignment held by the given students.
func (r *AssignmentRepository) ListByStudents(ctx context.Context, studentIDs []string) ([]models.TemplateAssignment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + assignmentColumns + ` FROM template_assignments WHERE student_id = ANY($1) ORDER BY student_id, template_id`
	var assignments []models.TemplateAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list assignments by students: %w", err)
	}
	return assignments, nil
}

// ListRefsByTemplate returns the slim projection of every assignment of a template.
func (r *AssignmentRepository) ListRefsByTemplate(ctx context.Context, templateID string) ([]models.AssignmentRef, error) {
	const query = `SELECT id, template_id, student_id, template_version FROM template_assignments WHERE template_id = $1 ORDER BY id`
	var refs []models.AssignmentRef
	if err := r.db.SelectContext(ctx, &refs, query, templateID); err != nil {
		return nil, fmt.Errorf("list template assignments: %w", err)
	}
	return refs, nil
}

// ListRefsByIDs returns the slim projection of the listed assignments; unknown ids are omitted.
func (r *AssignmentRepository) ListRefsByIDs(ctx context.Context, ids []string) ([]models.AssignmentRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, template_id, student_id, template_version FROM template_assignments WHERE id = ANY($1) ORDER BY id`
	var refs []models.AssignmentRef
	if err := r.db.SelectContext(ctx, &refs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list assignments by ids: %w", err)
	}
	return refs, nil
}

// ListRollbackCandidates returns assignments bound to any version above target.
func (r *AssignmentRepository) ListRollbackCandidates(ctx context.Context, templateID string, target int) ([]models.AssignmentRef, error) {
	const query = `SELECT id, template_id, student_id, template_version FROM template_assignments
	WHERE template_id = $1 AND template_version > $2 ORDER BY id`
	var refs []models.AssignmentRef
	if err := r.db.SelectContext(ctx, &refs, query, templateID, target); err != nil {
		return nil, fmt.Errorf("list rollback candidates: %w", err)
	}
	return refs, nil
}

// CountByVersion returns how many assignments are bound to each version of a template.
func (r *AssignmentRepository) CountByVersion(ctx context.Context, templateID string) (map[int]int, error) {
	const query = `SELECT template_version, COUNT(*) AS total FROM template_assignments WHERE template_id = $1 GROUP BY template_version`
	var rows []struct {
		Version int `db:"template_version"`
		Total   int `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, templateID); err != nil {
		return nil, fmt.Errorf("count assignments by version: %w", err)
	}
	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Version] = row.Total
	}
	return counts, nil
}

// AdvanceVersion moves the listed assignments forward to version. Rows already
// on or past version are left alone, so re-running is a no-op. Returns the ids
// actually updated.
func (r *AssignmentRepository) AdvanceVersion(ctx context.Context, templateID string, ids []string, version int) ([]string, error) {
	const query = `UPDATE template_assignments SET template_version = $1, updated_at = NOW()
	WHERE template_id = $2 AND id = ANY($3) AND template_version < $1 RETURNING id`
	return r.updateVersion(ctx, query, version, templateID, ids)
}

// RewindVersion moves the listed assignments back to target. Rows already on
// or below target are left alone. Returns the ids actually updated.
func (r *AssignmentRepository) RewindVersion(ctx context.Context, templateID string, ids []string, target int) ([]string, error) {
	const query = `UPDATE template_assignments SET template_version = $1, updated_at = NOW()
	WHERE template_id = $2 AND id = ANY($3) AND template_version > $1 RETURNING id`
	return r.updateVersion(ctx, query, target, templateID, ids)
}

func (r *AssignmentRepository) updateVersion(ctx context.Context, query string, version int, templateID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var updated []string
	if err := r.db.SelectContext(ctx, &updated, query, version, templateID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("update template version pointer: %w", err)
	}
	return updated, nil
}

// ListDistributionRows joins a template's assignments with active enrollments.
func (r *AssignmentRepository) ListDistributionRows(ctx context.Context, templateID string) ([]models.DistributionRow, error) {
	const query = `SELECT ta.id AS assignment_id, ta.student_id, COALESCE(s.full_name, '') AS student_name,
       ta.template_version, e.class_id, c.name AS class_name, c.level AS class_level,
       e.school_year_id, sy.name AS school_year_name
FROM template_assignments ta
LEFT JOIN students s ON s.id = ta.student_id
LEFT JOIN enrollments e ON e.student_id = ta.student_id AND e.status = 'ACTIVE'
LEFT JOIN classes c ON c.id = e.class_id
LEFT JOIN school_years sy ON sy.id = e.school_year_id
WHERE ta.template_id = $1
ORDER BY sy.name NULLS LAST, c.name NULLS LAST, student_name`
	var rows []models.DistributionRow
	if err := r.db.SelectContext(ctx, &rows, query, templateID); err != nil {
		return nil, fmt.Errorf("list version distribution: %w", err)
	}
	return rows, nil
}
