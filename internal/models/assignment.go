package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AssignmentStatus tracks where a student's report card is in its workflow.
type AssignmentStatus string

const (
	AssignmentStatusDraft      AssignmentStatus = "draft"
	AssignmentStatusInProgress AssignmentStatus = "in_progress"
	AssignmentStatusCompleted  AssignmentStatus = "completed"
	AssignmentStatusSigned     AssignmentStatus = "signed"
)

// TemplateAssignment binds one student to one template at a pinned version.
type TemplateAssignment struct {
	ID                 string             `db:"id" json:"id"`
	TemplateID         string             `db:"template_id" json:"templateId"`
	StudentID          string             `db:"student_id" json:"studentId"`
	TemplateVersion    int                `db:"template_version" json:"templateVersion"`
	Data               OverrideData       `db:"data" json:"data"`
	DataVersion        int                `db:"data_version" json:"dataVersion"`
	Status             AssignmentStatus   `db:"status" json:"status"`
	TeacherCompletions TeacherCompletions `db:"teacher_completions" json:"teacherCompletions"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updatedAt"`
}

// AssignmentRef is the slim projection batch passes read before writing.
type AssignmentRef struct {
	ID              string `db:"id" json:"id"`
	TemplateID      string `db:"template_id" json:"templateId"`
	StudentID       string `db:"student_id" json:"studentId"`
	TemplateVersion int    `db:"template_version" json:"templateVersion"`
}

// TeacherCompletion records one teacher's sign-off on an assignment.
type TeacherCompletion struct {
	TeacherID     string `json:"teacherId"`
	Completed     bool   `json:"completed"`
	CompletedSem1 *bool  `json:"completedSem1,omitempty"`
	CompletedSem2 *bool  `json:"completedSem2,omitempty"`
}

// TeacherCompletions is stored as a JSONB array.
type TeacherCompletions []TeacherCompletion

// Value implements driver.Valuer.
func (t TeacherCompletions) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal([]TeacherCompletion(t))
	if err != nil {
		return nil, fmt.Errorf("marshal teacher completions: %w", err)
	}
	return raw, nil
}

// Scan implements sql.Scanner.
func (t *TeacherCompletions) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan teacher completions: %w", err)
	}
	if len(raw) == 0 {
		*t = TeacherCompletions{}
		return nil
	}
	var out []TeacherCompletion
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan teacher completions: %w", err)
	}
	*t = out
	return nil
}

// OverrideData is an assignment's flat key -> JSON override map.
type OverrideData map[string]json.RawMessage

// Value implements driver.Valuer.
func (d OverrideData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(map[string]json.RawMessage(d))
	if err != nil {
		return nil, fmt.Errorf("marshal override data: %w", err)
	}
	return raw, nil
}

// Scan implements sql.Scanner.
func (d *OverrideData) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan override data: %w", err)
	}
	out := OverrideData{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("scan override data: %w", err)
		}
	}
	*d = out
	return nil
}

// Lookup returns the raw value under key when present and not JSON null.
func (d OverrideData) Lookup(key string) (json.RawMessage, bool) {
	if d == nil || key == "" {
		return nil, false
	}
	raw, ok := d[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// Clone copies the map and its values.
func (d OverrideData) Clone() OverrideData {
	if d == nil {
		return OverrideData{}
	}
	out := make(OverrideData, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
