package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

// memoryTemplates is an in-memory templateRepository.
type memoryTemplates struct {
	mu        sync.Mutex
	templates map[string]models.Template
	versions  map[string][]models.VersionSnapshot
	getCalls  int
}

func newMemoryTemplates() *memoryTemplates {
	return &memoryTemplates{templates: map[string]models.Template{}, versions: map[string][]models.VersionSnapshot{}}
}

func (m *memoryTemplates) Create(_ context.Context, template *models.Template, snapshot *models.VersionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if template.ID == "" {
		template.ID = "tpl-" + string(rune('a'+len(m.templates)))
	}
	template.CurrentVersion = 1
	snapshot.TemplateID = template.ID
	snapshot.Version = 1
	snapshot.CreatedAt = time.Now()
	m.templates[template.ID] = *template
	m.versions[template.ID] = []models.VersionSnapshot{*snapshot}
	return nil
}

func (m *memoryTemplates) FindByID(_ context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	template, ok := m.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &template, nil
}

func (m *memoryTemplates) AppendVersion(_ context.Context, params repository.AppendVersionParams) (*models.VersionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	template, ok := m.templates[params.TemplateID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	snapshot := models.VersionSnapshot{
		TemplateID:        params.TemplateID,
		Version:           template.CurrentVersion + 1,
		Pages:             params.Pages.Clone(),
		CreatedAt:         time.Now(),
		CreatedBy:         params.CreatedBy,
		ChangeDescription: params.ChangeDescription,
		SaveType:          params.SaveType,
	}
	template.CurrentVersion = snapshot.Version
	template.Pages = params.Pages
	m.templates[params.TemplateID] = template
	m.versions[params.TemplateID] = append(m.versions[params.TemplateID], snapshot)
	return &snapshot, nil
}

func (m *memoryTemplates) GetVersion(_ context.Context, templateID string, version int) (*models.VersionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, snapshot := range m.versions[templateID] {
		if snapshot.Version == version {
			out := snapshot
			out.Pages = snapshot.Pages.Clone()
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryTemplates) ListVersions(_ context.Context, templateID string) ([]models.VersionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := append([]models.VersionSnapshot(nil), m.versions[templateID]...)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

// memoryAssignments is an in-memory assignment and override store. Writes to
// ids in failWrites return writeErr; staleWrites makes the next N conditional
// writes of an id lose their race.
type memoryAssignments struct {
	mu          sync.Mutex
	rows        map[string]*models.TemplateAssignment
	failWrites  map[string]bool
	writeErr    error
	staleWrites map[string]int
	writes      int
}

func newMemoryAssignments(assignments ...models.TemplateAssignment) *memoryAssignments {
	m := &memoryAssignments{rows: map[string]*models.TemplateAssignment{}, failWrites: map[string]bool{}, staleWrites: map[string]int{}}
	for i := range assignments {
		a := assignments[i]
		if a.Data == nil {
			a.Data = models.OverrideData{}
		}
		m.rows[a.ID] = &a
	}
	return m
}

func (m *memoryAssignments) version(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].TemplateVersion
}

func (m *memoryAssignments) data(id string) models.OverrideData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Data.Clone()
}

func (m *memoryAssignments) Create(_ context.Context, assignment *models.TemplateAssignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TemplateID == assignment.TemplateID && row.StudentID == assignment.StudentID {
			return false, nil
		}
	}
	if assignment.ID == "" {
		assignment.ID = "asg-" + assignment.StudentID
	}
	copied := *assignment
	copied.Data = assignment.Data.Clone()
	m.rows[assignment.ID] = &copied
	return true, nil
}

func (m *memoryAssignments) FindByID(_ context.Context, id string) (*models.TemplateAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *row
	copied.Data = row.Data.Clone()
	return &copied, nil
}

func (m *memoryAssignments) FindByTemplateAndStudent(_ context.Context, templateID, studentID string) (*models.TemplateAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TemplateID == templateID && row.StudentID == studentID {
			copied := *row
			copied.Data = row.Data.Clone()
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryAssignments) ListByStudents(_ context.Context, studentIDs []string) ([]models.TemplateAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = struct{}{}
	}
	var out []models.TemplateAssignment
	for _, row := range m.rows {
		if _, ok := wanted[row.StudentID]; ok {
			copied := *row
			copied.Data = row.Data.Clone()
			out = append(out, copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryAssignments) refs(match func(*models.TemplateAssignment) bool) []models.AssignmentRef {
	var refs []models.AssignmentRef
	for _, row := range m.rows {
		if match(row) {
			refs = append(refs, models.AssignmentRef{ID: row.ID, TemplateID: row.TemplateID, StudentID: row.StudentID, TemplateVersion: row.TemplateVersion})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func (m *memoryAssignments) ListRefsByTemplate(_ context.Context, templateID string) ([]models.AssignmentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs(func(row *models.TemplateAssignment) bool { return row.TemplateID == templateID }), nil
}

func (m *memoryAssignments) ListRefsByIDs(_ context.Context, ids []string) ([]models.AssignmentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return m.refs(func(row *models.TemplateAssignment) bool {
		_, ok := wanted[row.ID]
		return ok
	}), nil
}

func (m *memoryAssignments) ListRollbackCandidates(_ context.Context, templateID string, target int) ([]models.AssignmentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs(func(row *models.TemplateAssignment) bool {
		return row.TemplateID == templateID && row.TemplateVersion > target
	}), nil
}

func (m *memoryAssignments) ListDistributionRows(_ context.Context, templateID string) ([]models.DistributionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.DistributionRow
	for _, ref := range m.refs(func(row *models.TemplateAssignment) bool { return row.TemplateID == templateID }) {
		rows = append(rows, models.DistributionRow{AssignmentID: ref.ID, StudentID: ref.StudentID, TemplateVersion: ref.TemplateVersion})
	}
	return rows, nil
}

func (m *memoryAssignments) CountByVersion(_ context.Context, templateID string) (map[int]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[int]int{}
	for _, row := range m.rows {
		if row.TemplateID == templateID {
			counts[row.TemplateVersion]++
		}
	}
	return counts, nil
}

func (m *memoryAssignments) moveVersion(templateID string, ids []string, version int, apply func(current int) bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for _, id := range ids {
		if m.failWrites[id] {
			return nil, m.writeErr
		}
	}
	var updated []string
	for _, id := range ids {
		row, ok := m.rows[id]
		if !ok || row.TemplateID != templateID || !apply(row.TemplateVersion) {
			continue
		}
		row.TemplateVersion = version
		updated = append(updated, id)
	}
	return updated, nil
}

func (m *memoryAssignments) AdvanceVersion(_ context.Context, templateID string, ids []string, version int) ([]string, error) {
	return m.moveVersion(templateID, ids, version, func(current int) bool { return current < version })
}

func (m *memoryAssignments) RewindVersion(_ context.Context, templateID string, ids []string, target int) ([]string, error) {
	return m.moveVersion(templateID, ids, target, func(current int) bool { return current > target })
}

func (m *memoryAssignments) Get(_ context.Context, assignmentID, key string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[assignmentID]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	raw, found := row.Data.Lookup(key)
	return raw, found, nil
}

func (m *memoryAssignments) Set(ctx context.Context, assignmentID, key string, value json.RawMessage) (int, error) {
	return m.SetMany(ctx, assignmentID, models.OverrideData{key: value}, nil)
}

func (m *memoryAssignments) SetMany(_ context.Context, assignmentID string, entries models.OverrideData, expected *int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[assignmentID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if m.failWrites[assignmentID] {
		return 0, m.writeErr
	}
	if expected != nil && m.staleWrites[assignmentID] > 0 {
		m.staleWrites[assignmentID]--
		row.DataVersion++
		return 0, repository.ErrStaleDataVersion
	}
	if expected != nil && *expected != row.DataVersion {
		return 0, repository.ErrStaleDataVersion
	}
	for key, value := range entries {
		row.Data[key] = append(json.RawMessage(nil), value...)
	}
	row.DataVersion++
	return row.DataVersion, nil
}

// newMemoryTemplateService wires a TemplateService over fresh in-memory stores.
func newMemoryTemplateService() (*TemplateService, *memoryTemplates, *memoryAssignments) {
	templates := newMemoryTemplates()
	assignments := newMemoryAssignments()
	return NewTemplateService(templates, assignments, nil, nil, nil, nil), templates, assignments
}
