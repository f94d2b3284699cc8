package service

import (
	"context"
	"sort"
	"strconv"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/export"
)

type distributionRepository interface {
	ListDistributionRows(ctx context.Context, templateID string) ([]models.DistributionRow, error)
	ListRollbackCandidates(ctx context.Context, templateID string, target int) ([]models.AssignmentRef, error)
}

// DistributionService answers "who is on which version".
type DistributionService struct {
	templates templateGetter
	repo      distributionRepository
}

// NewDistributionService constructs DistributionService.
func NewDistributionService(templates templateGetter, repo distributionRepository) *DistributionService {
	return &DistributionService{templates: templates, repo: repo}
}

// Distribution groups a template's assignments by school year, class and bound version.
func (s *DistributionService) Distribution(ctx context.Context, templateID string) (*models.VersionDistribution, error) {
	template, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListDistributionRows(ctx, templateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version distribution")
	}
	return BuildDistribution(template, rows), nil
}

// BuildDistribution folds the flat join, preserving the row order for years and
// classes. A student enrolled in several classes is listed under each of them
// but counted once in Totals.
func BuildDistribution(template *models.Template, rows []models.DistributionRow) *models.VersionDistribution {
	dist := &models.VersionDistribution{
		TemplateID:     template.ID,
		CurrentVersion: template.CurrentVersion,
		Totals:         make(map[int]int),
		SchoolYears:    []models.SchoolYearDistribution{},
	}
	yearIndex := make(map[string]int)
	classIndex := make(map[string]map[string]int)
	counted := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		student := models.DistributionStudent{
			AssignmentID:    row.AssignmentID,
			StudentID:       row.StudentID,
			StudentName:     row.StudentName,
			TemplateVersion: row.TemplateVersion,
		}
		if _, ok := counted[row.AssignmentID]; !ok {
			counted[row.AssignmentID] = struct{}{}
			dist.Totals[row.TemplateVersion]++
		}
		if row.ClassID == nil || row.SchoolYearID == nil {
			dist.Unenrolled = append(dist.Unenrolled, student)
			continue
		}

		yearID := *row.SchoolYearID
		yi, ok := yearIndex[yearID]
		if !ok {
			yi = len(dist.SchoolYears)
			yearIndex[yearID] = yi
			classIndex[yearID] = make(map[string]int)
			dist.SchoolYears = append(dist.SchoolYears, models.SchoolYearDistribution{
				SchoolYearID:   yearID,
				SchoolYearName: deref(row.SchoolYearName),
			})
		}
		year := &dist.SchoolYears[yi]

		classID := *row.ClassID
		ci, ok := classIndex[yearID][classID]
		if !ok {
			ci = len(year.Classes)
			classIndex[yearID][classID] = ci
			year.Classes = append(year.Classes, models.ClassDistribution{
				ClassID:    classID,
				ClassName:  deref(row.ClassName),
				ClassLevel: deref(row.ClassLevel),
				Versions:   make(map[int][]models.DistributionStudent),
			})
		}
		class := &year.Classes[ci]
		class.Versions[row.TemplateVersion] = append(class.Versions[row.TemplateVersion], student)
	}
	return dist
}

// RollbackCandidates lists the assignments on any version above targetVersion.
func (s *DistributionService) RollbackCandidates(ctx context.Context, templateID string, targetVersion int) ([]models.AssignmentRef, error) {
	template, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if targetVersion < 1 || targetVersion > template.CurrentVersion {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTarget, "target version does not exist"), map[string]interface{}{
			"templateId":     templateID,
			"targetVersion":  targetVersion,
			"currentVersion": template.CurrentVersion,
		})
	}
	refs, err := s.repo.ListRollbackCandidates(ctx, templateID, targetVersion)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rollback candidates")
	}
	if refs == nil {
		refs = []models.AssignmentRef{}
	}
	return refs, nil
}

var distributionHeaders = []string{
	"school_year_id", "school_year", "class_id", "class", "class_level",
	"student_id", "student_name", "assignment_id", "template_version", "is_current",
}

// DistributionTable flattens a distribution for CSV export, one row per
// assignment. Versions are listed in ascending order within a class and
// unenrolled assignments come last.
func DistributionTable(dist *models.VersionDistribution) export.Table {
	table := export.Table{Headers: distributionHeaders, Rows: [][]string{}}
	row := func(yearID, yearName, classID, className, classLevel string, student models.DistributionStudent) []string {
		return []string{
			yearID, yearName, classID, className, classLevel,
			student.StudentID, student.StudentName, student.AssignmentID,
			strconv.Itoa(student.TemplateVersion),
			strconv.FormatBool(student.TemplateVersion == dist.CurrentVersion),
		}
	}
	for _, year := range dist.SchoolYears {
		for _, class := range year.Classes {
			versions := make([]int, 0, len(class.Versions))
			for version := range class.Versions {
				versions = append(versions, version)
			}
			sort.Ints(versions)
			for _, version := range versions {
				for _, student := range class.Versions[version] {
					table.Rows = append(table.Rows, row(year.SchoolYearID, year.SchoolYearName, class.ClassID, class.ClassName, class.ClassLevel, student))
				}
			}
		}
	}
	for _, student := range dist.Unenrolled {
		table.Rows = append(table.Rows, row("", "", "", "", "", student))
	}
	return table
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
