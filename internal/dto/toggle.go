package dto

import "github.com/noah-isme/gradebook-api/internal/models"

// MutateTogglesRequest is the payload of a scoped bulk toggle write.
type MutateTogglesRequest struct {
	ScopeType        models.ToggleScopeType  `json:"scopeType" binding:"required,oneof=class level"`
	ScopeValue       string                  `json:"scopeValue" binding:"required"`
	ToggleLevel      string                  `json:"toggleLevel" binding:"required"`
	LevelRelation    models.LevelRelation    `json:"levelRelation" binding:"omitempty,oneof=all current past"`
	LanguageCategory models.LanguageCategory `json:"languageCategory" binding:"omitempty,oneof=all poly arabic english"`
	Active           *bool                   `json:"active" binding:"required"`
	SchoolYearID     string                  `json:"schoolYearId" binding:"required"`
}

// Mutation converts the request, defaulting the filters to 'all'.
func (r MutateTogglesRequest) Mutation() models.ToggleMutation {
	mutation := models.ToggleMutation{
		Scope:            models.ToggleScope{Type: r.ScopeType, Value: r.ScopeValue},
		ToggleLevel:      r.ToggleLevel,
		LevelRelation:    r.LevelRelation,
		LanguageCategory: r.LanguageCategory,
		SchoolYearID:     r.SchoolYearID,
	}
	if r.Active != nil {
		mutation.Active = *r.Active
	}
	if mutation.LevelRelation == "" {
		mutation.LevelRelation = models.LevelRelationAll
	}
	if mutation.LanguageCategory == "" {
		mutation.LanguageCategory = models.LanguageCategoryAll
	}
	return mutation
}

// ToggleSummaryQuery selects the summary scope.
type ToggleSummaryQuery struct {
	SchoolYearID string `form:"schoolYearId" binding:"required"`
	ToggleLevel  string `form:"toggleLevel"`
}
