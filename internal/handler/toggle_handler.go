package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type batchToggleService interface {
	Mutate(ctx context.Context, mutation models.ToggleMutation) (*models.ToggleMutationResult, error)
	Summarize(ctx context.Context, schoolYearID, toggleLevel string) (*models.ToggleSummary, error)
}

// ToggleHandler exposes scoped bulk toggle endpoints.
type ToggleHandler struct {
	service batchToggleService
}

// NewToggleHandler builds a new handler.
func NewToggleHandler(service batchToggleService) *ToggleHandler {
	return &ToggleHandler{service: service}
}

// Mutate godoc
// @Summary Bulk set toggle items for a class or level
// @Tags Toggles
// @Accept json
// @Produce json
// @Param payload body dto.MutateTogglesRequest true "Mutation"
// @Success 200 {object} response.Envelope
// @Router /toggles/batch [post]
func (h *ToggleHandler) Mutate(c *gin.Context) {
	var req dto.MutateTogglesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid toggle mutation"))
		return
	}
	result, err := h.service.Mutate(c.Request.Context(), req.Mutation())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Toggle on/off counts per class, level and language
// @Tags Toggles
// @Produce json
// @Param schoolYearId query string true "School year ID"
// @Param toggleLevel query string false "Item level filter (default ALL)"
// @Success 200 {object} response.Envelope
// @Router /toggles/summary [get]
func (h *ToggleHandler) Summary(c *gin.Context) {
	var query dto.ToggleSummaryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid summary query"))
		return
	}
	summary, err := h.service.Summarize(c.Request.Context(), query.SchoolYearID, query.ToggleLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
