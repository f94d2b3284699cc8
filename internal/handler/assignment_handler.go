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

type assignmentService interface {
	Assign(ctx context.Context, req dto.AssignTemplateRequest) (*models.TemplateAssignment, bool, error)
	Get(ctx context.Context, id string) (*models.TemplateAssignment, error)
	SetToggleItems(ctx context.Context, id string, req dto.SetToggleItemsRequest) (*dto.OverrideWriteResult, error)
	SetOverride(ctx context.Context, id, key string, req dto.SetOverrideRequest) (*dto.OverrideWriteResult, error)
	GetOverride(ctx context.Context, id, key string) (*dto.OverrideValueResponse, error)
}

type documentResolver interface {
	Resolve(ctx context.Context, assignmentID string) (*models.EffectiveDocument, error)
}

// AssignmentHandler exposes assignment and override endpoints.
type AssignmentHandler struct {
	service  assignmentService
	resolver documentResolver
}

// NewAssignmentHandler builds a new handler.
func NewAssignmentHandler(service assignmentService, resolver documentResolver) *AssignmentHandler {
	return &AssignmentHandler{service: service, resolver: resolver}
}

// Assign godoc
// @Summary Assign a template to a student
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.AssignTemplateRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Already assigned"
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req dto.AssignTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, created, err := h.service.Assign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !created {
		response.JSON(c, http.StatusOK, assignment, nil)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get an assignment with its override data
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Effective godoc
// @Summary Resolve the effective document of an assignment
// @Description Bound snapshot with override data layered on top. Used by the PDF pipeline.
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/effective [get]
func (h *AssignmentHandler) Effective(c *gin.Context) {
	doc, err := h.resolver.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// SetToggles godoc
// @Summary Write the toggle items of a block or table row
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.SetToggleItemsRequest true "Toggle items"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/toggles [put]
func (h *AssignmentHandler) SetToggles(c *gin.Context) {
	var req dto.SetToggleItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid toggle payload"))
		return
	}
	result, err := h.service.SetToggleItems(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SetOverride godoc
// @Summary Store a raw override value
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param key path string true "Data key"
// @Param payload body dto.SetOverrideRequest true "Override value"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/overrides/{key} [put]
func (h *AssignmentHandler) SetOverride(c *gin.Context) {
	var req dto.SetOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	result, err := h.service.SetOverride(c.Request.Context(), c.Param("id"), c.Param("key"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GetOverride godoc
// @Summary Read a raw override value
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Param key path string true "Data key"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/overrides/{key} [get]
func (h *AssignmentHandler) GetOverride(c *gin.Context) {
	value, err := h.service.GetOverride(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, value, nil)
}
