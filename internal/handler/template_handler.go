package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/export"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type templateStore interface {
	Create(ctx context.Context, req dto.CreateTemplateRequest, actorID string) (*models.Template, error)
	Get(ctx context.Context, id string) (*models.Template, error)
	GetSnapshot(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, error)
	GetHistory(ctx context.Context, templateID string) ([]models.VersionHistoryEntry, error)
}

type templatePublisher interface {
	Publish(ctx context.Context, templateID string, req dto.CommitEditRequest, actorID string) (*models.CommitResult, error)
	Propagate(ctx context.Context, templateID, changeDescription string, selector models.PropagationSelector) (*models.PropagationResult, error)
}

type templateRollback interface {
	Rollback(ctx context.Context, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackResult, error)
}

type rollbackConfirmer interface {
	Confirm(ctx context.Context, actorID, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackConfirmResult, error)
}

type versionDistribution interface {
	Distribution(ctx context.Context, templateID string) (*models.VersionDistribution, error)
	RollbackCandidates(ctx context.Context, templateID string, targetVersion int) ([]models.AssignmentRef, error)
}

// TemplateHandler exposes template versioning endpoints.
type TemplateHandler struct {
	templates    templateStore
	publisher    templatePublisher
	rollback     templateRollback
	confirmer    rollbackConfirmer
	distribution versionDistribution
}

// NewTemplateHandler builds a new handler.
func NewTemplateHandler(templates templateStore, publisher templatePublisher, rollback templateRollback, confirmer rollbackConfirmer, distribution versionDistribution) *TemplateHandler {
	return &TemplateHandler{templates: templates, publisher: publisher, rollback: rollback, confirmer: confirmer, distribution: distribution}
}

// Create godoc
// @Summary Create a template at version 1
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	template, err := h.templates.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// Get godoc
// @Summary Get the live template
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// CommitVersion godoc
// @Summary Commit a structural edit, optionally propagating it
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.CommitEditRequest true "Edit payload"
// @Success 201 {object} response.Envelope
// @Router /templates/{id}/versions [post]
func (h *TemplateHandler) CommitVersion(c *gin.Context) {
	var req dto.CommitEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template edit"))
		return
	}
	result, err := h.publisher.Publish(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		if result != nil && result.Snapshot != nil {
			response.JSON(c, appErrors.FromError(err).Status, result, nil, map[string]interface{}{"propagationError": appErrors.FromError(err)})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// History godoc
// @Summary List template versions with bound assignment counts
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/versions [get]
func (h *TemplateHandler) History(c *gin.Context) {
	history, err := h.templates.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Snapshot godoc
// @Summary Get one template version
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Param version path int true "Version"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/versions/{version} [get]
func (h *TemplateHandler) Snapshot(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version must be an integer"))
		return
	}
	snapshot, err := h.templates.GetSnapshot(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Propagate godoc
// @Summary Advance assignments to the current version
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.PropagateRequest true "Selector"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/propagate [post]
func (h *TemplateHandler) Propagate(c *gin.Context) {
	var req dto.PropagateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid propagation payload"))
		return
	}
	result, err := h.publisher.Propagate(c.Request.Context(), c.Param("id"), req.ChangeDescription, req.Selector())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Rollback godoc
// @Summary Move assignments back to an earlier version
// @Description Non-interactive callers only: executes immediately. Interactive clients go through /rollback/confirm.
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.RollbackRequest true "Rollback target"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/rollback [post]
func (h *TemplateHandler) Rollback(c *gin.Context) {
	var req dto.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rollback payload"))
		return
	}
	result, err := h.rollback.Rollback(c.Request.Context(), c.Param("id"), req.TargetVersion, req.AssignmentIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ConfirmRollback godoc
// @Summary Advance the three-step rollback confirmation
// @Description The third call within the confirmation window performs the rollback.
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.RollbackRequest true "Rollback target"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/rollback/confirm [post]
func (h *TemplateHandler) ConfirmRollback(c *gin.Context) {
	var req dto.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rollback payload"))
		return
	}
	result, err := h.confirmer.Confirm(c.Request.Context(), actorID(c), c.Param("id"), req.TargetVersion, req.AssignmentIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Distribution godoc
// @Summary Show which assignments are on which version
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/distribution [get]
func (h *TemplateHandler) Distribution(c *gin.Context) {
	dist, err := h.distribution.Distribution(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dist, nil)
}

// ExportDistribution godoc
// @Summary Download the version distribution as CSV
// @Tags Templates
// @Produce text/csv
// @Param id path string true "Template ID"
// @Success 200 {file} file
// @Router /templates/{id}/distribution/export [get]
func (h *TemplateHandler) ExportDistribution(c *gin.Context) {
	dist, err := h.distribution.Distribution(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	buf := &bytes.Buffer{}
	if err := export.WriteCSV(buf, service.DistributionTable(dist)); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render distribution export"))
		return
	}
	response.CSV(c, "distribution-"+dist.TemplateID+".csv", buf.Bytes())
}

// RollbackCandidates godoc
// @Summary List assignments above a target version
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Param targetVersion query int true "Target version"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/rollback-candidates [get]
func (h *TemplateHandler) RollbackCandidates(c *gin.Context) {
	var query dto.RollbackCandidatesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid target version"))
		return
	}
	refs, err := h.distribution.RollbackCandidates(c.Request.Context(), c.Param("id"), query.TargetVersion)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, refs, nil, map[string]interface{}{"count": len(refs)})
}
