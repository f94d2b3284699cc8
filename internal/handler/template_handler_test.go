package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type templateServiceStub struct {
	err             error
	publishResult   *models.CommitResult
	lastActor       string
	lastVersion     int
	lastSelector    models.PropagationSelector
	lastRollbackIDs []string
	candidates      []models.AssignmentRef
}

func (s *templateServiceStub) Create(_ context.Context, req dto.CreateTemplateRequest, actorID string) (*models.Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastActor = actorID
	return &models.Template{ID: "tpl-1", Name: req.Name, CurrentVersion: 1, Pages: req.Pages}, nil
}

func (s *templateServiceStub) Get(_ context.Context, id string) (*models.Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Template{ID: id, CurrentVersion: 2}, nil
}

func (s *templateServiceStub) GetSnapshot(_ context.Context, templateID string, version int) (*models.VersionSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastVersion = version
	return &models.VersionSnapshot{TemplateID: templateID, Version: version}, nil
}

func (s *templateServiceStub) GetHistory(_ context.Context, templateID string) ([]models.VersionHistoryEntry, error) {
	return []models.VersionHistoryEntry{{VersionSnapshot: models.VersionSnapshot{TemplateID: templateID, Version: 1}, BoundCount: 3, IsCurrent: true}}, s.err
}

func (s *templateServiceStub) Publish(_ context.Context, templateID string, _ dto.CommitEditRequest, actorID string) (*models.CommitResult, error) {
	s.lastActor = actorID
	return s.publishResult, s.err
}

func (s *templateServiceStub) Propagate(_ context.Context, templateID, changeDescription string, selector models.PropagationSelector) (*models.PropagationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastSelector = selector
	return &models.PropagationResult{TemplateID: templateID, Version: 2, ChangeDescription: changeDescription}, nil
}

func (s *templateServiceStub) Rollback(_ context.Context, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastRollbackIDs = assignmentIDs
	return &models.RollbackResult{TemplateID: templateID, TargetVersion: targetVersion, Matched: len(assignmentIDs)}, nil
}

func (s *templateServiceStub) Confirm(_ context.Context, actorID, _ string, targetVersion int, _ []string) (*models.RollbackConfirmResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastActor = actorID
	s.lastVersion = targetVersion
	return &models.RollbackConfirmResult{Stage: models.RollbackStageConfirm1}, nil
}

func (s *templateServiceStub) Distribution(_ context.Context, templateID string) (*models.VersionDistribution, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.VersionDistribution{TemplateID: templateID, CurrentVersion: 2, Totals: map[int]int{1: 2, 2: 1}}, nil
}

func (s *templateServiceStub) RollbackCandidates(_ context.Context, _ string, targetVersion int) ([]models.AssignmentRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastVersion = targetVersion
	return s.candidates, nil
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newTemplateRouter(stub *templateServiceStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTemplateHandler(stub, stub, stub, stub, stub)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
		c.Next()
	})
	r.POST("/templates", h.Create)
	r.GET("/templates/:id", h.Get)
	r.POST("/templates/:id/versions", h.CommitVersion)
	r.GET("/templates/:id/versions", h.History)
	r.GET("/templates/:id/versions/:version", h.Snapshot)
	r.POST("/templates/:id/propagate", h.Propagate)
	r.POST("/templates/:id/rollback", h.Rollback)
	r.POST("/templates/:id/rollback/confirm", h.ConfirmRollback)
	r.GET("/templates/:id/distribution", h.Distribution)
	r.GET("/templates/:id/distribution/export", h.ExportDistribution)
	r.GET("/templates/:id/rollback-candidates", h.RollbackCandidates)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTemplateHandlerCreate(t *testing.T) {
	stub := &templateServiceStub{}
	r := newTemplateRouter(stub)

	w := doJSON(r, http.MethodPost, "/templates", map[string]interface{}{
		"name":  "Report card",
		"pages": []map[string]interface{}{{"blocks": []interface{}{}}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", stub.lastActor)

	var template models.Template
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &template))
	assert.Equal(t, 1, template.CurrentVersion)

	w = doJSON(r, http.MethodPost, "/templates", "{broken")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestTemplateHandlerSnapshot(t *testing.T) {
	stub := &templateServiceStub{}
	r := newTemplateRouter(stub)

	w := doJSON(r, http.MethodGet, "/templates/tpl-1/versions/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, stub.lastVersion)

	w = doJSON(r, http.MethodGet, "/templates/tpl-1/versions/latest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = appErrors.Clone(appErrors.ErrNotFound, "template version not found")
	w = doJSON(r, http.MethodGet, "/templates/tpl-1/versions/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, decodeEnvelope(t, w).Error.Code)
}

func TestTemplateHandlerCommitVersion(t *testing.T) {
	stub := &templateServiceStub{publishResult: &models.CommitResult{Snapshot: &models.VersionSnapshot{TemplateID: "tpl-1", Version: 3}}}
	r := newTemplateRouter(stub)
	body := map[string]interface{}{"pages": []map[string]interface{}{{"blocks": []interface{}{}}}}

	w := doJSON(r, http.MethodPost, "/templates/tpl-1/versions", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", stub.lastActor)

	stub.err = appErrors.Clone(appErrors.ErrInternal, "propagation interrupted")
	w = doJSON(r, http.MethodPost, "/templates/tpl-1/versions", body)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Contains(t, string(env.Data), `"version":3`, "committed snapshot is still reported")
	assert.Contains(t, env.Meta, "propagationError")

	stub.publishResult = nil
	stub.err = appErrors.Clone(appErrors.ErrValidation, "pages are required")
	w = doJSON(r, http.MethodPost, "/templates/tpl-1/versions", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateHandlerPropagate(t *testing.T) {
	stub := &templateServiceStub{}
	r := newTemplateRouter(stub)

	w := doJSON(r, http.MethodPost, "/templates/tpl-1/propagate", map[string]interface{}{
		"mode":              "selected",
		"assignmentIds":     []string{"a1", "a2"},
		"changeDescription": "new page",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PropagationModeSelected, stub.lastSelector.Mode)
	assert.Equal(t, []string{"a1", "a2"}, stub.lastSelector.AssignmentIDs)
}

func TestTemplateHandlerRollbackAndConfirm(t *testing.T) {
	stub := &templateServiceStub{}
	r := newTemplateRouter(stub)
	body := map[string]interface{}{"targetVersion": 1, "assignmentIds": []string{"a1"}}

	w := doJSON(r, http.MethodPost, "/templates/tpl-1/rollback", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a1"}, stub.lastRollbackIDs)

	w = doJSON(r, http.MethodPost, "/templates/tpl-1/rollback/confirm", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", stub.lastActor)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"stage":"confirm1"`)

	stub.err = appErrors.Clone(appErrors.ErrInvalidTarget, "target version does not exist")
	w = doJSON(r, http.MethodPost, "/templates/tpl-1/rollback", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestTemplateHandlerDistributionAndCandidates(t *testing.T) {
	stub := &templateServiceStub{candidates: []models.AssignmentRef{{ID: "a1", StudentID: "s1", TemplateVersion: 2}}}
	r := newTemplateRouter(stub)

	w := doJSON(r, http.MethodGet, "/templates/tpl-1/distribution", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/templates/tpl-1/rollback-candidates?targetVersion=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.lastVersion)
	assert.EqualValues(t, 1, decodeEnvelope(t, w).Meta["count"])

	w = doJSON(r, http.MethodGet, "/templates/tpl-1/rollback-candidates?targetVersion=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateHandlerHistory(t *testing.T) {
	r := newTemplateRouter(&templateServiceStub{})

	w := doJSON(r, http.MethodGet, "/templates/tpl-1/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.VersionHistoryEntry
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].BoundCount)
	assert.True(t, history[0].IsCurrent)
}

func TestTemplateHandlerExportDistribution(t *testing.T) {
	stub := &templateServiceStub{}
	r := newTemplateRouter(stub)

	w := doJSON(r, http.MethodGet, "/templates/tpl-1/distribution/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "distribution-tpl-1.csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "school_year_id,school_year,class_id"))

	stub.err = appErrors.Clone(appErrors.ErrNotFound, "template not found")
	w = doJSON(r, http.MethodGet, "/templates/tpl-1/distribution/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplateHandlerRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{name: "unknown propagation mode", method: http.MethodPost, path: "/templates/tpl-1/propagate", body: map[string]interface{}{"mode": "some"}},
		{name: "selected without ids", method: http.MethodPost, path: "/templates/tpl-1/propagate", body: map[string]interface{}{"mode": "selected"}},
		{name: "blank assignment id", method: http.MethodPost, path: "/templates/tpl-1/propagate", body: map[string]interface{}{"mode": "selected", "assignmentIds": []string{""}}},
		{name: "rollback without ids", method: http.MethodPost, path: "/templates/tpl-1/rollback", body: map[string]interface{}{"targetVersion": 1}},
		{name: "confirm without ids", method: http.MethodPost, path: "/templates/tpl-1/rollback/confirm", body: map[string]interface{}{"targetVersion": 1, "assignmentIds": []string{}}},
		{name: "candidates without target", method: http.MethodGet, path: "/templates/tpl-1/rollback-candidates"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &templateServiceStub{}
			r := newTemplateRouter(stub)

			w := doJSON(r, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
			assert.Empty(t, stub.lastSelector.Mode)
			assert.Nil(t, stub.lastRollbackIDs)
			assert.Empty(t, stub.lastActor)
			assert.Zero(t, stub.lastVersion)
		})
	}
}
