package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

// DefaultRollbackConfirmWindow is the inactivity timeout of the confirmation ritual.
const DefaultRollbackConfirmWindow = 5 * time.Second

// RollbackConfirmation is the idle -> confirm1 -> confirm2 -> rolling state
// machine. Any non-terminal state falls back to idle after window of inactivity.
type RollbackConfirmation struct {
	stage   models.RollbackStage
	touched time.Time
	window  time.Duration
	now     func() time.Time
}

// NewRollbackConfirmation starts idle. A nil clock uses time.Now.
func NewRollbackConfirmation(window time.Duration, now func() time.Time) *RollbackConfirmation {
	if window <= 0 {
		window = DefaultRollbackConfirmWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RollbackConfirmation{stage: models.RollbackStageIdle, window: window, now: now}
}

// Restore resumes a persisted state.
func (c *RollbackConfirmation) Restore(stage models.RollbackStage, touched time.Time) {
	c.stage = stage
	c.touched = touched
	if c.stage == "" {
		c.stage = models.RollbackStageIdle
	}
}

// Stage returns the current stage after applying the inactivity timeout.
func (c *RollbackConfirmation) Stage() models.RollbackStage {
	if c.stage == models.RollbackStageConfirm1 || c.stage == models.RollbackStageConfirm2 {
		if c.now().Sub(c.touched) > c.window {
			c.stage = models.RollbackStageIdle
		}
	}
	return c.stage
}

// Confirm advances one step. rolling is only reachable from confirm2 and is terminal until Reset.
func (c *RollbackConfirmation) Confirm() models.RollbackStage {
	switch c.Stage() {
	case models.RollbackStageIdle:
		c.stage = models.RollbackStageConfirm1
	case models.RollbackStageConfirm1:
		c.stage = models.RollbackStageConfirm2
	case models.RollbackStageConfirm2:
		c.stage = models.RollbackStageRolling
	}
	c.touched = c.now()
	return c.stage
}

// Reset returns to idle.
func (c *RollbackConfirmation) Reset() {
	c.stage = models.RollbackStageIdle
	c.touched = time.Time{}
}

// TouchedAt is the time of the last transition.
func (c *RollbackConfirmation) TouchedAt() time.Time {
	return c.touched
}

type confirmationStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type rollbackExecutor interface {
	Rollback(ctx context.Context, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackResult, error)
}

// RollbackGuard runs the confirmation ritual server side. Progress is kept per
// actor and template with a TTL equal to the window, so expiry is the reset.
// The third consecutive confirmation of the same request executes the rollback.
type RollbackGuard struct {
	store    confirmationStore
	rollback rollbackExecutor
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewRollbackGuard constructs RollbackGuard. A nil clock uses time.Now.
func NewRollbackGuard(store confirmationStore, rollback rollbackExecutor, window time.Duration, now func() time.Time, logger *zap.Logger) *RollbackGuard {
	if window <= 0 {
		window = DefaultRollbackConfirmWindow
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollbackGuard{store: store, rollback: rollback, window: window, now: now, logger: logger}
}

func confirmationKey(actorID, templateID string) string {
	return "rollback_confirm:" + actorID + ":" + templateID
}

// Confirm records one click. A request that differs from the one in progress
// starts over at confirm1.
func (g *RollbackGuard) Confirm(ctx context.Context, actorID, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackConfirmResult, error) {
	ids := dedupeIDs(assignmentIDs)
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rollback requires assignment ids")
	}
	if targetVersion < 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidTarget, "target version does not exist")
	}

	key := confirmationKey(actorID, templateID)
	machine := NewRollbackConfirmation(g.window, g.now)
	var state models.RollbackConfirmationState
	if err := g.store.Get(ctx, key, &state); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rollback confirmation")
		}
	} else if state.TargetVersion == targetVersion && strings.Join(state.AssignmentIDs, ",") == strings.Join(ids, ",") {
		machine.Restore(state.Stage, state.TouchedAt)
	}

	stage := machine.Confirm()
	if stage != models.RollbackStageRolling {
		state = models.RollbackConfirmationState{
			Stage:         stage,
			TemplateID:    templateID,
			TargetVersion: targetVersion,
			AssignmentIDs: ids,
			TouchedAt:     machine.TouchedAt(),
		}
		if err := g.store.Set(ctx, key, state, g.window); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save rollback confirmation")
		}
		return &models.RollbackConfirmResult{Stage: stage}, nil
	}

	if err := g.store.Delete(ctx, key); err != nil {
		g.logger.Warn("failed to clear rollback confirmation", zap.String("key", key), zap.Error(err))
	}
	g.logger.Info("rollback confirmed",
		zap.String("actor_id", actorID),
		zap.String("template_id", templateID),
		zap.Int("target_version", targetVersion),
		zap.Int("assignments", len(ids)),
	)
	result, err := g.rollback.Rollback(ctx, templateID, targetVersion, ids)
	if err != nil {
		return nil, err
	}
	return &models.RollbackConfirmResult{Stage: stage, Rollback: result}, nil
}
