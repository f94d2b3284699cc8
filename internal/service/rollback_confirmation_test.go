package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func TestRollbackConfirmationThreeSteps(t *testing.T) {
	clock := newFakeClock()
	machine := NewRollbackConfirmation(5*time.Second, clock.Now)

	assert.Equal(t, models.RollbackStageIdle, machine.Stage())
	assert.Equal(t, models.RollbackStageConfirm1, machine.Confirm())
	clock.Advance(time.Second)
	assert.Equal(t, models.RollbackStageConfirm2, machine.Confirm())
	clock.Advance(time.Second)
	assert.Equal(t, models.RollbackStageRolling, machine.Confirm())

	clock.Advance(time.Minute)
	assert.Equal(t, models.RollbackStageRolling, machine.Stage(), "rolling is terminal")
	machine.Reset()
	assert.Equal(t, models.RollbackStageIdle, machine.Stage())
}

func TestRollbackConfirmationTimesOut(t *testing.T) {
	clock := newFakeClock()
	machine := NewRollbackConfirmation(5*time.Second, clock.Now)

	machine.Confirm()
	machine.Confirm()
	clock.Advance(6 * time.Second)
	assert.Equal(t, models.RollbackStageIdle, machine.Stage())
	assert.Equal(t, models.RollbackStageConfirm1, machine.Confirm())
}

func TestRollbackConfirmationWindowIsMeasuredFromLastClick(t *testing.T) {
	clock := newFakeClock()
	machine := NewRollbackConfirmation(5*time.Second, clock.Now)

	machine.Confirm()
	clock.Advance(4 * time.Second)
	machine.Confirm()
	clock.Advance(4 * time.Second)
	assert.Equal(t, models.RollbackStageRolling, machine.Confirm())
}

type recordingRollback struct {
	calls []int
	ids   [][]string
}

func (r *recordingRollback) Rollback(_ context.Context, templateID string, targetVersion int, assignmentIDs []string) (*models.RollbackResult, error) {
	r.calls = append(r.calls, targetVersion)
	r.ids = append(r.ids, assignmentIDs)
	return &models.RollbackResult{TemplateID: templateID, TargetVersion: targetVersion, Matched: len(assignmentIDs), Changed: len(assignmentIDs)}, nil
}

func newTestGuard(t *testing.T) (*RollbackGuard, *recordingRollback, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := newFakeClock()
	executor := &recordingRollback{}
	guard := NewRollbackGuard(repository.NewCacheRepository(client, "test:"), executor, 5*time.Second, clock.Now, nil)
	return guard, executor, clock, srv
}

func TestRollbackGuardExecutesOnThirdConfirm(t *testing.T) {
	guard, executor, clock, srv := newTestGuard(t)
	ctx := context.Background()

	result, err := guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a2", "a1"})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStageConfirm1, result.Stage)
	assert.True(t, srv.Exists("test:rollback_confirm:admin-1:tpl-1"))

	clock.Advance(time.Second)
	result, err = guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1", "a2", "a1"})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStageConfirm2, result.Stage)
	assert.Empty(t, executor.calls)

	clock.Advance(time.Second)
	result, err = guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStageRolling, result.Stage)
	require.NotNil(t, result.Rollback)
	assert.Equal(t, []int{1}, executor.calls)
	assert.Equal(t, []string{"a1", "a2"}, executor.ids[0])
	assert.False(t, srv.Exists("test:rollback_confirm:admin-1:tpl-1"))
}

func TestRollbackGuardRestartsOnChangedRequest(t *testing.T) {
	guard, executor, clock, _ := newTestGuard(t)
	ctx := context.Background()

	_, err := guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1"})
	require.NoError(t, err)

	clock.Advance(time.Second)
	result, err := guard.Confirm(ctx, "admin-1", "tpl-1", 2, []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStageConfirm1, result.Stage)
	assert.Empty(t, executor.calls)
}

func TestRollbackGuardResetsAfterInactivity(t *testing.T) {
	guard, executor, clock, _ := newTestGuard(t)
	ctx := context.Background()

	_, err := guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1"})
	require.NoError(t, err)
	_, err = guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1"})
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	result, err := guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStageConfirm1, result.Stage)
	assert.Empty(t, executor.calls)
}

func TestRollbackGuardSeparatesActors(t *testing.T) {
	guard, executor, _, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := guard.Confirm(ctx, "admin-1", "tpl-1", 1, []string{"a1"})
		require.NoError(t, err)
	}
	result, err := guard.Confirm(ctx, "admin-2", "tpl-1", 1, []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStageConfirm1, result.Stage)
	assert.Empty(t, executor.calls)
}

func TestRollbackGuardValidatesInput(t *testing.T) {
	guard, _, _, _ := newTestGuard(t)
	_, err := guard.Confirm(context.Background(), "admin-1", "tpl-1", 1, nil)
	assert.Error(t, err)
	_, err = guard.Confirm(context.Background(), "admin-1", "tpl-1", 0, []string{"a1"})
	assert.Error(t, err)
}
