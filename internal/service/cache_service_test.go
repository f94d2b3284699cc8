package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

type brokenCacheStore struct{}

func (brokenCacheStore) Get(context.Context, string, interface{}) error {
	return errors.New("connection reset")
}

func (brokenCacheStore) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection reset")
}

func TestCacheServiceSnapshotRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewCacheService(repository.NewCacheRepository(client, "test:"), NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	_, ok := svc.GetSnapshot(ctx, "tpl-1", 1)
	assert.False(t, ok)

	svc.PutSnapshot(ctx, &models.VersionSnapshot{TemplateID: "tpl-1", Version: 1, Pages: reportCardPages(), ChangeDescription: "initial"})
	assert.True(t, srv.Exists("test:snapshot:tpl-1:1"))

	cached, ok := svc.GetSnapshot(ctx, "tpl-1", 1)
	require.True(t, ok)
	assert.Equal(t, "initial", cached.ChangeDescription)
	require.Len(t, cached.Pages, 1)

	srv.FastForward(2 * time.Minute)
	_, ok = svc.GetSnapshot(ctx, "tpl-1", 1)
	assert.False(t, ok)
}

func TestCacheServiceDisabledOrFailing(t *testing.T) {
	ctx := context.Background()
	snapshot := &models.VersionSnapshot{TemplateID: "tpl-1", Version: 1}

	disabled := NewCacheService(brokenCacheStore{}, nil, 0, nil, false)
	assert.False(t, disabled.Enabled())
	disabled.PutSnapshot(ctx, snapshot)
	_, ok := disabled.GetSnapshot(ctx, "tpl-1", 1)
	assert.False(t, ok)

	failing := NewCacheService(brokenCacheStore{}, nil, 0, nil, true)
	assert.True(t, failing.Enabled())
	failing.PutSnapshot(ctx, snapshot)
	_, ok = failing.GetSnapshot(ctx, "tpl-1", 1)
	assert.False(t, ok, "store errors read as misses")

	var nilService *CacheService
	assert.False(t, nilService.Enabled())
}
