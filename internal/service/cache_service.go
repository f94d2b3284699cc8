package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

// CacheStore abstracts persistence for cached payloads.
type CacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheService caches immutable version snapshots and records cache metrics.
// Snapshots never change once written, so entries are never invalidated.
type CacheService struct {
	repo       CacheStore
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheStore, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func snapshotCacheKey(templateID string, version int) string {
	return fmt.Sprintf("snapshot:%s:%d", templateID, version)
}

// GetSnapshot returns a cached snapshot. Lookup failures count as misses.
func (s *CacheService) GetSnapshot(ctx context.Context, templateID string, version int) (*models.VersionSnapshot, bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := snapshotCacheKey(templateID, version)
	start := time.Now()
	var snapshot models.VersionSnapshot
	err := s.repo.Get(ctx, key, &snapshot)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("snapshot cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &snapshot, true
}

// PutSnapshot stores a snapshot. Errors are logged, not returned.
func (s *CacheService) PutSnapshot(ctx context.Context, snapshot *models.VersionSnapshot) {
	if !s.Enabled() || snapshot == nil {
		return
	}
	key := snapshotCacheKey(snapshot.TemplateID, snapshot.Version)
	start := time.Now()
	err := s.repo.Set(ctx, key, snapshot, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("snapshot cache set failed", zap.String("key", key), zap.Error(err))
	}
}
