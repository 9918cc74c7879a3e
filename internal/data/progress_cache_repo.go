package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
)

const progressKeyPrefix = "progress:"

// DefaultProgressTTL bounds how long progress of an abandoned job stays visible.
const DefaultProgressTTL = time.Hour

// ProgressCacheRepo stores live job progress in a cache, Redis in production.
type ProgressCacheRepo struct {
	cache core.CacheRepository
	ttl   time.Duration
}

// NewProgressCacheRepo creates a progress store. A non-positive ttl selects DefaultProgressTTL.
func NewProgressCacheRepo(cache core.CacheRepository, ttl time.Duration) *ProgressCacheRepo {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressCacheRepo{cache: cache, ttl: ttl}
}

func progressKey(jobID string) string {
	return progressKeyPrefix + jobID
}

// Set records the current progress of jobID.
func (r *ProgressCacheRepo) Set(ctx context.Context, jobID string, p model.Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return r.cache.Set(ctx, progressKey(jobID), b, r.ttl)
}

// Get returns the recorded progress of jobID, or nil when none is recorded.
func (r *ProgressCacheRepo) Get(ctx context.Context, jobID string) (*model.Progress, error) {
	b, err := r.cache.Get(ctx, progressKey(jobID))
	if err != nil || b == nil {
		return nil, err
	}
	var p model.Progress
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}

// Delete forgets the progress of jobID.
func (r *ProgressCacheRepo) Delete(ctx context.Context, jobID string) error {
	_, err := r.cache.Delete(ctx, progressKey(jobID))
	return err
}
