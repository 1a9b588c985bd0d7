package utils

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tiko/mediacache/metrics"
)

// CleanupResult is the outcome of a stale key sweep.
type CleanupResult struct {
	Kept    string `json:"kept"`
	Scanned int    `json:"scanned"`
	Deleted int64  `json:"deleted"`
	Err     error  `json:"-"`
}

// CleanupStaleKeys deletes every key under prefix except keepKey.
// An empty keepKey removes all of them.
func CleanupStaleKeys(ctx context.Context, kv KVStore, prefix, keepKey string) CleanupResult {
	res := CleanupResult{Kept: keepKey}
	keys, err := kv.Keys(ctx, prefix)
	if err != nil {
		res.Err = fmt.Errorf("list keys with prefix %s: %w", prefix, err)
		return res
	}
	res.Scanned = len(keys)

	stale := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != keepKey {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return res
	}

	res.Deleted, err = kv.Delete(ctx, stale...)
	if err != nil {
		res.Err = fmt.Errorf("delete %d stale keys: %w", len(stale), err)
	}
	return res
}

// Log records the result and updates the cleanup metrics.
func (r CleanupResult) Log(logger *zap.Logger) {
	metrics.CleanupDeleted.Add(float64(r.Deleted))
	fields := []zap.Field{
		zap.String("kept", r.Kept),
		zap.Int("scanned", r.Scanned),
		zap.Int64("deleted", r.Deleted),
	}
	if r.Err != nil {
		metrics.CacheErrors.WithLabelValues("cleanup").Inc()
		logger.Warn("stale cache cleanup failed", append(fields, zap.Error(r.Err))...)
		return
	}
	if r.Deleted > 0 {
		logger.Info("stale cache entries removed", fields...)
		return
	}
	logger.Debug("no stale cache entries", fields...)
}

// StartStaleKeyCleaner periodically removes cache entries of superseded deployment versions
// until ctx is done. currentKey is evaluated on every sweep.
func StartStaleKeyCleaner(ctx context.Context, kv KVStore, interval time.Duration, currentKey func() string, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				CleanupStaleKeys(sweepCtx, kv, CacheKeyPrefix, currentKey()).Log(logger)
				cancel()
			}
		}
	}()
}
