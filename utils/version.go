package utils

import (
	"strings"
	"time"
)

// CacheKeyPrefix is shared by every deployment scoped cache entry.
const CacheKeyPrefix = "public-media-"

// DeploymentVersion returns the configured version, or the UTC calendar date of now
// when none is configured.
func DeploymentVersion(configured string, now time.Time) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	return now.UTC().Format("2006-01-02")
}

// CacheKey is the cache key for a deployment version.
func CacheKey(version string) string {
	return CacheKeyPrefix + version
}
