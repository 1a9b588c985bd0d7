package models

import "time"

// CachedMediaResponse is the payload stored under a deployment scoped cache key
// and returned to clients as is.
type CachedMediaResponse struct {
	Media             []MediaItem `json:"media"`
	CachedAt          time.Time   `json:"cachedAt"`
	DeploymentVersion string      `json:"deploymentVersion"`
}

// NewCachedMediaResponse builds a payload from already filtered items.
func NewCachedMediaResponse(items []MediaItem, cachedAt time.Time, version string) CachedMediaResponse {
	if items == nil {
		items = []MediaItem{}
	}
	return CachedMediaResponse{
		Media:             items,
		CachedAt:          cachedAt.UTC(),
		DeploymentVersion: version,
	}
}
