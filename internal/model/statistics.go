package model

import "time"

// StatisticsSnapshot is the platform-wide aggregate shown on the homepage.
// There is exactly one snapshot; it is created lazily and never deleted.
type StatisticsSnapshot struct {
	TotalUsers        int64            `json:"totalUsers"`
	TotalMatches      int64            `json:"totalMatches"`
	SuccessfulMatches int64            `json:"successfulMatches"`
	ActiveUsers       ActiveUserCounts `json:"activeUsers"`
	LastUpdated       time.Time        `json:"lastUpdated"`

	// ObservedAccepted is the highest accepted-match count seen by a
	// recompute. TotalMatches only grows by the amount this watermark rises.
	ObservedAccepted int64 `json:"-"`
}

// ActiveUserCounts holds distinct active users per trailing window.
type ActiveUserCounts struct {
	Last24Hours int64 `json:"last24Hours"`
	Last7Days   int64 `json:"last7Days"`
	Last30Days  int64 `json:"last30Days"`
}

