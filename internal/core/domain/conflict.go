package domain

import "time"

const (
	ConflictBucketSize        = 15 * time.Minute
	ConflictWarningThreshold  = 5
	ConflictCriticalThreshold = 10
)

type ConflictLevel string

const (
	ConflictInfo     ConflictLevel = "info"
	ConflictWarning  ConflictLevel = "warning"
	ConflictCritical ConflictLevel = "critical"
)

func ConflictLevelFor(count int) ConflictLevel {
	switch {
	case count >= ConflictCriticalThreshold:
		return ConflictCritical
	case count >= ConflictWarningThreshold:
		return ConflictWarning
	default:
		return ConflictInfo
	}
}

type ConflictBucket struct {
	Start    time.Time
	End      time.Time
	Count    int
	Level    ConflictLevel
	OrderIDs []string
}
