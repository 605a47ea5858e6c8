package domain

import "time"

type AttemptKind string

const (
	AttemptImmediate   AttemptKind = "immediate"
	AttemptFire        AttemptKind = "fire"
	AttemptRetry       AttemptKind = "retry"
	AttemptManualRetry AttemptKind = "manual_retry"
)

type PrintResult struct {
	Success    bool
	Message    string
	PrintJobID string
}

type PrintStatus string

const (
	PrintStatusPending   PrintStatus = "pending"
	PrintStatusPrinting  PrintStatus = "printing"
	PrintStatusCompleted PrintStatus = "completed"
	PrintStatusFailed    PrintStatus = "failed"
)

type PrintStatusResult struct {
	Status  PrintStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// PrintJobLog is one row of the append-only dispatch audit trail.
type PrintJobLog struct {
	ID         string
	TenantID   string
	OrderID    string
	PrintJobID string
	Kind       AttemptKind
	Success    bool
	Message    string
	CreatedAt  time.Time
}
