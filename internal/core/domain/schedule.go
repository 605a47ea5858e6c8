package domain

import "time"

const (
	PreparationLead  = 90 * time.Minute
	MaxRetryAttempts = 3
	RetryInterval    = 2 * time.Minute
)

type ScheduleStatus string

const (
	ScheduleStatusHold    ScheduleStatus = "HOLD"
	ScheduleStatusFired   ScheduleStatus = "FIRED"
	ScheduleStatusPrinted ScheduleStatus = "PRINTED"
	ScheduleStatusFailed  ScheduleStatus = "FAILED"
)

// StatusReadyToFire is a display label only. It is never persisted.
const StatusReadyToFire = "READY_TO_FIRE"

type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureUnavailable FailureKind = "unavailable"
	FailureTransport   FailureKind = "transport"
	FailureInternal    FailureKind = "internal"
	FailureInterrupted FailureKind = "interrupted"
)

type FireSchedule struct {
	OrderID             string
	TenantID            string
	CustomerDesiredTime time.Time
	FireTime            time.Time
	Status              ScheduleStatus
	RetryCount          int
	LastRetryAt         *time.Time
	PrintJobID          string
	LastError           string
	FailureKind         FailureKind
	Version             int // optimistic locking
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FireTimeFor returns the moment an order wanting to be ready at desired must
// be released to the kitchen.
func FireTimeFor(desired time.Time) time.Time {
	return desired.Add(-PreparationLead)
}

func (s FireSchedule) ReadyToFire(now time.Time) bool {
	return s.Status == ScheduleStatusHold && !s.FireTime.After(now)
}

// DisplayStatus is the operator-facing label, which splits HOLD into HOLD and
// READY_TO_FIRE.
func (s FireSchedule) DisplayStatus(now time.Time) string {
	if s.ReadyToFire(now) {
		return StatusReadyToFire
	}
	return string(s.Status)
}

// Exhausted reports whether automatic retries will no longer pick the record up.
func (s FireSchedule) Exhausted() bool {
	if s.Status != ScheduleStatusFailed {
		return false
	}
	return s.RetryCount >= MaxRetryAttempts || s.FailureKind == FailureUnavailable
}

// RetryReference is the instant the retry interval is measured from.
func (s FireSchedule) RetryReference() time.Time {
	if s.LastRetryAt != nil {
		return *s.LastRetryAt
	}
	return s.UpdatedAt
}

var transitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleStatusHold:   {ScheduleStatusFired},
	ScheduleStatusFired:  {ScheduleStatusPrinted, ScheduleStatusFailed},
	ScheduleStatusFailed: {ScheduleStatusPrinted, ScheduleStatusFailed},
}

// CanTransition reports whether from -> to is an edge of the schedule state
// machine. PRINTED has no outgoing edges and nothing leads back to HOLD.
func CanTransition(from, to ScheduleStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
