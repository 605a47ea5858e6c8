package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFireTimeFor(t *testing.T) {
	desired := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	fire := FireTimeFor(desired)

	assert.Equal(t, time.Date(2026, 3, 14, 17, 30, 0, 0, time.UTC), fire)
	assert.True(t, fire.Before(desired))
}

func TestDisplayStatus(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule FireSchedule
		want     string
	}{
		{"hold in future", FireSchedule{Status: ScheduleStatusHold, FireTime: now.Add(time.Minute)}, "HOLD"},
		{"hold due", FireSchedule{Status: ScheduleStatusHold, FireTime: now}, StatusReadyToFire},
		{"hold overdue", FireSchedule{Status: ScheduleStatusHold, FireTime: now.Add(-time.Hour)}, StatusReadyToFire},
		{"printed", FireSchedule{Status: ScheduleStatusPrinted, FireTime: now.Add(-time.Hour)}, "PRINTED"},
		{"failed", FireSchedule{Status: ScheduleStatusFailed, FireTime: now.Add(-time.Hour)}, "FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.schedule.DisplayStatus(now))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ScheduleStatusHold, ScheduleStatusFired))
	assert.True(t, CanTransition(ScheduleStatusFired, ScheduleStatusPrinted))
	assert.True(t, CanTransition(ScheduleStatusFired, ScheduleStatusFailed))
	assert.True(t, CanTransition(ScheduleStatusFailed, ScheduleStatusPrinted))

	assert.False(t, CanTransition(ScheduleStatusFailed, ScheduleStatusHold))
	assert.False(t, CanTransition(ScheduleStatusFired, ScheduleStatusHold))
	assert.False(t, CanTransition(ScheduleStatusHold, ScheduleStatusPrinted))
	for _, to := range []ScheduleStatus{ScheduleStatusHold, ScheduleStatusFired, ScheduleStatusFailed, ScheduleStatusPrinted} {
		assert.False(t, CanTransition(ScheduleStatusPrinted, to), "PRINTED -> %s", to)
	}
}

func TestExhausted(t *testing.T) {
	assert.False(t, FireSchedule{Status: ScheduleStatusFailed, RetryCount: 2}.Exhausted())
	assert.True(t, FireSchedule{Status: ScheduleStatusFailed, RetryCount: MaxRetryAttempts}.Exhausted())
	assert.True(t, FireSchedule{Status: ScheduleStatusFailed, FailureKind: FailureUnavailable}.Exhausted())
	assert.False(t, FireSchedule{Status: ScheduleStatusPrinted, RetryCount: MaxRetryAttempts}.Exhausted())
}

func TestRetryReference(t *testing.T) {
	updated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s := FireSchedule{UpdatedAt: updated}
	assert.Equal(t, updated, s.RetryReference())

	retried := updated.Add(5 * time.Minute)
	s.LastRetryAt = &retried
	assert.Equal(t, retried, s.RetryReference())
}

func TestConflictLevelFor(t *testing.T) {
	assert.Equal(t, ConflictInfo, ConflictLevelFor(0))
	assert.Equal(t, ConflictInfo, ConflictLevelFor(4))
	assert.Equal(t, ConflictWarning, ConflictLevelFor(5))
	assert.Equal(t, ConflictWarning, ConflictLevelFor(9))
	assert.Equal(t, ConflictCritical, ConflictLevelFor(10))
	assert.Equal(t, ConflictCritical, ConflictLevelFor(12))
}

func TestItemCount(t *testing.T) {
	o := Order{Items: []OrderItem{{Quantity: 2}, {Quantity: 3}}}
	assert.Equal(t, 5, o.ItemCount())
}
