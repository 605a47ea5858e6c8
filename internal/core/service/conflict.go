package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

// ConflictDetector counts how many orders hit the kitchen in each fire-time
// window of a day.
type ConflictDetector struct {
	schedules port.ScheduleRepository
	options
}

func NewConflictDetector(schedules port.ScheduleRepository, opts ...Option) *ConflictDetector {
	return &ConflictDetector{
		schedules: schedules,
		options:   buildOptions("conflicts", opts),
	}
}

func (c *ConflictDetector) GetOrderConflicts(ctx context.Context, tenantID string, date time.Time) ([]domain.ConflictBucket, error) {
	from, to := dayBounds(date, c.loc)

	schedules, err := c.schedules.ListSchedulesByFireTime(ctx, tenantID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return BucketSchedules(schedules, c.loc), nil
}

// BucketSchedules groups schedules into ConflictBucketSize windows ordered by
// start time.
func BucketSchedules(schedules []domain.FireSchedule, loc *time.Location) []domain.ConflictBucket {
	byStart := make(map[int64]*domain.ConflictBucket)
	for _, s := range schedules {
		start := bucketStart(s.FireTime.In(loc))
		b, ok := byStart[start.Unix()]
		if !ok {
			b = &domain.ConflictBucket{Start: start, End: start.Add(domain.ConflictBucketSize)}
			byStart[start.Unix()] = b
		}
		b.Count++
		b.OrderIDs = append(b.OrderIDs, s.OrderID)
	}

	buckets := make([]domain.ConflictBucket, 0, len(byStart))
	for _, b := range byStart {
		b.Level = domain.ConflictLevelFor(b.Count)
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}

// bucketStart floors t to its ConflictBucketSize window on the local wall
// clock, so windows open at :00, :15, :30 and :45 in every zone.
func bucketStart(t time.Time) time.Time {
	size := int(domain.ConflictBucketSize / time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/size*size, 0, 0, t.Location())
}
