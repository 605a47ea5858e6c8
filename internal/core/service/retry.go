package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

type RetryReport struct {
	Attempted int
	Printed   int
	Failed    int
	Waiting   int
	Exhausted int
}

// RetryEngine re-dispatches FAILED schedules. Automatic and manual retries
// share one counter, capped at domain.MaxRetryAttempts.
type RetryEngine struct {
	schedules  port.ScheduleRepository
	dispatcher *Dispatcher
	options
}

func NewRetryEngine(schedules port.ScheduleRepository, dispatcher *Dispatcher, opts ...Option) *RetryEngine {
	return &RetryEngine{
		schedules:  schedules,
		dispatcher: dispatcher,
		options:    buildOptions("retry", opts),
	}
}

// Eligible reports whether the automatic pass may retry schedule at now. The
// interval must have fully elapsed.
func Eligible(schedule domain.FireSchedule, now time.Time) bool {
	if schedule.Status != domain.ScheduleStatusFailed || schedule.Exhausted() {
		return false
	}
	return now.Sub(schedule.RetryReference()) > domain.RetryInterval
}

func (r *RetryEngine) ProcessFailed(ctx context.Context, tenantID string) (RetryReport, error) {
	var report RetryReport

	failed, err := r.schedules.ListSchedules(ctx, tenantID, domain.ScheduleStatusFailed)
	if err != nil {
		return report, fmt.Errorf("list failed schedules: %w", err)
	}

	for _, schedule := range failed {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		updated, err := r.Retry(ctx, schedule)
		switch {
		case errors.Is(err, ErrRetryExhausted):
			report.Exhausted++
			continue
		case errors.Is(err, ErrRetryTooSoon), errors.Is(err, ErrAlreadyClaimed):
			report.Waiting++
			continue
		case err != nil:
			r.log.Error("retry failed", "tenant_id", tenantID, "order_id", schedule.OrderID, "error", err)
			continue
		}

		report.Attempted++
		if updated.Status == domain.ScheduleStatusPrinted {
			report.Printed++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// Retry performs one automatic attempt on a FAILED schedule.
func (r *RetryEngine) Retry(ctx context.Context, schedule domain.FireSchedule) (domain.FireSchedule, error) {
	if schedule.Status == domain.ScheduleStatusPrinted {
		return schedule, fmt.Errorf("%w: %s", ErrAlreadyPrinted, schedule.OrderID)
	}
	if schedule.Status != domain.ScheduleStatusFailed {
		return schedule, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, schedule.Status)
	}
	if schedule.Exhausted() {
		return schedule, fmt.Errorf("%w: %s", ErrRetryExhausted, schedule.OrderID)
	}
	if !Eligible(schedule, r.now()) {
		return schedule, fmt.Errorf("%w: %s", ErrRetryTooSoon, schedule.OrderID)
	}
	return r.attempt(ctx, schedule, domain.AttemptRetry)
}

// ManualRetry is the operator path: one attempt regardless of the cap and the
// interval.
func (r *RetryEngine) ManualRetry(ctx context.Context, tenantID, orderID string) (domain.FireSchedule, error) {
	schedule, err := r.schedules.GetSchedule(ctx, orderID)
	if err != nil {
		return domain.FireSchedule{}, fmt.Errorf("get schedule: %w", err)
	}
	if schedule == nil || schedule.TenantID != tenantID {
		return domain.FireSchedule{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, orderID)
	}
	if schedule.Status == domain.ScheduleStatusPrinted {
		return *schedule, fmt.Errorf("%w: %s", ErrAlreadyPrinted, orderID)
	}
	if schedule.Status != domain.ScheduleStatusFailed {
		return *schedule, fmt.Errorf("%w: manual retry from %s", ErrInvalidTransition, schedule.Status)
	}

	r.log.Info("manual retry requested", "tenant_id", tenantID, "order_id", orderID, "retry_count", schedule.RetryCount)
	return r.attempt(ctx, *schedule, domain.AttemptManualRetry)
}

func (r *RetryEngine) attempt(ctx context.Context, schedule domain.FireSchedule, kind domain.AttemptKind) (domain.FireSchedule, error) {
	now := r.now()
	schedule.LastRetryAt = &now
	schedule.UpdatedAt = now

	claimed, err := r.schedules.UpdateSchedule(ctx, schedule)
	if err != nil {
		if errors.Is(err, port.ErrOptimisticLock) {
			return schedule, fmt.Errorf("%w: %s", ErrAlreadyClaimed, schedule.OrderID)
		}
		return schedule, fmt.Errorf("claim retry %s: %w", schedule.OrderID, err)
	}

	result, dispatchErr := r.dispatcher.SendByID(ctx, claimed.TenantID, claimed.OrderID, kind)

	outcome := claimed
	outcome.UpdatedAt = r.now()
	if dispatchErr == nil {
		outcome.Status = domain.ScheduleStatusPrinted
		outcome.PrintJobID = result.PrintJobID
		outcome.LastError = ""
		outcome.FailureKind = domain.FailureNone
	} else {
		if outcome.RetryCount < domain.MaxRetryAttempts {
			outcome.RetryCount++
		}
		outcome.LastError = dispatchErr.Error()
		outcome.FailureKind = failureKindOf(dispatchErr)
	}

	written, err := r.schedules.UpdateSchedule(ctx, outcome)
	if err != nil {
		return outcome, fmt.Errorf("record retry outcome for %s: %w", outcome.OrderID, err)
	}

	switch {
	case dispatchErr == nil:
		r.log.Info("retry printed order", "tenant_id", written.TenantID, "order_id", written.OrderID, "kind", kind)
	case written.Exhausted():
		r.log.Error("order needs manual intervention",
			"tenant_id", written.TenantID,
			"order_id", written.OrderID,
			"retry_count", written.RetryCount,
			"error", fmt.Errorf("%w: %w", ErrRetryExhausted, dispatchErr),
		)
	default:
		r.log.Warn("retry failed", "tenant_id", written.TenantID, "order_id", written.OrderID, "retry_count", written.RetryCount, "error", dispatchErr)
	}
	return written, nil
}
