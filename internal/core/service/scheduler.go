package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

type SweepReport struct {
	TenantID  string
	Due       int
	Printed   int
	Failed    int
	Skipped   int
	Recovered int
	Retry     RetryReport
}

type Scheduler struct {
	schedules  port.ScheduleRepository
	orders     port.OrderRepository
	dispatcher *Dispatcher
	retry      *RetryEngine
	options
}

func NewScheduler(
	schedules port.ScheduleRepository,
	orders port.OrderRepository,
	dispatcher *Dispatcher,
	retry *RetryEngine,
	opts ...Option,
) *Scheduler {
	return &Scheduler{
		schedules:  schedules,
		orders:     orders,
		dispatcher: dispatcher,
		retry:      retry,
		options:    buildOptions("scheduler", opts),
	}
}

func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Schedule stores a HOLD record for an advance order. The fire time is fixed
// here and never recomputed.
func (s *Scheduler) Schedule(ctx context.Context, order domain.Order) (*domain.FireSchedule, error) {
	if !order.IsAdvanceOrder || order.ScheduledTime == nil {
		return nil, fmt.Errorf("%w: order %s is not an advance order with a scheduled time", ErrInvalidOrder, order.ID)
	}
	if order.ID == "" || order.TenantID == "" {
		return nil, fmt.Errorf("%w: order id and tenant id are required", ErrInvalidOrder)
	}

	now := s.now()
	desired := order.ScheduledTime.UTC()
	schedule := domain.FireSchedule{
		OrderID:             order.ID,
		TenantID:            order.TenantID,
		CustomerDesiredTime: desired,
		FireTime:            domain.FireTimeFor(desired),
		Status:              domain.ScheduleStatusHold,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrScheduleExists, order.ID)
		}
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.log.Info("order scheduled",
		"tenant_id", order.TenantID,
		"order_id", order.ID,
		"fire_time", schedule.FireTime,
		"desired_time", desired,
	)
	return &schedule, nil
}

// ProcessReadyOrders is one sweep tick for a tenant: it recovers interrupted
// dispatches, fires every due HOLD schedule and then runs the retry pass. A
// failure on one order never stops the others.
func (s *Scheduler) ProcessReadyOrders(ctx context.Context, tenantID string) (SweepReport, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveSweep(tenantID, time.Since(started)) }()

	report := SweepReport{TenantID: tenantID}
	now := s.now()

	recovered, err := s.recoverStalled(ctx, tenantID, now)
	if err != nil {
		s.log.Error("stalled dispatch recovery failed", "tenant_id", tenantID, "error", err)
	}
	report.Recovered = recovered

	due, err := s.schedules.ListDueSchedules(ctx, tenantID, now)
	if err != nil {
		return report, fmt.Errorf("list due schedules: %w", err)
	}
	report.Due = len(due)

	for _, schedule := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		fired, err := s.FireOrder(ctx, tenantID, schedule)
		if err != nil {
			report.Skipped++
			if !errors.Is(err, ErrAlreadyClaimed) {
				s.log.Error("fire order failed", "tenant_id", tenantID, "order_id", schedule.OrderID, "error", err)
			}
			continue
		}

		switch fired.Status {
		case domain.ScheduleStatusPrinted:
			report.Printed++
		case domain.ScheduleStatusFailed:
			report.Failed++
		}
	}

	retryReport, err := s.retry.ProcessFailed(ctx, tenantID)
	report.Retry = retryReport
	if err != nil {
		return report, fmt.Errorf("retry failed schedules: %w", err)
	}

	if report.Due > 0 || report.Retry.Attempted > 0 || report.Recovered > 0 {
		s.log.Info("sweep completed",
			"tenant_id", tenantID,
			"due", report.Due,
			"printed", report.Printed,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"recovered", report.Recovered,
			"retried", report.Retry.Attempted,
		)
	}
	return report, nil
}

// FireOrder claims a HOLD schedule, dispatches it and records the outcome.
// A POS failure is not an error here: it is returned as a FAILED schedule.
// Errors are reserved for records that could not be claimed or written.
func (s *Scheduler) FireOrder(ctx context.Context, tenantID string, schedule domain.FireSchedule) (domain.FireSchedule, error) {
	if schedule.Status == domain.ScheduleStatusPrinted {
		return schedule, fmt.Errorf("%w: %s", ErrAlreadyPrinted, schedule.OrderID)
	}
	if !domain.CanTransition(schedule.Status, domain.ScheduleStatusFired) {
		return schedule, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, schedule.Status, domain.ScheduleStatusFired)
	}

	schedule.Status = domain.ScheduleStatusFired
	schedule.UpdatedAt = s.now()
	claimed, err := s.schedules.UpdateSchedule(ctx, schedule)
	if err != nil {
		if errors.Is(err, port.ErrOptimisticLock) {
			return schedule, fmt.Errorf("%w: %s", ErrAlreadyClaimed, schedule.OrderID)
		}
		return schedule, fmt.Errorf("claim schedule %s: %w", schedule.OrderID, err)
	}

	result, dispatchErr := s.dispatcher.SendByID(ctx, tenantID, claimed.OrderID, domain.AttemptFire)

	outcome := claimed
	outcome.UpdatedAt = s.now()
	if dispatchErr == nil {
		outcome.Status = domain.ScheduleStatusPrinted
		outcome.PrintJobID = result.PrintJobID
		outcome.LastError = ""
		outcome.FailureKind = domain.FailureNone
	} else {
		outcome.Status = domain.ScheduleStatusFailed
		outcome.LastError = dispatchErr.Error()
		outcome.FailureKind = failureKindOf(dispatchErr)
	}

	written, err := s.schedules.UpdateSchedule(ctx, outcome)
	if err != nil {
		if errors.Is(err, port.ErrOptimisticLock) {
			s.log.Warn("schedule changed during dispatch, outcome dropped",
				"tenant_id", tenantID, "order_id", outcome.OrderID, "outcome", outcome.Status)
		}
		return outcome, fmt.Errorf("record outcome for %s: %w", outcome.OrderID, err)
	}

	if dispatchErr != nil {
		s.log.Warn("order fire failed",
			"tenant_id", tenantID, "order_id", written.OrderID, "kind", written.FailureKind, "error", dispatchErr)
	} else {
		s.log.Info("order fired", "tenant_id", tenantID, "order_id", written.OrderID, "print_job_id", written.PrintJobID)
	}
	return written, nil
}

// Cancel removes the schedule and cancels the order. If a sweep is dispatching
// the order at the same moment its write-back loses the version check.
func (s *Scheduler) Cancel(ctx context.Context, tenantID, orderID string) (*domain.FireSchedule, error) {
	schedule, err := s.GetSchedule(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	if schedule.Status != domain.ScheduleStatusHold {
		s.log.Warn("cancelling an order that already left HOLD",
			"tenant_id", tenantID, "order_id", orderID, "status", schedule.Status)
	}

	if err := s.schedules.DeleteSchedule(ctx, orderID); err != nil {
		return nil, fmt.Errorf("delete schedule: %w", err)
	}
	if err := s.orders.MarkCancelled(ctx, tenantID, orderID); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	s.log.Info("scheduled order cancelled", "tenant_id", tenantID, "order_id", orderID)
	return schedule, nil
}

func (s *Scheduler) GetSchedule(ctx context.Context, tenantID, orderID string) (*domain.FireSchedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if schedule == nil || schedule.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, orderID)
	}
	return schedule, nil
}

// FailedSchedules is the manual intervention list.
func (s *Scheduler) FailedSchedules(ctx context.Context, tenantID string) ([]domain.FireSchedule, error) {
	failed, err := s.schedules.ListSchedules(ctx, tenantID, domain.ScheduleStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("list failed schedules: %w", err)
	}
	return failed, nil
}

func (s *Scheduler) recoverStalled(ctx context.Context, tenantID string, now time.Time) (int, error) {
	fired, err := s.schedules.ListSchedules(ctx, tenantID, domain.ScheduleStatusFired)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, schedule := range fired {
		if now.Sub(schedule.UpdatedAt) < s.stalledAfter {
			continue
		}
		schedule.Status = domain.ScheduleStatusFailed
		schedule.FailureKind = domain.FailureInterrupted
		schedule.LastError = "dispatch interrupted before an outcome was recorded"
		schedule.UpdatedAt = now
		if _, err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
			if !errors.Is(err, port.ErrOptimisticLock) {
				s.log.Error("failed to recover stalled schedule", "tenant_id", tenantID, "order_id", schedule.OrderID, "error", err)
			}
			continue
		}
		s.log.Warn("stalled dispatch moved to FAILED", "tenant_id", tenantID, "order_id", schedule.OrderID)
		recovered++
	}
	return recovered, nil
}
