package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

type Classification string

const (
	ClassImmediate Classification = "IMMEDIATE"
	ClassAdvance   Classification = "ADVANCE"
)

var scheduledTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Classify decides where a new order goes. Only an advance order scheduled more
// than the preparation lead away is held; exactly at the lead it prints now.
func Classify(order domain.Order, now time.Time) Classification {
	if !order.IsAdvanceOrder || order.ScheduledTime == nil {
		return ClassImmediate
	}
	if order.ScheduledTime.Sub(now) > domain.PreparationLead {
		return ClassAdvance
	}
	return ClassImmediate
}

// ParseScheduledTime accepts RFC 3339 or a zone-less local timestamp in loc.
// An empty string is no scheduled time.
func ParseScheduledTime(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range scheduledTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: unrecognised scheduled time %q", ErrClassification, raw)
}

type RouteResult struct {
	Classification Classification
	Schedule       *domain.FireSchedule
	Print          *domain.PrintResult
}

// Router is the entry point for newly placed orders.
type Router struct {
	scheduler  *Scheduler
	dispatcher *Dispatcher
	cache      port.CacheRepository
	options
}

func NewRouter(scheduler *Scheduler, dispatcher *Dispatcher, cache port.CacheRepository, opts ...Option) *Router {
	return &Router{
		scheduler:  scheduler,
		dispatcher: dispatcher,
		cache:      cache,
		options:    buildOptions("router", opts),
	}
}

// RouteRaw parses rawScheduledTime before routing. An unparseable time never
// drops the order: it is logged and the order prints immediately.
func (r *Router) RouteRaw(ctx context.Context, order domain.Order, rawScheduledTime string) (RouteResult, error) {
	scheduled, err := ParseScheduledTime(rawScheduledTime, r.loc)
	if err != nil {
		r.log.Warn("scheduled time rejected, routing as immediate",
			"tenant_id", order.TenantID, "order_id", order.ID, "error", err)
		scheduled = nil
	}
	order.ScheduledTime = scheduled
	return r.Route(ctx, order)
}

func (r *Router) Route(ctx context.Context, order domain.Order) (RouteResult, error) {
	idempotencyKey := fmt.Sprintf("route:%s:%s", order.TenantID, order.ID)

	ok, err := r.cache.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return RouteResult{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return RouteResult{}, ErrDuplicateRequest
	}

	class := Classify(order, r.now())
	result := RouteResult{Classification: class}

	if class == ClassAdvance {
		schedule, err := r.scheduler.Schedule(ctx, order)
		if err != nil {
			if !errors.Is(err, ErrScheduleExists) {
				// no schedule was written, so the order must stay routable
				if releaseErr := r.cache.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); releaseErr != nil {
					r.log.Error("failed to release routing key", "tenant_id", order.TenantID, "order_id", order.ID, "error", releaseErr)
				}
			}
			return result, err
		}
		result.Schedule = schedule
		return result, nil
	}

	printed, err := r.dispatcher.Send(ctx, order.TenantID, order, domain.AttemptImmediate)
	result.Print = &printed
	if err != nil {
		r.log.Error("immediate order not printed", "tenant_id", order.TenantID, "order_id", order.ID, "error", err)
		return result, err
	}
	r.log.Info("immediate order printed", "tenant_id", order.TenantID, "order_id", order.ID, "print_job_id", printed.PrintJobID)
	return result, nil
}
