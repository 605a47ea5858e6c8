package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
)

var (
	// ErrOptimisticLock is returned when a versioned write lost against a concurrent writer
	// or the row no longer exists.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrDuplicate      = errors.New("duplicate key")
)

type ScheduleRepository interface {
	// CreateSchedule persists a new schedule, ErrDuplicate if the order already has one
	CreateSchedule(ctx context.Context, schedule domain.FireSchedule) error

	// GetSchedule returns nil when the order has no schedule
	GetSchedule(ctx context.Context, orderID string) (*domain.FireSchedule, error)

	// UpdateSchedule writes schedule if its Version is still current and bumps the version
	UpdateSchedule(ctx context.Context, schedule domain.FireSchedule) (domain.FireSchedule, error)

	DeleteSchedule(ctx context.Context, orderID string) error

	// ListSchedules returns the tenant's schedules in status, oldest fire time first
	ListSchedules(ctx context.Context, tenantID string, status domain.ScheduleStatus) ([]domain.FireSchedule, error)

	// ListDueSchedules returns HOLD schedules with fire_time <= now
	ListDueSchedules(ctx context.Context, tenantID string, now time.Time) ([]domain.FireSchedule, error)

	// ListSchedulesByFireTime returns schedules with from <= fire_time < to
	ListSchedulesByFireTime(ctx context.Context, tenantID string, from, to time.Time) ([]domain.FireSchedule, error)
}

type OrderRepository interface {
	SaveOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns nil when the order does not exist for the tenant
	GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error)

	MarkPrinted(ctx context.Context, tenantID, orderID string) error

	MarkCancelled(ctx context.Context, tenantID, orderID string) error

	// ListAdvanceOrders returns non-cancelled advance orders with from <= scheduled_time < to
	ListAdvanceOrders(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Order, error)
}

type AlertRepository interface {
	// ClaimDailyAlert inserts the record, false if (tenant, date) was already claimed
	ClaimDailyAlert(ctx context.Context, record domain.DailyAlertRecord) (bool, error)

	ReleaseDailyAlert(ctx context.Context, tenantID, date string) error

	GetDailyAlert(ctx context.Context, tenantID, date string) (*domain.DailyAlertRecord, error)
}

type PrintJobLogRepository interface {
	AppendPrintJobLog(ctx context.Context, entry domain.PrintJobLog) error

	ListPrintJobLogs(ctx context.Context, tenantID, orderID string) ([]domain.PrintJobLog, error)
}

type TenantRepository interface {
	ListActiveTenants(ctx context.Context) ([]domain.Tenant, error)
}
