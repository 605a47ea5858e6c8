package port

import (
	"context"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
)

type Notifier interface {
	// SendDailyAlert hands the alert to the delivery pipeline; it does not wait for the email
	SendDailyAlert(ctx context.Context, alert domain.DailyAlert) error
}

type Metrics interface {
	ObserveDispatch(tenantID string, kind domain.AttemptKind, success bool)
	ObserveSweep(tenantID string, elapsed time.Duration)
	ObserveDailyAlert(outcome string)
}
