package notify

import (
	"context"
	"log/slog"

	"github.com/rl1809/prepfire/internal/core/domain"
)

// LogNotifier writes the alert to the log instead of a broker. It is the sink
// when no AMQP URL is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "log_notifier")}
}

func (n *LogNotifier) SendDailyAlert(ctx context.Context, alert domain.DailyAlert) error {
	n.log.InfoContext(ctx, "daily prep alert",
		"tenant_id", alert.TenantID,
		"recipient", alert.Recipient,
		"date", alert.Date,
		"orders", alert.OrderCount,
		"summary", alert.Summary,
	)
	return nil
}
