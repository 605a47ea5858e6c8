package cli

import (
	"log/slog"

	"github.com/rl1809/prepfire/internal/adapter/handler"
	"github.com/rl1809/prepfire/internal/config"
	"github.com/rl1809/prepfire/internal/core/service"
	"github.com/rl1809/prepfire/internal/port"
)

// Store is everything the services persist through.
type Store interface {
	port.ScheduleRepository
	port.OrderRepository
	port.AlertRepository
	port.PrintJobLogRepository
	port.TenantRepository
}

func serviceOptions(cfg config.Config, log *slog.Logger, m port.Metrics) []service.Option {
	return []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithLocation(cfg.Location()),
		service.WithStalledAfter(cfg.Scheduler.StalledAfter),
	}
}

func buildServices(
	store Store,
	cache port.CacheRepository,
	notifier port.Notifier,
	posClient port.POSClient,
	cfg config.Config,
	opts ...service.Option,
) handler.Services {
	dispatcher := service.NewDispatcher(store, store, posClient, opts...)
	retry := service.NewRetryEngine(store, dispatcher, opts...)
	scheduler := service.NewScheduler(store, store, dispatcher, retry, opts...)

	return handler.Services{
		Router:     service.NewRouter(scheduler, dispatcher, cache, opts...),
		Scheduler:  scheduler,
		Retry:      retry,
		Conflicts:  service.NewConflictDetector(store, opts...),
		Alerts:     service.NewDailyAlertNotifier(store, store, store, notifier, opts...),
		Sweeper:    service.NewSweeper(scheduler, store, cache, cfg.Scheduler.SweepConcurrency, cfg.Scheduler.LockTTL, opts...),
		Dispatcher: dispatcher,
		Orders:     store,
	}
}
