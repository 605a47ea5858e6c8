package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/prepfire/internal/adapter/handler"
	"github.com/rl1809/prepfire/internal/adapter/metrics"
	"github.com/rl1809/prepfire/internal/adapter/notify"
	"github.com/rl1809/prepfire/internal/adapter/pos"
	"github.com/rl1809/prepfire/internal/adapter/storage"
	"github.com/rl1809/prepfire/internal/config"
	"github.com/rl1809/prepfire/internal/port"
)

// App is the wired process: one store, one cache, one notifier and the
// services built on them.
type App struct {
	Config   config.Config
	Log      *slog.Logger
	Store    *storage.SQLAdapter
	Cache    port.CacheRepository
	Notifier port.Notifier
	Metrics  *metrics.Collector
	Services handler.Services

	closers []io.Closer
}

func NewApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log, Metrics: metrics.NewCollector()}
	if err := app.open(ctx); err != nil {
		app.Close()
		return nil, err
	}
	log.Info("app ready", "config", cfg)
	return app, nil
}

func (a *App) open(ctx context.Context) error {
	var err error
	if a.Store, err = openStore(ctx, a.Config.Database); err != nil {
		return err
	}
	a.closers = append(a.closers, a.Store)

	if a.Cache, err = a.openCache(ctx); err != nil {
		return err
	}
	if a.Notifier, err = a.openNotifier(); err != nil {
		return err
	}

	a.Services = buildServices(a.Store, a.Cache, a.Notifier, pos.NewClient(a.Store),
		a.Config, serviceOptions(a.Config, a.Log, a.Metrics)...)
	return nil
}

func openStore(ctx context.Context, db config.DatabaseConfig) (*storage.SQLAdapter, error) {
	switch db.Driver {
	case "mysql":
		return storage.OpenMySQL(ctx, db.DSN, db.MaxOpenConns, db.MaxIdleConns)
	case "postgres":
		return storage.OpenPostgres(ctx, db.DSN, db.MaxOpenConns, db.MaxIdleConns)
	case "sqlite":
		return storage.OpenSQLite(ctx, db.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

func (a *App) openCache(ctx context.Context) (port.CacheRepository, error) {
	c := a.Config.Cache
	switch c.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			PoolSize: c.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb)
		a.Log.Info("connected to redis", "addr", c.RedisAddr)
		return storage.NewRedisAdapter(rdb), nil
	case "badger":
		bc, err := storage.OpenBadgerCache(c.BadgerDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bc)
		return bc, nil
	case "memory":
		return storage.NewLocalCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", c.Driver)
	}
}

func (a *App) openNotifier() (port.Notifier, error) {
	n := a.Config.Notifier
	switch n.Driver {
	case "amqp":
		p, err := notify.DialAMQP(n.AMQPURL, n.AMQPExchange, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p)
		return p, nil
	case "telegram":
		return notify.NewTelegramNotifier(n.TelegramToken, n.TelegramChatID, n.TenantChats, a.Log)
	case "log":
		return notify.NewLogNotifier(a.Log), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", n.Driver)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
