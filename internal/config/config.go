package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PREPFIRE_"

type Config struct {
	Service  string `yaml:"service"`
	LogLevel string `yaml:"log_level"`
	// Timezone is the IANA zone calendar days are cut in for alerts and
	// conflict reports.
	Timezone string `yaml:"timezone"`

	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	// Driver is one of sqlite, mysql or postgres.
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type CacheConfig struct {
	// Driver is one of memory, redis or badger.
	Driver        string `yaml:"driver"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPoolSize int    `yaml:"redis_pool_size"`
	BadgerDir     string `yaml:"badger_dir"`
}

type NotifierConfig struct {
	// Driver is one of log, amqp or telegram.
	Driver         string           `yaml:"driver"`
	AMQPURL        string           `yaml:"amqp_url"`
	AMQPExchange   string           `yaml:"amqp_exchange"`
	TelegramToken  string           `yaml:"telegram_token"`
	TelegramChatID int64            `yaml:"telegram_chat_id"`
	TenantChats    map[string]int64 `yaml:"telegram_tenant_chats"`
}

type SchedulerConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	SweepConcurrency   int           `yaml:"sweep_concurrency"`
	LockTTL            time.Duration `yaml:"lock_ttl"`
	StalledAfter       time.Duration `yaml:"stalled_after"`
	AlertHour          int           `yaml:"alert_hour"`
	AlertCheckInterval time.Duration `yaml:"alert_check_interval"`
}

func Default() Config {
	return Config{
		Service:  "prepfire",
		LogLevel: "info",
		Timezone: "UTC",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		GRPC: GRPCConfig{Addr: ":50051"},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "prepfire.db",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		Cache: CacheConfig{
			Driver:        "memory",
			RedisAddr:     "localhost:6379",
			RedisPoolSize: 100,
		},
		Notifier: NotifierConfig{
			Driver:       "log",
			AMQPExchange: "notifications",
		},
		Scheduler: SchedulerConfig{
			SweepInterval:      time.Minute,
			SweepConcurrency:   8,
			LockTTL:            2 * time.Minute,
			StalledAfter:       10 * time.Minute,
			AlertHour:          6,
			AlertCheckInterval: time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if any),
// a .env file and PREPFIRE_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVICE":        &c.Service,
		"LOG_LEVEL":      &c.LogLevel,
		"TIMEZONE":       &c.Timezone,
		"HTTP_ADDR":      &c.HTTP.Addr,
		"GRPC_ADDR":      &c.GRPC.Addr,
		"DB_DRIVER":      &c.Database.Driver,
		"DB_DSN":         &c.Database.DSN,
		"CACHE_DRIVER":   &c.Cache.Driver,
		"REDIS_ADDR":     &c.Cache.RedisAddr,
		"REDIS_PASSWORD": &c.Cache.RedisPassword,
		"BADGER_DIR":     &c.Cache.BadgerDir,
		"NOTIFIER":       &c.Notifier.Driver,
		"AMQP_URL":       &c.Notifier.AMQPURL,
		"AMQP_EXCHANGE":  &c.Notifier.AMQPExchange,
		"TELEGRAM_TOKEN": &c.Notifier.TelegramToken,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":          &c.Cache.RedisDB,
		"SWEEP_CONCURRENCY": &c.Scheduler.SweepConcurrency,
		"ALERT_HOUR":        &c.Scheduler.AlertHour,
	}
	for name, dst := range ints {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"SWEEP_INTERVAL": &c.Scheduler.SweepInterval,
		"LOCK_TTL":       &c.Scheduler.LockTTL,
		"STALLED_AFTER":  &c.Scheduler.StalledAfter,
	}
	for name, dst := range durations {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(envPrefix + "TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sTELEGRAM_CHAT_ID: %w", envPrefix, err)
		}
		c.Notifier.TelegramChatID = id
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite, mysql or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Cache.Driver {
	case "memory", "badger":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q: want memory, redis or badger", c.Cache.Driver))
	}

	switch c.Notifier.Driver {
	case "log":
	case "amqp":
		if c.Notifier.AMQPURL == "" {
			errs = append(errs, errors.New("notifier.amqp_url is required for the amqp notifier"))
		}
	case "telegram":
		if c.Notifier.TelegramToken == "" {
			errs = append(errs, errors.New("notifier.telegram_token is required for the telegram notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.driver %q: want log, amqp or telegram", c.Notifier.Driver))
	}

	if c.Scheduler.SweepInterval <= 0 {
		errs = append(errs, errors.New("scheduler.sweep_interval must be positive"))
	}
	if c.Scheduler.LockTTL <= 0 {
		errs = append(errs, errors.New("scheduler.lock_ttl must be positive"))
	}
	if c.Scheduler.AlertHour < 0 || c.Scheduler.AlertHour > 23 {
		errs = append(errs, fmt.Errorf("scheduler.alert_hour %d out of range", c.Scheduler.AlertHour))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	return errors.Join(errs...)
}

// Location resolves Timezone. Validate has already rejected unknown zones.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogValue keeps secrets out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("service", c.Service),
		slog.String("timezone", c.Timezone),
		slog.String("http_addr", c.HTTP.Addr),
		slog.String("grpc_addr", c.GRPC.Addr),
		slog.String("db_driver", c.Database.Driver),
		slog.String("db_dsn", RedactDSN(c.Database.Driver, c.Database.DSN)),
		slog.String("cache_driver", c.Cache.Driver),
		slog.String("notifier", c.Notifier.Driver),
		slog.String("amqp_url", RedactDSN("amqp", c.Notifier.AMQPURL)),
		slog.Bool("telegram_token_set", c.Notifier.TelegramToken != ""),
		slog.Duration("sweep_interval", c.Scheduler.SweepInterval),
	)
}

const redacted = "xxxxx"

// RedactDSN masks the password in a URL or MySQL style DSN.
func RedactDSN(driver, dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return redacted
		}
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
		return u.String()
	}
	switch driver {
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return redacted
		}
		if cfg.Passwd != "" {
			cfg.Passwd = redacted
		}
		return cfg.FormatDSN()
	case "postgres":
		fields := strings.Fields(dsn)
		for i, f := range fields {
			if strings.HasPrefix(f, "password=") {
				fields[i] = "password=" + redacted
			}
		}
		return strings.Join(fields, " ")
	}
	return dsn
}
