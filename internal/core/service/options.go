package service

import (
	"log/slog"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

const defaultStalledAfter = 10 * time.Minute

type options struct {
	now          func() time.Time
	log          *slog.Logger
	metrics      port.Metrics
	loc          *time.Location
	stalledAfter time.Duration
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m port.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLocation sets the zone calendar days are cut in (alerts, conflicts).
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithStalledAfter sets how long a schedule may sit in FIRED before the sweep
// treats the dispatch as interrupted.
func WithStalledAfter(d time.Duration) Option {
	return func(o *options) { o.stalledAfter = d }
}

func buildOptions(component string, opts []Option) options {
	o := options{
		now:          time.Now,
		log:          slog.Default(),
		metrics:      nopMetrics{},
		loc:          time.UTC,
		stalledAfter: defaultStalledAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With("component", component)
	return o
}

// dayBounds returns [start, end) of the calendar day containing t in loc.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDispatch(string, domain.AttemptKind, bool) {}
func (nopMetrics) ObserveSweep(string, time.Duration)               {}
func (nopMetrics) ObserveDailyAlert(string)                          {}
