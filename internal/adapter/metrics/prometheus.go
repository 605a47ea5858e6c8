package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/prepfire/internal/core/domain"
)

// Collector implements port.Metrics on its own registry.
type Collector struct {
	registry    *prometheus.Registry
	dispatches  *prometheus.CounterVec
	sweeps      *prometheus.HistogramVec
	dailyAlerts *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prepfire",
				Name:      "pos_dispatch_total",
				Help:      "POS dispatch attempts by tenant, attempt kind and outcome",
			},
			[]string{"tenant_id", "kind", "success"},
		),
		sweeps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "prepfire",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of one tenant sweep",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"tenant_id"},
		),
		dailyAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prepfire",
				Name:      "daily_alerts_total",
				Help:      "Daily prep alert runs per tenant by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		c.dispatches,
		c.sweeps,
		c.dailyAlerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveDispatch(tenantID string, kind domain.AttemptKind, success bool) {
	c.dispatches.WithLabelValues(tenantID, string(kind), strconv.FormatBool(success)).Inc()
}

func (c *Collector) ObserveSweep(tenantID string, elapsed time.Duration) {
	c.sweeps.WithLabelValues(tenantID).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveDailyAlert(outcome string) {
	c.dailyAlerts.WithLabelValues(outcome).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
