// CLAUDE:SUMMARY Telemetry hooks for the polling loop and reset action, with a Prometheus implementation.
package telemetry

import (
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/dslwatch/dslwatch/stats"
)

// Collector receives events from the polling orchestrator and the control
// action. Calls are made inline with the loop, so implementations must not
// block.
type Collector interface {
	IncIntervalArmed(page string)
	IncIntervalCancelled(page string)
	ObserveCycle(page string, ok bool, d time.Duration)
	ObserveStats(snap stats.Snapshot)
	IncReset(ok bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all events.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncIntervalArmed(string)                  {}
func (noopCollector) IncIntervalCancelled(string)              {}
func (noopCollector) ObserveCycle(string, bool, time.Duration) {}
func (noopCollector) ObserveStats(stats.Snapshot)              {}
func (noopCollector) IncReset(bool)                            {}

// PrometheusCollector exposes the events as Prometheus metrics.
type PrometheusCollector struct {
	armed     *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	cycles    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.GaugeVec
	uptime    prometheus.Gauge
	resets    *prometheus.CounterVec
}

// NewPrometheusCollector registers the dslwatch metrics with reg. Metrics
// already registered by a previous call are reused, so building a second
// collector on the same registerer is safe.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		p   PrometheusCollector
		err error
	)

	if p.armed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dslwatch_interval_armed_total",
		Help: "Number of times the update interval was armed, per page.",
	}, []string{"page"})); err != nil {
		return nil, err
	}
	if p.cancelled, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dslwatch_interval_cancelled_total",
		Help: "Number of times the update interval was cancelled on page change, per page.",
	}, []string{"page"})); err != nil {
		return nil, err
	}
	if p.cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dslwatch_cycles_total",
		Help: "Number of update cycles, per page and outcome.",
	}, []string{"page", "outcome"})); err != nil {
		return nil, err
	}
	if p.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dslwatch_cycle_duration_seconds",
		Help:    "Duration of update cycles, fetch included.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"page"})); err != nil {
		return nil, err
	}
	if p.errors, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dslwatch_line_errors",
		Help: "Last reported DSL error counters, per metric and direction.",
	}, []string{"metric", "direction"})); err != nil {
		return nil, err
	}
	if p.uptime, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dslwatch_line_uptime_seconds",
		Help: "Last reported DSL line uptime.",
	})); err != nil {
		return nil, err
	}
	if p.resets, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dslwatch_resets_total",
		Help: "Number of interface resets, per outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	return &p, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (p *PrometheusCollector) IncIntervalArmed(page string) {
	if p == nil {
		return
	}
	p.armed.WithLabelValues(page).Inc()
}

func (p *PrometheusCollector) IncIntervalCancelled(page string) {
	if p == nil {
		return
	}
	p.cancelled.WithLabelValues(page).Inc()
}

func (p *PrometheusCollector) ObserveCycle(page string, ok bool, d time.Duration) {
	if p == nil {
		return
	}
	p.cycles.WithLabelValues(page, outcome(ok)).Inc()
	p.duration.WithLabelValues(page).Observe(d.Seconds())
}

// ObserveStats updates the line gauges. NaN components are skipped so the
// previous value stays visible.
func (p *PrometheusCollector) ObserveStats(snap stats.Snapshot) {
	if p == nil {
		return
	}
	for _, key := range []string{stats.KeyCRCErrors, stats.KeyFECErrors} {
		pair, ok := snap.Pair(key)
		if !ok {
			continue
		}
		setFinite(p.errors.WithLabelValues(key, "downstream"), pair.Downstream)
		setFinite(p.errors.WithLabelValues(key, "upstream"), pair.Upstream)
	}
	if text, ok := snap.Text(stats.KeyUptime); ok {
		if d, ok := stats.ParseUptime(text); ok {
			p.uptime.Set(d.Seconds())
		}
	}
}

func (p *PrometheusCollector) IncReset(ok bool) {
	if p == nil {
		return
	}
	p.resets.WithLabelValues(outcome(ok)).Inc()
}

func setFinite(g prometheus.Gauge, v float64) {
	if math.IsNaN(v) {
		return
	}
	g.Set(v)
}
