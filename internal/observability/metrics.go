// Package observability exposes Prometheus metrics for projection runs
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded on vessel_forecast_runs_total
const (
	OutcomePublished    = "published"
	OutcomePrecondition = "fallback_precondition"
	OutcomeNoData       = "fallback_no_data"
	OutcomeError        = "fallback_error"
)

// Collector bundles the forecast bridge metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs        *prometheus.CounterVec
	HourFetches *prometheus.CounterVec
	Records     *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_forecast_runs_total",
		Help: "Forecast runs, labeled by outcome.",
	}, []string{"outcome"}), "vessel_forecast_runs_total")
	if err != nil {
		return nil, err
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_forecast_hour_fetches_total",
		Help: "Per-hour forecast requests, labeled by dataset and result.",
	}, []string{"dataset", "result"}), "vessel_forecast_hour_fetches_total")
	if err != nil {
		return nil, err
	}

	records, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_forecast_records_total",
		Help: "Forecast records handed to the bus, labeled by dataset and cadence.",
	}, []string{"dataset", "cadence"}), "vessel_forecast_records_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vessel_forecast_run_duration_seconds",
		Help:    "Wall time of a forecast run in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}), "vessel_forecast_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:    gatherer,
		Runs:        runs,
		HourFetches: fetches,
		Records:     records,
		RunDuration: duration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome and duration of one run
func (c *Collector) ObserveRun(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
	c.RunDuration.Observe(d.Seconds())
}

// ObserveFetch records one per-hour request
func (c *Collector) ObserveFetch(dataset string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.HourFetches.WithLabelValues(dataset, result).Inc()
}

// AddRecords counts records handed to the publisher
func (c *Collector) AddRecords(dataset, cadence string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.Records.WithLabelValues(dataset, cadence).Add(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
