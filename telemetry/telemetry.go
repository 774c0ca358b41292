package telemetry

import (
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector captures telemetry events emitted by the reader manager.
//
// Hooks run inline on the manager's loop and must be cheap.
type Collector interface {
	SetReaders(n int)
	SetProgressChannels(n int)
	ObserveRequest(method, outcome string, d time.Duration)
	IncNotification(method, outcome string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) SetReaders(int)                               {}
func (noopCollector) SetProgressChannels(int)                      {}
func (noopCollector) ObserveRequest(string, string, time.Duration) {}
func (noopCollector) IncNotification(string, string)               {}

// PrometheusCollector exposes reader manager metrics via Prometheus.
type PrometheusCollector struct {
	readers         prometheus.Gauge
	progress        prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg, or with the default
// registerer when reg is nil. Metrics already registered by an earlier
// collector are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	readers, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reader_bridge_readers",
		Help: "Number of platform readers currently registered.",
	}))
	if err != nil {
		return nil, err
	}

	progress, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reader_bridge_progress_channels",
		Help: "Number of progress ids currently addressable by clients.",
	}))
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_bridge_requests_total",
		Help: "Number of method calls handled, per method and outcome.",
	}, []string{"method", "outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reader_bridge_request_duration_seconds",
		Help:    "Time from receiving a method call to producing its result.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"method"}))
	if err != nil {
		return nil, err
	}

	notifications, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_bridge_notifications_total",
		Help: "Number of notifications sent to client isolates, per method and outcome.",
	}, []string{"method", "outcome"}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		readers:         readers,
		progress:        progress,
		requests:        requests,
		requestDuration: duration,
		notifications:   notifications,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// SetReaders updates the registered reader gauge.
func (p *PrometheusCollector) SetReaders(n int) {
	if p == nil {
		return
	}
	p.readers.Set(float64(n))
}

// SetProgressChannels updates the progress registry gauge.
func (p *PrometheusCollector) SetProgressChannels(n int) {
	if p == nil {
		return
	}
	p.progress.Set(float64(n))
}

// ObserveRequest counts a finished method call and records its duration.
func (p *PrometheusCollector) ObserveRequest(method, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(method, outcome).Inc()
	p.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncNotification counts an outbound notification.
func (p *PrometheusCollector) IncNotification(method, outcome string) {
	if p == nil {
		return
	}
	p.notifications.WithLabelValues(method, outcome).Inc()
}
