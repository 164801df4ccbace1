package session

import (
	"strings"
	"time"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records one run's exchanges in its own registry so the result
// can be written as a node_exporter textfile when the run ends.
type Metrics struct {
	registry  *prometheus.Registry
	exchanges *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lastRun   prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backup",
			Subsystem: "client",
			Name:      "exchanges_total",
			Help:      "Replies decoded, by operation and reply status",
		}, []string{"op", "status"}),

		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backup",
			Subsystem: "client",
			Name:      "failures_total",
			Help:      "Operations abandoned, by operation and error kind",
		}, []string{"op", "kind"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backup",
			Subsystem: "client",
			Name:      "exchange_duration_seconds",
			Help:      "Time from encoding a request to rendering its reply",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "backup",
			Subsystem: "client",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last scripted run finished",
		}),
	}
}

// Observe records the outcome of one step. Nil receivers are no-ops.
func (m *Metrics) Observe(op protocol.Opcode, resp *protocol.Response, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op.String()).Observe(took.Seconds())
	if resp != nil {
		m.exchanges.WithLabelValues(op.String(), resp.Status.String()).Inc()
	}
	if err != nil {
		m.failures.WithLabelValues(op.String(), errorKind(err)).Inc()
	}
}

// Finish stamps the end of a run.
func (m *Metrics) Finish(at time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func errorKind(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return strings.TrimSuffix(perr.Kind.String(), " error")
	}
	return "unknown"
}
