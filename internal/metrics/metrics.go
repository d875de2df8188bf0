// Package metrics exposes scan activity counters for Prometheus scraping.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raysh454/zapscan/internal/model"
)

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	submitted     *prometheus.CounterVec
	finished      *prometheus.CounterVec
	findings      *prometheus.CounterVec
	gatewayErrors *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.submitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapscan_scans_submitted_total",
			Help: "Total number of scans accepted for processing",
		},
		[]string{"kind"},
	)
	m.finished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapscan_scans_finished_total",
			Help: "Total number of scans that reached a terminal status",
		},
		[]string{"kind", "status"},
	)
	m.findings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapscan_findings_total",
			Help: "Total number of findings stored for completed scans",
		},
		[]string{"severity"},
	)
	m.gatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapscan_gateway_errors_total",
			Help: "Total number of failed calls to the scanner engine",
		},
		[]string{"op"},
	)
	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapscan_scan_duration_seconds",
			Help:    "Wall-clock scan duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"kind", "status"},
	)

	collectors := []prometheus.Collector{
		m.submitted,
		m.finished,
		m.findings,
		m.gatewayErrors,
		m.duration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ScanSubmitted(kind model.ScanKind) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(string(kind)).Inc()
}

// ScanFinished records a terminal scan and, for completed scans, its
// findings per severity.
func (m *Metrics) ScanFinished(kind model.ScanKind, status model.Status, elapsed time.Duration, findings []model.Finding) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(kind), string(status)).Inc()
	m.duration.WithLabelValues(string(kind), string(status)).Observe(elapsed.Seconds())

	counts := model.CountBySeverity(findings)
	for _, sev := range model.Severities {
		if n := counts.Of(sev); n > 0 {
			m.findings.WithLabelValues(string(sev)).Add(float64(n))
		}
	}
}

func (m *Metrics) GatewayError(op string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
