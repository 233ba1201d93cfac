package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Capigrid
type Metrics struct {
	// Ledger counters
	ContributionsTotal      *prometheus.CounterVec
	ContributionAmountTotal prometheus.Counter

	// Campaign counters
	CampaignsCreatedTotal prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	// Mail counters
	EmailsSentTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge

	registry  *prometheus.Registry
	startedAt time.Time
}

// New creates a Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ContributionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capigrid_contributions_total",
				Help: "Total number of contribution attempts by outcome",
			},
			[]string{"status"},
		),
		ContributionAmountTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "capigrid_contribution_amount_total",
				Help: "Total amount of committed contributions",
			},
		),
		CampaignsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "capigrid_campaigns_created_total",
				Help: "Total number of campaigns created",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capigrid_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capigrid_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capigrid_emails_sent_total",
				Help: "Total number of outbound emails by delivery outcome",
			},
			[]string{"status"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "capigrid_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),

		registry:  reg,
		startedAt: time.Now(),
	}

	reg.MustRegister(
		m.ContributionsTotal,
		m.ContributionAmountTotal,
		m.CampaignsCreatedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.EmailsSentTotal,
		m.UptimeSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpdateUptime refreshes the uptime gauge
func (m *Metrics) UpdateUptime() {
	m.UptimeSeconds.Set(time.Since(m.startedAt).Seconds())
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, nil when disabled
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncContributions counts a contribution attempt by its outcome code
func IncContributions(status string) {
	m := Global()
	if m != nil {
		m.ContributionsTotal.WithLabelValues(status).Inc()
	}
}

// AddContributionAmount adds a committed contribution amount
func AddContributionAmount(amount float64) {
	m := Global()
	if m != nil {
		m.ContributionAmountTotal.Add(amount)
	}
}

// IncCampaignsCreated counts a newly created campaign
func IncCampaignsCreated() {
	m := Global()
	if m != nil {
		m.CampaignsCreatedTotal.Inc()
	}
}

// IncEmailsSent counts an outbound email by delivery outcome
func IncEmailsSent(status string) {
	m := Global()
	if m != nil {
		m.EmailsSentTotal.WithLabelValues(status).Inc()
	}
}
