// Package metrics holds the Prometheus instruments for the ledger and the
// settlement engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crowdfund_ledger"

// Outbox publish results.
const (
	OutboxPublished = "published"
	OutboxRetried   = "retried"
	OutboxFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	contributionsRecorded prometheus.Counter
	contributionsRejected *prometheus.CounterVec
	settlementDecisions   *prometheus.CounterVec
	transferAttempts      *prometheus.CounterVec
	transferLatency       *prometheus.HistogramVec
	settlementsStalled    prometheus.Counter
	settlementsCompleted  prometheus.Counter
	campaignsClosed       prometheus.Counter
	outboxResults         *prometheus.CounterVec
	commandsConsumed      *prometheus.CounterVec
	httpRequests          *prometheus.HistogramVec
}

// New registers every instrument on a fresh registry labelled with service.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: registry,
		contributionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "contributions_recorded_total",
			Help:        "Contributions committed to the ledger.",
			ConstLabels: labels,
		}),
		contributionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "contributions_rejected_total",
			Help:        "Contributions rejected before commit, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		settlementDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "settlement_decisions_total",
			Help:        "Settlement records created, by decision.",
			ConstLabels: labels,
		}, []string{"decision"}),
		transferAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transfer_attempts_total",
			Help:        "Settlement attempts driven to a terminal outcome, by kind and outcome.",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		transferLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "transfer_call_duration_seconds",
			Help:        "Latency of individual transfer gateway calls.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"result"}),
		settlementsStalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "settlements_stalled_total",
			Help:        "Settlement drives that ended with an unsettled attempt.",
			ConstLabels: labels,
		}),
		settlementsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "settlements_completed_total",
			Help:        "Campaigns that reached Settled.",
			ConstLabels: labels,
		}),
		campaignsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "campaigns_closed_total",
			Help:        "Campaigns closed by the deadline sweep.",
			ConstLabels: labels,
		}),
		outboxResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "outbox_publish_total",
			Help:        "Outbox delivery results.",
			ConstLabels: labels,
		}, []string{"result"}),
		commandsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "settlement_commands_total",
			Help:        "Settlement commands consumed, by action and result.",
			ConstLabels: labels,
		}, []string{"action", "result"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency, by method, route and status.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.contributionsRecorded,
		m.contributionsRejected,
		m.settlementDecisions,
		m.transferAttempts,
		m.transferLatency,
		m.settlementsStalled,
		m.settlementsCompleted,
		m.campaignsClosed,
		m.outboxResults,
		m.commandsConsumed,
		m.httpRequests,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ContributionRecorded() {
	if m == nil {
		return
	}
	m.contributionsRecorded.Inc()
}

func (m *Metrics) ContributionRejected(reason string) {
	if m == nil {
		return
	}
	m.contributionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SettlementDecided(decision string) {
	if m == nil {
		return
	}
	m.settlementDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) AttemptFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.transferAttempts.WithLabelValues(kind, outcome).Inc()
}

// ObserveTransfer records a gateway call; err decides the result label.
func (m *Metrics) ObserveTransfer(started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transferLatency.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

func (m *Metrics) SettlementStalled() {
	if m == nil {
		return
	}
	m.settlementsStalled.Inc()
}

func (m *Metrics) SettlementCompleted() {
	if m == nil {
		return
	}
	m.settlementsCompleted.Inc()
}

func (m *Metrics) CampaignsClosed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.campaignsClosed.Add(float64(n))
}

func (m *Metrics) OutboxResult(result string) {
	if m == nil {
		return
	}
	m.outboxResults.WithLabelValues(result).Inc()
}

func (m *Metrics) CommandConsumed(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commandsConsumed.WithLabelValues(action, result).Inc()
}

// ObserveHTTPRequest records one served request. route is the matched route
// template, not the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, started time.Time) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}

// ErrorReason reduces err to a low-cardinality label using the given sentinels.
func ErrorReason(err error, known map[error]string) string {
	for target, reason := range known {
		if errors.Is(err, target) {
			return reason
		}
	}
	return "unknown"
}
