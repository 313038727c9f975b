// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics owns the Prometheus collectors of the admission layer.

Collectors live on a private [prometheus.Registry] rather than the global
default, so each test gets a clean set and /metrics exposes exactly these.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taibuivan/aegis/internal/platform/constants"
)

// Label values for admission decisions and verification outcomes.
const (
	DecisionAdmitted = "admitted"
	DecisionRejected = "rejected"

	OutcomeValid   = "valid"
	OutcomeExpired = "expired"
	OutcomeInvalid = "invalid"
	OutcomeRevoked = "revoked"
	OutcomeMissing = "missing"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	admissions         *prometheus.CounterVec
	pipelineRejections *prometheus.CounterVec
	securityEvents     *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	blockedClients     prometheus.Gauge
	requestDuration    *prometheus.HistogramVec
	sweptEntries       *prometheus.CounterVec
}

// New creates the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	namespace := constants.AppName

	return &Metrics{
		registry: registry,
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "admissions_total",
			Help:      "Rate limiter decisions by endpoint class.",
		}, []string{"class", "decision", "reason"}),
		pipelineRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rejections_total",
			Help:      "Requests rejected by the admission pipeline.",
		}, []string{"interceptor", "code"}),
		securityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "security_events_total",
			Help:      "Audit events by type and severity.",
		}, []string{"event", "severity"}),
		tokenVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "verifications_total",
			Help:      "Access token verifications by outcome.",
		}, []string{"outcome"}),
		blockedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "blocked_clients",
			Help:      "Client blocks created minus blocks swept.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency including the admission pipeline.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "status"}),
		sweptEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "swept_entries_total",
			Help:      "Expired state removed by background sweeps.",
		}, []string{"kind"}),
	}
}

// Registry exposes the underlying registry (tests, custom exporters).
func (metrics *Metrics) Registry() *prometheus.Registry {
	if metrics == nil {
		return nil
	}
	return metrics.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	if metrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{Registry: metrics.registry})
}

// # Recorders

// Admission records one rate limiter decision.
func (metrics *Metrics) Admission(class string, admitted bool, reason string) {
	if metrics == nil {
		return
	}
	decision := DecisionAdmitted
	if !admitted {
		decision = DecisionRejected
	}
	metrics.admissions.WithLabelValues(class, decision, reason).Inc()
}

// PipelineRejection records a request stopped by interceptor with code.
func (metrics *Metrics) PipelineRejection(interceptor, code string) {
	if metrics == nil {
		return
	}
	metrics.pipelineRejections.WithLabelValues(interceptor, code).Inc()
}

// SecurityEvent records an audit event.
func (metrics *Metrics) SecurityEvent(event, severity string) {
	if metrics == nil {
		return
	}
	metrics.securityEvents.WithLabelValues(event, severity).Inc()
}

// TokenVerification records the outcome of an access token check.
func (metrics *Metrics) TokenVerification(outcome string) {
	if metrics == nil {
		return
	}
	metrics.tokenVerifications.WithLabelValues(outcome).Inc()
}

// ClientBlocked increments the blocked client gauge.
func (metrics *Metrics) ClientBlocked() {
	if metrics == nil {
		return
	}
	metrics.blockedClients.Inc()
}

// Swept records janitor removals. Expired blocks also lower the blocked gauge.
func (metrics *Metrics) Swept(windows, blocks, violations, storeEntries int) {
	if metrics == nil {
		return
	}
	metrics.sweptEntries.WithLabelValues("window").Add(float64(windows))
	metrics.sweptEntries.WithLabelValues("block").Add(float64(blocks))
	metrics.sweptEntries.WithLabelValues("violation").Add(float64(violations))
	metrics.sweptEntries.WithLabelValues("store").Add(float64(storeEntries))
	metrics.blockedClients.Sub(float64(blocks))
}

// ObserveRequest records the latency of one HTTP request.
func (metrics *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	metrics.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
