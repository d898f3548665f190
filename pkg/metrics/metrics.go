// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for ceremonies,
// recovery keys, cleanup and the HTTP surface.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all metrics
	Namespace = "devicetrust"

	// Label names
	LabelCeremony   = "ceremony"
	LabelStage      = "stage"
	LabelStatus     = "status"
	LabelReason     = "reason"
	LabelRecord     = "record"
	LabelMethod     = "method"
	LabelRoute      = "route"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Ceremonies
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"
	CeremonyRecovery       = "recovery"

	// Stages
	StageBegin      = "begin"
	StageComplete   = "complete"
	StageGenerate   = "generate"
	StageVerify     = "verify"
	StageInvalidate = "invalidate"

	// Cleaned record kinds
	RecordChallenge   = "challenge"
	RecordRecoveryKey = "recovery_key"
)

var (
	// CeremoniesTotal counts ceremony steps by ceremony, stage and status.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony steps by ceremony, stage, and status",
		},
		[]string{LabelCeremony, LabelStage, LabelStatus},
	)

	// CeremonyDuration tracks ceremony step latency in seconds. The upper
	// buckets cover argon2id recovery verification.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony steps in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelCeremony, LabelStage},
	)

	// FailuresTotal counts rejected ceremonies by reason
	// (e.g. "challenge_expired", "counter_regression").
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "failures_total",
			Help:      "Total number of rejected ceremonies by ceremony and reason",
		},
		[]string{LabelCeremony, LabelReason},
	)

	// CleanupRemovedTotal counts expired records removed by the janitor.
	CleanupRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cleanup_removed_total",
			Help:      "Total number of expired records removed by cleanup",
		},
		[]string{LabelRecord},
	)

	// ActiveRequests tracks in-flight HTTP requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method, route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code",
		},
		[]string{LabelMethod, LabelRoute, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelRoute},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordCeremony records a ceremony step with its duration and status.
//
// Example:
//
//	start := time.Now()
//	_, err := svc.CompleteAuthentication(ctx, resp)
//	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StageComplete,
//	    metrics.Status(err), time.Since(start).Seconds())
func RecordCeremony(ceremony, stage, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, stage, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony, stage).Observe(duration)
}

// RecordFailure records a rejected ceremony with a specific reason.
func RecordFailure(ceremony, reason string) {
	if !enabled.Load() {
		return
	}
	FailuresTotal.WithLabelValues(ceremony, reason).Inc()
}

// RecordCleanup records how many expired records of a kind were removed.
func RecordCleanup(record string, removed int) {
	if !enabled.Load() || removed <= 0 {
		return
	}
	CleanupRemovedTotal.WithLabelValues(record).Add(float64(removed))
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, route, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordRateLimited records a request rejected by the rate limiter.
func RecordRateLimited() {
	if !enabled.Load() {
		return
	}
	RateLimitedTotal.Inc()
}

// Status maps an error to StatusSuccess or StatusError.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
