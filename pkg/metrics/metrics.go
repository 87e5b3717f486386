// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for passkey
// ceremonies: counters and latency histograms per ceremony, failure
// kinds, lockouts, and outstanding-challenge gauges.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelCeremony   = "ceremony"
	LabelStatus     = "status"
	LabelKind       = "kind"
	LabelStore      = "store"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusFailure = "failure"

	// Ceremony names
	CeremonyRegistration = "registration"
	CeremonyAssertion    = "assertion"
)

var (
	// CeremoniesTotal tracks completed ceremonies by type and outcome.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of completed ceremonies by type and outcome",
		},
		[]string{LabelCeremony, LabelStatus},
	)

	// CeremonyDuration tracks end-to-end ceremony verification latency.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony verification in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony},
	)

	// FailuresTotal tracks verification failures by kind. Kinds are the
	// stable labels from the rp error taxonomy, never raw error text.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "failures_total",
			Help:      "Total number of verification failures by kind",
		},
		[]string{LabelKind},
	)

	// LockoutsTotal tracks lockouts triggered by repeated failures.
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lockouts_total",
			Help:      "Total number of lockouts triggered",
		},
	)

	// CloneWarningsTotal tracks sign-counter regressions flagged for
	// review.
	CloneWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clone_warnings_total",
			Help:      "Total number of credentials flagged by counter regression",
		},
	)

	// CredentialsTotal tracks the number of stored credentials per store
	// backend.
	CredentialsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_total",
			Help:      "Number of stored credentials per store backend",
		},
		[]string{LabelStore},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines in the server.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

var (
	challengeGaugeOnce sync.Once
	challengeCount     atomic.Pointer[func() float64]
)

// RegisterChallengeGauge exposes the outstanding-challenge count of a
// store as the passkey_active_challenges gauge. Safe to call again
// after a store swap; the latest counter wins.
func RegisterChallengeGauge(count func() float64) {
	challengeCount.Store(&count)
	challengeGaugeOnce.Do(func() {
		promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "active_challenges",
				Help:      "Number of outstanding ceremony challenges",
			},
			func() float64 {
				if fn := challengeCount.Load(); fn != nil {
					return (*fn)()
				}
				return 0
			},
		)
	})
}

// RecordCeremony records a completed ceremony with its duration and
// outcome.
//
// Parameters:
//   - ceremony: CeremonyRegistration or CeremonyAssertion
//   - status: StatusSuccess or StatusFailure
//   - duration: verification duration in seconds
func RecordCeremony(ceremony, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony).Observe(duration)
}

// RecordFailure records a verification failure by its stable kind label.
func RecordFailure(kind string) {
	if !enabled.Load() {
		return
	}
	FailuresTotal.WithLabelValues(kind).Inc()
}

// RecordLockout records a triggered lockout.
func RecordLockout() {
	if !enabled.Load() {
		return
	}
	LockoutsTotal.Inc()
}

// RecordCloneWarning records a sign-counter regression.
func RecordCloneWarning() {
	if !enabled.Load() {
		return
	}
	CloneWarningsTotal.Inc()
}

// SetCredentialsTotal sets the stored credential count for a store
// backend (e.g. "memory", "pudge").
func SetCredentialsTotal(store string, count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsTotal.WithLabelValues(store).Set(count)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
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
