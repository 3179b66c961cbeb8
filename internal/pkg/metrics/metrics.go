// Package metrics holds the Prometheus collectors for the verification flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signup_verify"

var (
	// SignupsTotal counts signup attempts by outcome.
	SignupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Signup requests by method and outcome.",
	}, []string{"method", "outcome"})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Token consumption attempts by method and outcome.",
	}, []string{"method", "outcome"})

	ResendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resends_total",
		Help:      "Resend requests by method and outcome.",
	}, []string{"method", "outcome"})

	SendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "email_send_duration_seconds",
		Help:      "Time spent delivering a verification email.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method"})

	SendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "email_send_failures_total",
		Help:      "Verification emails that could not be delivered.",
	}, []string{"method"})
)

// Outcome labels shared by the counters.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeExpired     = "expired"
	OutcomeConflict    = "conflict"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)
