// Package metrics holds the prometheus collectors shared by the issuer and participant binaries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fedtrust"

// Metrics provides observability for sessions, the ledger channel and the integrity chain.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Sessions by how they ended: "closed", "violation", "error"
	Sessions *prometheus.CounterVec

	// Credentials issued over the authorization session
	CredentialsIssued prometheus.Counter

	// Presentation verification outcomes: "accepted" or the rejection kind
	Presentations *prometheus.CounterVec

	// Ledger polling latency until the target count was reached or the wait ended
	PollDuration *prometheus.HistogramVec

	// Records published to the ledger by outcome
	Published *prometheus.CounterVec

	// Integrity verification outcomes per record: "accepted" or the failing stage
	Contributions *prometheus.CounterVec
}

// New registers all collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_sessions_total",
			Help:      "Authorization sessions by termination reason",
		}, []string{"reason"}),

		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_credentials_issued_total",
			Help:      "Credentials issued to requesters",
		}),

		Presentations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_presentations_total",
			Help:      "Presentation verifications by outcome",
		}, []string{"outcome"}),

		PollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_poll_duration_seconds",
			Help:      "Time spent polling a tag until the target record count",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"result"}),

		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_published_total",
			Help:      "Ledger publish attempts by result",
		}, []string{"result"}),

		Contributions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_contributions_total",
			Help:      "Verified contributions by outcome",
		}, []string{"outcome"}),
	}
}

// IncSession records a finished session.
func (m *Metrics) IncSession(reason string) {
	if m != nil {
		m.Sessions.WithLabelValues(reason).Inc()
	}
}

// IncCredentialIssued records an issued credential.
func (m *Metrics) IncCredentialIssued() {
	if m != nil {
		m.CredentialsIssued.Inc()
	}
}

// IncPresentation records a presentation outcome.
func (m *Metrics) IncPresentation(outcome string) {
	if m != nil {
		m.Presentations.WithLabelValues(outcome).Inc()
	}
}

// ObservePoll records how long a poll ran.
func (m *Metrics) ObservePoll(result string, d time.Duration) {
	if m != nil {
		m.PollDuration.WithLabelValues(result).Observe(d.Seconds())
	}
}

// IncPublished records a publish result.
func (m *Metrics) IncPublished(result string) {
	if m != nil {
		m.Published.WithLabelValues(result).Inc()
	}
}

// IncContribution records an integrity verification outcome.
func (m *Metrics) IncContribution(outcome string) {
	if m != nil {
		m.Contributions.WithLabelValues(outcome).Inc()
	}
}
