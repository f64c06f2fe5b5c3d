// Package metrics defines the Prometheus collectors exported by the engine
// and the development relay.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kakioki"

// Metrics groups the engine's collectors.
type Metrics struct {
	SharedKeyDerivations prometheus.Counter
	SharedKeyCacheHits   prometheus.Counter
	DecryptFailures      *prometheus.CounterVec // kind: text|media
	RealtimeEvents       *prometheus.CounterVec // type, outcome
	HistoryLoads         *prometheus.CounterVec // outcome: ok|stale|error
	Sends                *prometheus.CounterVec // outcome: ok|error|blocked
	RelayRequests        *prometheus.CounterVec // route, code
	PublishedEvents      *prometheus.CounterVec // type, trimmed
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which suits tests and library use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SharedKeyDerivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sharedkey", Name: "derivations_total",
			Help: "Shared keys derived via key exchange.",
		}),
		SharedKeyCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sharedkey", Name: "cache_hits_total",
			Help: "Shared key lookups served from the session cache.",
		}),
		DecryptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cipher", Name: "decrypt_failures_total",
			Help: "Ciphertexts that failed authentication or decoding.",
		}, []string{"kind"}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "events_total",
			Help: "Realtime events handled by the router.",
		}, []string{"type", "outcome"}),
		HistoryLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "history", Name: "loads_total",
			Help: "History page loads by outcome.",
		}, []string{"outcome"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "sends_total",
			Help: "Message sends by outcome.",
		}, []string{"outcome"}),
		RelayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "requests_total",
			Help: "Relay HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		PublishedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "published_events_total",
			Help: "Realtime events published by the relay.",
		}, []string{"type", "trimmed"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SharedKeyDerivations,
			m.SharedKeyCacheHits,
			m.DecryptFailures,
			m.RealtimeEvents,
			m.HistoryLoads,
			m.Sends,
			m.RelayRequests,
			m.PublishedEvents,
		)
	}
	return m
}

// OrNop returns m, or an unregistered set when m is nil.
func OrNop(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}
