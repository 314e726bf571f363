// Package metrics defines and registers all custom Prometheus metrics for the
// service desk. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation; callers that want to export them gather that registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "servicedesk"

// ── Request metrics ───────────────────────────────────────────────────────────

// RequestsCreatedTotal counts newly filed requests.
// Label:
//   - priority: "low", "medium" or "high"
var RequestsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_created_total",
		Help:      "Total number of service requests created, by priority.",
	},
	[]string{"priority"},
)

// RequestTransitionsTotal counts applied status transitions.
// Labels:
//   - from: status before the transition
//   - to:   status after the transition
var RequestTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_transitions_total",
		Help:      "Total number of request status transitions applied.",
	},
	[]string{"from", "to"},
)

// ReconciliationsTotal counts statistics recomputations.
// Label:
//   - result: "ok" or "error"
var ReconciliationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_reconciliations_total",
		Help:      "Total number of user statistics recomputations, by result.",
	},
	[]string{"result"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsTotal counts session lifecycle events.
// Label:
//   - event: "issued", "expired", "revoked" or "purged"
var SessionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of session lifecycle events.",
	},
	[]string{"event"},
)

// LoginFailuresTotal counts rejected credential checks.
var LoginFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_failures_total",
		Help:      "Total number of rejected credential verifications.",
	},
)

// ── Store metrics ─────────────────────────────────────────────────────────────

// StoreWriteDuration measures how long a backend write takes.
// Labels:
//   - collection: users, services, requests or sessions
//   - op: create, put, update or delete
var StoreWriteDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_write_duration_seconds",
		Help:      "Duration of record writes to the durable backend.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"collection", "op"},
)
