// Package metrics defines and registers the custom Prometheus metrics for the
// chat auth service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package init
// via promauto; expose them by mounting the /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat_auth"

// ── Session metrics ───────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "rejected" (bad credentials or inactive account) or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "success", "invalid", "conflict" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// TokenRefreshesTotal counts tokens reissued near expiry by the status check.
var TokenRefreshesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of session tokens silently reissued near expiry.",
	},
)

// TokenRejectionsTotal counts tokens refused on verification.
// Label:
//   - reason: "missing", "expired", "signature", "malformed", "revoked", "unknown_user" or "inactive"
var TokenRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_rejections_total",
		Help:      "Total number of rejected session tokens, by reason.",
	},
	[]string{"reason"},
)

// ── Credential store metrics ──────────────────────────────────────────────────

// StoreCacheTotal counts credential store cache lookups.
// Label:
//   - result: "hit", "miss" or "bypass" (skipCache requested)
var StoreCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_cache_total",
		Help:      "Total number of credential store cache lookups, by result.",
	},
	[]string{"result"},
)

// StoreOperationDuration measures backend calls.
// Labels:
//   - backend: configured backend name (e.g. "file", "redis")
//   - op: repository operation (e.g. "insert", "list")
var StoreOperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_operation_duration_seconds",
		Help:      "Duration of credential backend operations.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"backend", "op"},
)

// StoreErrorsTotal counts backend failures that were logged and swallowed.
// Label:
//   - op: the non-critical operation that failed (e.g. "login_bump", "cache_reload")
var StoreErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_swallowed_errors_total",
		Help:      "Total number of non-critical credential store failures that were logged and ignored.",
	},
	[]string{"op"},
)
