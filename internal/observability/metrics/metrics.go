// Package metrics exposes the Prometheus collectors shared across the
// core. Handlers and services pull these in rather than declaring their
// own ad-hoc counters, so /metrics stays a single coherent surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corehub_login_attempts_total",
		Help: "Login attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	RefreshRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corehub_refresh_rotations_total",
		Help: "Refresh-token rotations by outcome (ok, replay_detected, denied).",
	}, []string{"outcome"})

	SessionsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corehub_sessions_revoked_total",
		Help: "Sessions explicitly revoked (logout, chain replay, soft-delete).",
	})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corehub_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter, by route family.",
	}, []string{"route"})

	FeatureFlagCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corehub_feature_flag_cache_total",
		Help: "Feature flag cache lookups by outcome (hit, miss).",
	}, []string{"outcome"})

	TenantCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corehub_tenant_cache_total",
		Help: "Tenant resolver cache lookups by outcome (hit, miss, stale).",
	}, []string{"outcome"})

	EventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corehub_events_enqueued_total",
		Help: "Jobs enqueued onto the event bus, by job name.",
	}, []string{"name"})
)
