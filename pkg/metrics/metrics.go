package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "identity", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "identity", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "identity", Name: "refresh_total", Help: "Refresh attempts by outcome."},
		[]string{"outcome"},
	)
	SessionMigrations = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "identity", Name: "session_migrations_total", Help: "Sessions migrated to a new device fingerprint."},
	)
	DeviceBindingViolations = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "identity", Name: "device_binding_violations_total", Help: "Refresh records presented from a device other than the one they were issued to."},
	)
	RevocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "identity", Name: "revocations_total", Help: "Mass session invalidations by trigger."},
		[]string{"trigger"},
	)
	SessionTouchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "identity", Name: "session_touch_total", Help: "Session activity updates by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RefreshTotal)
	reg.MustRegister(SessionMigrations)
	reg.MustRegister(DeviceBindingViolations)
	reg.MustRegister(RevocationsTotal)
	reg.MustRegister(SessionTouchTotal)
}
