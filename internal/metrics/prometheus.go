package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collectors are created eagerly so packages can record before
// InitCustomMetrics registers them.
var (
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hgate_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hgate_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hgate_active_sessions_created_total",
		Help: "Total number of sessions created or rotated in.",
	})
	SessionValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hgate_session_validations_total",
		Help: "Session validations by result (valid or the rejection reason).",
	}, []string{"result"})
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hgate_rate_limited_total",
		Help: "Requests refused by the rate limiter, by scope (login, api).",
	}, []string{"scope"})
	AccountLockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hgate_account_lockouts_total",
		Help: "Total number of account lockouts.",
	})
)

// InitCustomMetrics registers the collectors with reg.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"LoginSuccessTotal":       LoginSuccessTotal,
		"LoginFailureTotal":       LoginFailureTotal,
		"SessionsCreatedTotal":    SessionsCreatedTotal,
		"SessionValidationsTotal": SessionValidationsTotal,
		"RateLimitedTotal":        RateLimitedTotal,
		"AccountLockoutsTotal":    AccountLockoutsTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
