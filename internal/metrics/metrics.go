// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pending attempt lifecycle
	AttemptsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authbot_attempts_issued_total",
		Help: "Total number of pending sign-in attempts issued",
	})
	AttemptsSuperseded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authbot_attempts_superseded_total",
		Help: "Total number of issued attempts expired because a newer attempt replaced them",
	})
	AttemptsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authbot_attempts_swept_total",
		Help: "Total number of attempts removed by the expiry sweep",
	})
	ConsumeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authbot_code_consume_total",
		Help: "Magic code verification results",
	}, []string{"result"})
	PendingAttempts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authbot_pending_attempts",
		Help: "Attempts currently retained by the pending store, any status",
	})

	// Browser leg
	CallbackResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authbot_callback_total",
		Help: "OAuth callback outcomes",
	}, []string{"result"})

	// Token refresh
	RefreshResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authbot_token_refresh_total",
		Help: "Access token refresh outcomes",
	}, []string{"result"})
	RefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authbot_token_refresh_duration_seconds",
		Help:    "Time spent refreshing an access token, retries included",
		Buckets: prometheus.DefBuckets,
	})

	// Conversation side
	DialogTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authbot_dialog_turns_total",
		Help: "User turns handled, by dialog phase at the start of the turn",
	}, []string{"phase"})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authbot_deliveries_total",
		Help: "Outbound chat messages by transport and result",
	}, []string{"transport", "result"})
)

func init() {
	prometheus.MustRegister(AttemptsIssued)
	prometheus.MustRegister(AttemptsSuperseded)
	prometheus.MustRegister(AttemptsSwept)
	prometheus.MustRegister(ConsumeResults)
	prometheus.MustRegister(PendingAttempts)
	prometheus.MustRegister(CallbackResults)
	prometheus.MustRegister(RefreshResults)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(DialogTurns)
	prometheus.MustRegister(Deliveries)
}

// Handler returns an http.Handler exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result returns "success" for a nil error and "error" otherwise.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
