package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectAttempts counts authorization URLs handed out.
	ConnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpconnect_connect_attempts_total",
			Help: "The total number of Mercado Pago connect attempts started.",
		},
	)

	// TokenExchanges counts code-for-token exchanges by outcome.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpconnect_token_exchanges_total",
			Help: "The total number of token exchanges performed.",
		},
		[]string{"outcome"},
	)

	// CallbackErrors counts failed callback requests by reason.
	CallbackErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpconnect_callback_errors_total",
			Help: "The total number of OAuth callback failures.",
		},
		[]string{"reason"},
	)

	// ExchangeDuration is a histogram of token exchange round-trip time.
	ExchangeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mpconnect_token_exchange_duration_seconds",
			Help:    "A histogram of token exchange duration.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
