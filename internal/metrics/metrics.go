// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests handled by the API.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// TicksTotal counts distribution ticks by outcome.
	// result is one of: ok, skipped (lock held elsewhere), error.
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribution_ticks_total",
			Help: "Total number of distribution ticks by result.",
		},
		[]string{"result"},
	)

	// OrdersExamined counts orders pulled from the distribution queue.
	OrdersExamined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distribution_orders_examined_total",
			Help: "Total number of orders examined by the tick pipeline.",
		},
	)

	// OffersSentTotal counts offers broadcast to masters.
	OffersSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offers_sent_total",
			Help: "Total number of offers created in state SENT.",
		},
	)

	// OffersExpiredTotal counts offers swept by the expiry reaper.
	OffersExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offers_expired_total",
			Help: "Total number of pending offers flipped to EXPIRED.",
		},
	)

	// AssignmentsTotal counts committed acceptances.
	AssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assignments_total",
			Help: "Total number of orders assigned through offer acceptance.",
		},
	)

	// DeclinesTotal counts committed declines.
	DeclinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offer_declines_total",
			Help: "Total number of offers declined by masters.",
		},
	)

	// AcceptFailuresTotal counts refused acceptance attempts by reason.
	AcceptFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accept_failures_total",
			Help: "Total number of refused AcceptOffer calls by reason.",
		},
		[]string{"reason"},
	)

	// EscalationsTotal counts one-shot escalation notifications by stage.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total number of escalation notifications by stage (logist, admin).",
		},
		[]string{"stage"},
	)
)

// Register exists as the explicit registration point called from main.
// promauto has already registered everything by init time.
func Register() {}
