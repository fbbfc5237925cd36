package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "eventsnow_events_submitted_total", Help: "Events submitted for moderation"},
	)
	ModerationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eventsnow_moderation_decisions_total", Help: "Moderation outcomes by status"},
		[]string{"status"},
	)
	FeedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eventsnow_feed_requests_total", Help: "Resident feed requests by filter"},
		[]string{"filter"},
	)
	FeedResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventsnow_feed_results",
			Help:    "Events returned per feed request",
			Buckets: []float64{0, 1, 3, 5, 10, 20},
		},
	)
	PromoOrdersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eventsnow_promo_orders_created_total", Help: "Promotion orders created by service"},
		[]string{"service"},
	)
	PromoOrdersPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eventsnow_promo_orders_paid_total", Help: "Promotion orders paid by service"},
		[]string{"service"},
	)
	PaymentChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eventsnow_payment_checks_total", Help: "Provider status checks by result"},
		[]string{"result"},
	)
	BotCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eventsnow_bot_commands_total", Help: "Bot commands handled"},
		[]string{"command"},
	)
)

func Register() {
	prometheus.MustRegister(
		EventsSubmitted,
		ModerationDecisions,
		FeedRequests,
		FeedResults,
		PromoOrdersCreated,
		PromoOrdersPaid,
		PaymentChecks,
		BotCommands,
	)
}
