package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders committed with their stock reservations",
	})

	OrderCreateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_create_failures_total",
			Help: "Rejected or aborted order creations by reason",
		},
		[]string{"reason"},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"from", "to"},
	)

	StockReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_released_units_total",
		Help: "Units returned to the stock ledger by cancellations",
	})

	PaymentStatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_updates_total",
			Help: "Gateway status updates by source and outcome",
		},
		[]string{"source", "event", "outcome"},
	)

	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_calls_total",
			Help: "Outbound payment gateway calls by operation and result",
		},
		[]string{"op", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Served API requests by route and status class",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "API request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_server_requests_in_flight",
		Help: "API requests currently being served",
	})
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StatusClass collapses a status code to 2xx, 4xx and so on.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return string(rune('0'+code/100)) + "xx"
}
