package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotes_total", Help: "Count of quotes emitted by data sources"},
		[]string{"symbol"},
	)
	MalformedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "malformed_messages_total", Help: "Upstream messages dropped as unparseable"},
		[]string{"source"},
	)
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reconnects_total", Help: "Upstream reconnect attempts"},
		[]string{"source"},
	)
	AlertsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_triggered_total", Help: "Alert rules that fired"},
		[]string{"symbol", "kind"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Notification delivery attempts"},
		[]string{"status"},
	)
	NotificationsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notifications_dropped_total", Help: "Notifications dropped because the dispatch queue was full"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
)

func init() {
	prometheus.MustRegister(
		QuotesTotal,
		MalformedMessagesTotal,
		ReconnectsTotal,
		AlertsTriggeredTotal,
		NotificationsTotal,
		NotificationsDroppedTotal,
		OrdersTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
