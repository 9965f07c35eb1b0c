package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	ordersCreated   prometheus.Counter
	checkoutsFailed *prometheus.CounterVec
	orderStatus     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	stockAlerts     prometheus.Counter
	notifications   *prometheus.CounterVec
	pushes          *prometheus.CounterVec
	connections     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "orders_created_total",
			Help:      "Orders created from a cart.",
		}),
		checkoutsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "checkouts_failed_total",
			Help:      "Checkouts rejected, by reason.",
		}, []string{"reason"}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "order_status_transitions_total",
			Help:      "Order status transitions, by target status.",
		}, []string{"status"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "payments_total",
			Help:      "Payment state changes, by resulting status.",
		}, []string{"status"}),
		stockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "stock_alerts_total",
			Help:      "Low stock alerts raised.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "notifications_total",
			Help:      "Notifications appended to feeds, by category.",
		}, []string{"category"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "realtime_pushes_total",
			Help:      "Realtime deliveries to live connections, by outcome.",
		}, []string{"outcome"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storefront",
			Name:      "realtime_connections",
			Help:      "Live realtime connections on this instance.",
		}),
	}

	reg.MustRegister(
		m.ordersCreated,
		m.checkoutsFailed,
		m.orderStatus,
		m.payments,
		m.stockAlerts,
		m.notifications,
		m.pushes,
		m.connections,
	)

	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) CheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.checkoutsFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderStatusChanged(status string) {
	if m == nil {
		return
	}
	m.orderStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) PaymentStatus(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

func (m *Metrics) StockAlert() {
	if m == nil {
		return
	}
	m.stockAlerts.Inc()
}

func (m *Metrics) NotificationStored(category string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(category).Inc()
}

func (m *Metrics) Push(outcome string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
