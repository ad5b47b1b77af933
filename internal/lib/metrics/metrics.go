package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linemk/order-portal/internal/domain/models"
)

const namespace = "portal"

// Metrics счётчики ядра заказов. Регистрируются в собственном реестре,
// чтобы тесты могли создавать сколько угодно экземпляров.
type Metrics struct {
	registry      *prometheus.Registry
	ordersCreated prometheus.Counter
	transitions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	compensations prometheus.Counter
	chatClients   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders successfully created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_rejections_total",
			Help:      "Checkouts rejected by a business rule.",
		}, []string{"reason"}),
		compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensations_total",
			Help:      "Reserved order lines returned to stock after a failed checkout.",
		}),
		chatClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_clients",
			Help:      "Websocket chat clients connected to this instance.",
		}),
	}

	m.registry.MustRegister(
		m.ordersCreated,
		m.transitions,
		m.rejections,
		m.compensations,
		m.chatClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) OrderCreated() {
	m.ordersCreated.Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderTransitioned(status models.OrderStatus) {
	m.transitions.WithLabelValues(string(status)).Inc()
}

// StockCompensated items - число позиций, возвращённых на склад
func (m *Metrics) StockCompensated(items int) {
	m.compensations.Add(float64(items))
}

func (m *Metrics) SetChatClients(n int) {
	m.chatClients.Set(float64(n))
}

// Handler отдаёт /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
