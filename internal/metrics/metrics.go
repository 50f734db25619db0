package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the back office metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	PaymentsTotal   *prometheus.CounterVec
	PaymentAmount   *prometheus.CounterVec
	CollectionTotal *prometheus.CounterVec
	OrdersTotal     prometheus.Counter
	ReceiptRetries  prometheus.Counter
	HTTPDuration    *prometheus.HistogramVec
}

// New constructs metrics on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laundry_payments_total",
				Help: "Payment attempts by mode and result",
			},
			[]string{"mode", "result"},
		),
		PaymentAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laundry_payment_amount_tsh_total",
				Help: "Accepted payment amount in TSh by method",
			},
			[]string{"method"},
		),
		CollectionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laundry_collections_total",
				Help: "Collection attempts by result",
			},
			[]string{"result"},
		),
		OrdersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laundry_orders_total",
			Help: "Orders created",
		}),
		ReceiptRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laundry_receipt_number_retries_total",
			Help: "Receipt number collisions that triggered a retry",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "laundry_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PaymentsTotal,
		m.PaymentAmount,
		m.CollectionTotal,
		m.OrdersTotal,
		m.ReceiptRetries,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePayment(mode string, result string, method string, amount float64) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(mode, result).Inc()
	if result == "applied" && amount > 0 {
		m.PaymentAmount.WithLabelValues(method).Add(amount)
	}
}

func (m *Metrics) ObserveCollection(result string) {
	if m == nil {
		return
	}
	m.CollectionTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOrder() {
	if m == nil {
		return
	}
	m.OrdersTotal.Inc()
}

func (m *Metrics) ObserveReceiptRetry() {
	if m == nil {
		return
	}
	m.ReceiptRetries.Inc()
}

func (m *Metrics) ObserveHTTP(method string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, status).Observe(elapsed.Seconds())
}
