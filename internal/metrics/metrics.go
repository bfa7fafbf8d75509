package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors the cart service exports. A nil *Metrics is
// valid and records nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	Reservations    *prometheus.CounterVec // result: reserved|insufficient|error
	Releases        *prometheus.CounterVec // reason: removed|expired|cancelled
	Checkouts       *prometheus.CounterVec // result: created|empty|mismatch|error|replayed
	SweptRecords    prometheus.Counter
	SweepErrors     prometheus.Counter
	StockLevel      *prometheus.GaugeVec
	StatusChanges   *prometheus.CounterVec
	RollbackFailure prometheus.Counter
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reservations_total",
			Help: "Reserve attempts by result.",
		}, []string{"result"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_returned_total",
			Help: "Units returned to stock by reason.",
		}, []string{"reason"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkouts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		SweptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweeper_expired_total",
			Help: "Expired reservations reconciled by the sweeper.",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweeper_errors_total",
			Help: "Expired reservations the sweeper failed to reconcile.",
		}),
		StockLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "product_available_quantity",
			Help: "Last observed available quantity per product.",
		}, []string{"product_id"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_status_changes_total",
			Help: "Order status transitions by target status.",
		}, []string{"status"}),
		RollbackFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rollback_failures_total",
			Help: "Transactions whose rollback failed and need manual reconciliation.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Reservations, m.Releases, m.Checkouts, m.SweptRecords, m.SweepErrors,
		m.StockLevel, m.StatusChanges, m.RollbackFailure,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Reserve(result string) {
	if m != nil {
		m.Reservations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Returned(reason string, qty int) {
	if m != nil {
		m.Releases.WithLabelValues(reason).Add(float64(qty))
	}
}

func (m *Metrics) Checkout(result string) {
	if m != nil {
		m.Checkouts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Swept(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.SweptRecords.Inc()
		return
	}
	m.SweepErrors.Inc()
}

func (m *Metrics) Stock(productID string, qty int) {
	if m != nil {
		m.StockLevel.WithLabelValues(productID).Set(float64(qty))
	}
}

func (m *Metrics) StatusChanged(to string) {
	if m != nil {
		m.StatusChanges.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) RollbackFailed() {
	if m != nil {
		m.RollbackFailure.Inc()
	}
}
