package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики операций с заказами и складом.
// Все методы безопасны для nil-получателя.
type OrderMetrics struct {
	ordersCreated   prometheus.Counter
	ordersCancelled prometheus.Counter
	statusUpdates   *prometheus.CounterVec
	failures        *prometheus.CounterVec

	// Количество единиц товара, списанных (out) и возвращённых (in).
	stockUnits *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "erp_orders_created_total",
			Help: "Total number of orders placed",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "erp_orders_cancelled_total",
			Help: "Total number of orders cancelled with stock restored",
		}),
		statusUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "erp_order_status_updates_total",
			Help: "Total number of manual order status updates by target status",
		}, []string{"status"}),
		failures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "erp_order_failures_total",
			Help: "Total number of rejected order operations by reason",
		}, []string{"operation", "reason"}),
		stockUnits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "erp_stock_adjusted_units_total",
			Help: "Units of stock decremented (out) or restored (in)",
		}, []string{"direction"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "erp_order_operation_duration_seconds",
			Help:    "Duration of order service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "erp_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "erp_outbox_events_enqueued_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "erp_order_operations_in_flight",
			Help: "Number of order service operations currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated учитывает оформленный заказ и списанные единицы.
func (m *OrderMetrics) RecordOrderCreated(units int) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.stockUnits.WithLabelValues("out").Add(float64(units))
}

// RecordOrderCancelled учитывает отмену и возвращённые на склад единицы.
func (m *OrderMetrics) RecordOrderCancelled(units int) {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
	m.stockUnits.WithLabelValues("in").Add(float64(units))
}

// RecordStockAdjusted учитывает ручную корректировку остатка.
func (m *OrderMetrics) RecordStockAdjusted(delta int) {
	if m == nil || delta == 0 {
		return
	}
	if delta < 0 {
		m.stockUnits.WithLabelValues("out").Add(float64(-delta))
		return
	}
	m.stockUnits.WithLabelValues("in").Add(float64(delta))
}

// RecordStatusUpdate увеличивает счётчик обновлений статуса.
func (m *OrderMetrics) RecordStatusUpdate(status string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status).Inc()
}

// RecordFailure учитывает отклонённую операцию.
func (m *OrderMetrics) RecordFailure(operation, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, reason).Inc()
}

// ObserveOperation отмечает начало операции и возвращает функцию,
// которая фиксирует её длительность.
func (m *OrderMetrics) ObserveOperation(operation string) func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	started := time.Now()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
