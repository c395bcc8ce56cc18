package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	conversions  *prometheus.CounterVec
	reservations *prometheus.CounterVec
	collisions   *prometheus.CounterVec
	outbox       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "conversions_total",
			Help:      "Cart and booking conversions by record kind and result.",
		}, []string{"kind", "result"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "stock_reservations_total",
			Help:      "Stock reservation attempts by result.",
		}, []string{"result"}),
		collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "reference_collisions_total",
			Help:      "Reference codes regenerated after a uniqueness collision.",
		}, []string{"kind"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "outbox_publish_total",
			Help:      "Outbox publish attempts by topic and result.",
		}, []string{"topic", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of conversion transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.conversions, m.reservations, m.collisions, m.outbox, m.duration)
	}
	return m
}

func (m *Metrics) Conversion(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(kind, result).Inc()
	m.duration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) Reservation(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) ReferenceCollision(kind string) {
	if m == nil {
		return
	}
	m.collisions.WithLabelValues(kind).Inc()
}

func (m *Metrics) OutboxPublish(topic, result string) {
	if m == nil {
		return
	}
	m.outbox.WithLabelValues(topic, result).Inc()
}
