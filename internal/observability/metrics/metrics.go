package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for the WhatsApp booking pipeline.
type WebhookMetrics struct {
	inboundTotal      *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	appointmentsTotal *prometheus.CounterVec
	degradedTotal     *prometheus.CounterVec
	webhookLatency    *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescall",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound WhatsApp webhooks by message type and outcome",
		}, []string{"type", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescall",
			Subsystem: "webhook",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp replies by status",
		}, []string{"status"}),
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescall",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Automatic booking attempts by result",
		}, []string{"result"}),
		degradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescall",
			Subsystem: "webhook",
			Name:      "degraded_total",
			Help:      "Best-effort collaborator failures that fell back to a default",
		}, []string{"component"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rescall",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.appointmentsTotal, m.degradedTotal, m.webhookLatency)
	return m
}

func (m *WebhookMetrics) ObserveInbound(msgType, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(msgType, outcome).Inc()
}

func (m *WebhookMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

// ObserveBooking records a booking attempt: booked, slot_taken,
// unknown_service, outside_hours, invalid_slot.
func (m *WebhookMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(result).Inc()
}

func (m *WebhookMetrics) ObserveDegraded(component string) {
	if m == nil {
		return
	}
	m.degradedTotal.WithLabelValues(component).Inc()
}

func (m *WebhookMetrics) ObserveWebhookLatency(msgType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(msgType).Observe(seconds)
}
