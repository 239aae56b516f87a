package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ActiveSessions  prometheus.Gauge
	QueuedRequests  prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	CallOutcomes    *prometheus.CounterVec
	RelayedMessages *prometheus.CounterVec
	RelayRejections *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// main; tests pass a fresh registry to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consult_active_sessions",
			Help: "Current number of in-progress call sessions",
		}),
		QueuedRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consult_queued_requests",
			Help: "Current number of call requests waiting for an offline staff member",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consult_call_requests_total",
			Help: "Total call requests received",
		}, []string{"kind"}),
		CallOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consult_call_outcomes_total",
			Help: "Terminal outcomes of call requests and sessions",
		}, []string{"outcome"}),
		RelayedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consult_relayed_messages_total",
			Help: "Signaling messages forwarded between call participants",
		}, []string{"type"}),
		RelayRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consult_relay_rejections_total",
			Help: "Signaling messages rejected before forwarding",
		}, []string{"reason"}),
	}
}
