// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics holds the collectors updated by the forwarding and
// re-resolution paths. Construct with New and register once per process.
type BridgeMetrics struct {
	MessagesForwarded *prometheus.CounterVec
	ForwardErrors     *prometheus.CounterVec
	QosRecreations    *prometheus.CounterVec
	HealthEvents      *prometheus.CounterVec
	ActiveBridges     prometheus.Gauge
}

// New creates the bridge collectors under the "domainbridge" namespace.
func New() *BridgeMetrics {
	return &BridgeMetrics{
		MessagesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainbridge",
			Name:      "messages_forwarded_total",
			Help:      "Messages relayed from the source to the destination domain.",
		}, []string{"topic"}),
		ForwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainbridge",
			Name:      "forward_errors_total",
			Help:      "Forward attempts that failed to publish.",
		}, []string{"topic"}),
		QosRecreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainbridge",
			Name:      "qos_recreations_total",
			Help:      "Publisher recreations triggered by QoS re-resolution.",
		}, []string{"topic"}),
		HealthEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainbridge",
			Name:      "health_events_total",
			Help:      "Asynchronous bridge health events by kind.",
		}, []string{"kind"}),
		ActiveBridges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "domainbridge",
			Name:      "active_bridges",
			Help:      "Currently registered topic bridges.",
		}),
	}
}

// Register attaches the collectors to the given registerer. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func (m *BridgeMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.MessagesForwarded,
		m.ForwardErrors,
		m.QosRecreations,
		m.HealthEvents,
		m.ActiveBridges,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
