package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectionsActive  prometheus.Gauge
	connectionsTotal   prometheus.Counter
	messagesTotal      prometheus.Counter
	signalsRelayed     prometheus.Counter
	presenceBroadcasts prometheus.Counter
	framesDropped      *prometheus.CounterVec
	persistDuration    prometheus.Histogram
}

// NewPrometheusCollector registers chat metrics on the given registerer.
// Tests pass a fresh registry to avoid duplicate registration.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatnet_connections_active",
			Help: "Number of live websocket streams",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatnet_connections_total",
			Help: "Total number of websocket streams accepted",
		}),

		messagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatnet_messages_total",
			Help: "Total number of direct messages persisted",
		}),

		signalsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatnet_signals_relayed_total",
			Help: "Total number of call-signaling envelopes forwarded",
		}),

		presenceBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatnet_presence_broadcasts_total",
			Help: "Total number of presence snapshots broadcast",
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatnet_frames_dropped_total",
			Help: "Inbound frames dropped, by reason",
		}, []string{"reason"}),

		persistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatnet_message_persist_duration_seconds",
			Help:    "Duration of direct message persistence",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

func (p *PrometheusCollector) RecordConnect() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordDisconnect() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) RecordMessage(persistSeconds float64) {
	p.messagesTotal.Inc()
	p.persistDuration.Observe(persistSeconds)
}

func (p *PrometheusCollector) RecordSignalRelayed() {
	p.signalsRelayed.Inc()
}

func (p *PrometheusCollector) RecordPresenceBroadcast() {
	p.presenceBroadcasts.Inc()
}

func (p *PrometheusCollector) RecordFrameDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}
