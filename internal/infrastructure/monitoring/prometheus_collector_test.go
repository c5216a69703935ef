package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector_ConnectionGauge(t *testing.T) {
	collector := NewPrometheusCollector(prometheus.NewRegistry())

	collector.RecordConnect()
	collector.RecordConnect()
	collector.RecordDisconnect()

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.connectionsTotal))
}

func TestPrometheusCollector_Counters(t *testing.T) {
	collector := NewPrometheusCollector(prometheus.NewRegistry())

	collector.RecordMessage(0.002)
	collector.RecordSignalRelayed()
	collector.RecordPresenceBroadcast()
	collector.RecordFrameDropped("malformed")
	collector.RecordFrameDropped("malformed")
	collector.RecordFrameDropped("unknown_type")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.messagesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.signalsRelayed))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.presenceBroadcasts))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.framesDropped.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.framesDropped.WithLabelValues("unknown_type")))
}

func TestPrometheusCollector_FreshRegistriesDoNotCollide(t *testing.T) {
	// Two collectors on separate registries must not panic on duplicate
	// registration.
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}
