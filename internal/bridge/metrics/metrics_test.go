package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCount(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.MessagesForwarded.WithLabelValues("chatter").Add(3)
	m.ForwardErrors.WithLabelValues("chatter").Inc()
	m.QosRecreations.WithLabelValues("chatter").Inc()
	m.HealthEvents.WithLabelValues("qos_updated").Inc()
	m.ActiveBridges.Inc()
	m.ActiveBridges.Inc()
	m.ActiveBridges.Dec()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesForwarded.WithLabelValues("chatter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForwardErrors.WithLabelValues("chatter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QosRecreations.WithLabelValues("chatter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthEvents.WithLabelValues("qos_updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveBridges))
}

func TestRegisterTwiceFails(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
