package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordDelivery("ok")
	m.RecordDelivery("ok")
	m.RecordEvent("message", "appended")
	m.RecordDispatch("sent")
	m.RecordGeneration()
	m.ObserveGraphCall("send", "ok", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("message", "appended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations))

	n, err := testutil.GatherAndCount(reg, "sowerflow_graph_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
