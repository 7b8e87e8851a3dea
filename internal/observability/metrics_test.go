package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RacesStarted.Inc()
	m.ItemsApplied.WithLabelValues("stop").Add(2)
	m.Settlements.WithLabelValues("win").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RacesStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsApplied.WithLabelValues("stop")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["derby_races_started_total"])
	assert.True(t, names["derby_items_applied_total"])
	assert.True(t, names["derby_settlements_total"])
}

func TestNewMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
