package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCustomMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitCustomMetrics(reg)

	// A second registration is logged, not fatal.
	InitCustomMetrics(reg)

	UpsertsTotal.WithLabelValues("Lead", "created").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sfapi_upserts_total")
	assert.Contains(t, names, "sfapi_web_forms_registered_total")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(LogoutsTotal.WithLabelValues("forced"))
	LogoutsTotal.WithLabelValues("forced").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(LogoutsTotal.WithLabelValues("forced")), 0)

	InitCustomMetrics(nil)
}
