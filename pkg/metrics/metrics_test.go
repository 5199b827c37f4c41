package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("clinic", "scheduler", reg)

	m.BookingsTotal.WithLabelValues(ResultConfirmed).Inc()
	m.MalformedRecords.Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BookingsTotal.WithLabelValues(ResultConfirmed)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MalformedRecords))

	// A second set on a fresh registry must not collide.
	assert.NotPanics(t, func() { NewMetrics("clinic", "scheduler", prometheus.NewRegistry()) })
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("x")))
}
