package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveFlushCountsByStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFlush(0.01, nil)
	m.ObserveFlush(0.02, nil)
	m.ObserveFlush(0, errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlushesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushesTotal.WithLabelValues("error")))
}

func TestIndexShapeGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetIndexShape(3, 12, 4096)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SegmentCount))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.BufferedDocs))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.BufferedBytes))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DocAdded()
		m.ObserveMerge(1, nil)
		m.ObserveSearch(0.1, "miss", "hit", 4)
		m.SetBreakerState("redis", 1)
	})
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
