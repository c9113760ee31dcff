package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"library-presence-backend/internal/presence"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EventAppended(presence.StatusIn, "manual")
	m.EventAppended(presence.StatusIn, "manual")
	m.EventAppended(presence.StatusOut, "geofence")
	m.WriteFailed("manual")
	m.GeofenceSample(true, 12)
	m.GeofenceTransition(presence.StatusIn)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsAppended.WithLabelValues("in", "manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsAppended.WithLabelValues("out", "geofence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeFailures.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.geofenceSamples.WithLabelValues("true")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.geofenceDistance))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.geofenceTransitions.WithLabelValues("in")))
}

func TestMetrics_RefreshKeepsLastOccupancyOnError(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RefreshCompleted(time.Millisecond, 4, nil)
	m.RefreshCompleted(time.Millisecond, 0, errors.New("store down"))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.occupancy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshFailures))
}

func TestStatusBucket(t *testing.T) {
	assert.Equal(t, "2xx", statusBucket(201))
	assert.Equal(t, "4xx", statusBucket(429))
	assert.Equal(t, "5xx", statusBucket(503))
}
