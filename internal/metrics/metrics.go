package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"library-presence-backend/internal/presence"
)

// Recorder is the set of observations the service reports.
type Recorder interface {
	EventAppended(status presence.Status, source string)
	WriteFailed(source string)
	RefreshCompleted(duration time.Duration, occupancy int, err error)
	GeofenceSample(inside bool, distanceMeters float64)
	GeofenceTransition(to presence.Status)
	RequestServed(route string, status int, duration time.Duration)
}

// Metrics implements Recorder with Prometheus collectors.
type Metrics struct {
	eventsAppended      *prometheus.CounterVec
	writeFailures       *prometheus.CounterVec
	refreshDuration     prometheus.Histogram
	refreshFailures     prometheus.Counter
	occupancy           prometheus.Gauge
	geofenceSamples     *prometheus.CounterVec
	geofenceDistance    prometheus.Gauge
	geofenceTransitions *prometheus.CounterVec
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_events_appended_total",
			Help: "Status events written to the store",
		}, []string{"status", "source"}),

		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_write_failures_total",
			Help: "Failed attempts to write a status event",
		}, []string{"source"}),

		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "presence_refresh_duration_seconds",
			Help:    "Duration of occupancy and leaderboard recomputation",
			Buckets: prometheus.DefBuckets,
		}),

		refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presence_refresh_failures_total",
			Help: "Refresh cycles that could not read the event log",
		}),

		occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_occupancy_current",
			Help: "Users currently checked in",
		}),

		geofenceSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_geofence_samples_total",
			Help: "Location samples evaluated against the geofence",
		}, []string{"inside"}),

		geofenceDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_geofence_distance_meters",
			Help: "Distance of the last sample to the reference point",
		}),

		geofenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_geofence_transitions_total",
			Help: "Automatic check-ins and check-outs",
		}, []string{"status"}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presence_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.eventsAppended,
		m.writeFailures,
		m.refreshDuration,
		m.refreshFailures,
		m.occupancy,
		m.geofenceSamples,
		m.geofenceDistance,
		m.geofenceTransitions,
		m.requestsTotal,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) EventAppended(status presence.Status, source string) {
	m.eventsAppended.WithLabelValues(string(status), source).Inc()
}

func (m *Metrics) WriteFailed(source string) {
	m.writeFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RefreshCompleted(duration time.Duration, occupancy int, err error) {
	m.refreshDuration.Observe(duration.Seconds())
	if err != nil {
		m.refreshFailures.Inc()
		return
	}
	m.occupancy.Set(float64(occupancy))
}

func (m *Metrics) GeofenceSample(inside bool, distanceMeters float64) {
	m.geofenceSamples.WithLabelValues(strconv.FormatBool(inside)).Inc()
	m.geofenceDistance.Set(distanceMeters)
}

func (m *Metrics) GeofenceTransition(to presence.Status) {
	m.geofenceTransitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) RequestServed(route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, statusBucket(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) EventAppended(presence.Status, string)      {}
func (Nop) WriteFailed(string)                         {}
func (Nop) RefreshCompleted(time.Duration, int, error) {}
func (Nop) GeofenceSample(bool, float64)               {}
func (Nop) GeofenceTransition(presence.Status)         {}
func (Nop) RequestServed(string, int, time.Duration)   {}
