package geofence

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied means the location source refused access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable means no usable position could be obtained.
	ErrPositionUnavailable = errors.New("position unavailable")
)

// Sample is one position report.
type Sample struct {
	Coordinate
	AccuracyMeters float64   `json:"accuracy"`
	Timestamp      time.Time `json:"timestamp"`
}

// Options tune a continuous subscription.
type Options struct {
	HighAccuracy bool
	MaxSampleAge time.Duration
	Timeout      time.Duration
}

// Subscription identifies an active subscription on a Provider.
type Subscription interface {
	ID() uint64
}

// Provider delivers positions to the tracker.
type Provider interface {
	// Probe obtains a single position, failing when access is not granted.
	Probe(ctx context.Context, opts Options) (Sample, error)
	// Subscribe starts delivering samples until Unsubscribe is called.
	Subscribe(onSample func(Sample), onError func(error), opts Options) (Subscription, error)
	// Unsubscribe stops a subscription. No callback runs after it returns.
	Unsubscribe(sub Subscription)
}

// Message maps a location error to the text shown to the user.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location permission denied. Enable location access to use auto check-in."
	case errors.Is(err, ErrPositionUnavailable):
		return "Location unavailable. Retrying on the next update."
	default:
		return "Location error. Retrying on the next update."
	}
}

type subscriptionID uint64

func (s subscriptionID) ID() uint64 { return uint64(s) }
