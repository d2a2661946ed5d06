// Package sensor defines the external heart-rate data source boundary and
// the bridge that gates it on subscriber presence.
package sensor

import (
	"errors"
	"time"
)

// Metric identifies a measurement stream a source can deliver.
type Metric string

// MetricHeartRate is the only metric the peripheral engine consumes.
const MetricHeartRate Metric = "heart_rate"

// Sample is one asynchronous reading from a source.
type Sample struct {
	Metric    Metric
	Value     int
	Timestamp time.Time
}

// Callback delivers samples. Invoked on the source's own goroutine.
type Callback func(Sample)

// Subscription is an active registration with a source.
type Subscription interface {
	// Unsubscribe stops delivery. Best-effort; after it returns no further
	// callbacks should be expected, though an in-flight one may still land.
	Unsubscribe() error
}

// Source is the sensor subsystem consumed by the bridge.
type Source interface {
	// Capabilities lists the metrics this source can sample.
	Capabilities() ([]Metric, error)

	// Subscribe registers a callback for a metric and starts sampling.
	Subscribe(metric Metric, cb Callback) (Subscription, error)
}

// ErrUnsupported is returned by a source when a metric cannot be sampled.
var ErrUnsupported = errors.New("unsupported")
