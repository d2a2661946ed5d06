package sensor

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/hrs"
)

// Notifier receives encoded measurement payloads (the GATT server).
type Notifier interface {
	Notify(value []byte)
}

// Bridge gates the sensor stream on subscriber presence: it is subscribed to
// the source iff at least one central has notifications enabled. Activate and
// Deactivate are driven exclusively by registry transitions and are
// serialized internally, so a concurrent "becoming active" and "becoming
// inactive" cannot double-subscribe or miss an unsubscribe.
type Bridge struct {
	source   Source
	notifier Notifier
	onBPM    func(int)
	logger   *logrus.Logger

	mu          sync.Mutex
	active      bool
	sub         Subscription
	unsupported bool
}

// NewBridge creates an inactive bridge. onBPM is an optional display hook
// invoked with each clamped sample; it may be nil.
func NewBridge(source Source, notifier Notifier, onBPM func(int), logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{
		source:   source,
		notifier: notifier,
		onBPM:    onBPM,
		logger:   logger,
	}
}

// Activate subscribes to the heart-rate stream. No-op if already active or
// if the source was found not to support heart rate (reported once, never
// retried). A plain subscribe failure is logged and left retryable by the
// next subscriber transition.
func (b *Bridge) Activate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active || b.unsupported {
		return
	}

	metrics, err := b.source.Capabilities()
	if err != nil {
		b.logger.WithError(err).Warn("Failed to query sensor capabilities")
		return
	}
	if !supportsHeartRate(metrics) {
		b.unsupported = true
		b.logger.Error("Sensor source does not support heart rate sampling")
		return
	}

	sub, err := b.source.Subscribe(MetricHeartRate, b.handleSample)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			b.unsupported = true
			b.logger.WithError(err).Error("Sensor source rejected heart rate subscription")
			return
		}
		b.logger.WithError(err).Warn("Failed to subscribe to sensor source")
		return
	}

	b.sub = sub
	b.active = true
	b.logger.Info("Sensor bridge activated")
}

// Deactivate unsubscribes from the source. No-op if inactive. Unsubscribe
// failures are logged, not propagated: teardown must not block.
func (b *Bridge) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return
	}

	if err := b.sub.Unsubscribe(); err != nil {
		b.logger.WithError(err).Warn("Failed to unsubscribe from sensor source")
	}
	b.sub = nil
	b.active = false
	b.logger.Info("Sensor bridge deactivated")
}

// Active reports whether the bridge is subscribed to the source.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// handleSample converts one reading into the wire payload and forwards it.
// A sample racing past Deactivate is dropped.
func (b *Bridge) handleSample(s Sample) {
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if !active || s.Metric != MetricHeartRate {
		return
	}

	b.notifier.Notify(hrs.EncodeMeasurement(s.Value))
	if b.onBPM != nil {
		b.onBPM(int(hrs.ClampBPM(s.Value)))
	}
}

func supportsHeartRate(metrics []Metric) bool {
	for _, m := range metrics {
		if m == MetricHeartRate {
			return true
		}
	}
	return false
}
