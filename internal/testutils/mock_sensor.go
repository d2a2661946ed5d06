package testutils

import (
	"sync"
	"time"

	"github.com/srg/pulsim/internal/sensor"
)

// MockSensorSource is a scriptable sensor.Source. Tests capture the
// subscription callback and push samples through Emit.
type MockSensorSource struct {
	mu             sync.Mutex
	capabilities   []sensor.Metric
	capErr         error
	subscribeErr   error
	subscribeCount int
	unsubCount     int
	cb             sensor.Callback
}

func NewMockSensorSource() *MockSensorSource {
	return &MockSensorSource{
		capabilities: []sensor.Metric{sensor.MetricHeartRate},
	}
}

func (m *MockSensorSource) Capabilities() ([]sensor.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capabilities, m.capErr
}

func (m *MockSensorSource) Subscribe(metric sensor.Metric, cb sensor.Callback) (sensor.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCount++
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	m.cb = cb
	return &mockSubscription{source: m}, nil
}

// Emit pushes one sample through the active subscription callback, as the
// sampling goroutine of a real source would.
func (m *MockSensorSource) Emit(bpm int) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(sensor.Sample{
			Metric:    sensor.MetricHeartRate,
			Value:     bpm,
			Timestamp: time.Now(),
		})
	}
}

func (m *MockSensorSource) SetCapabilities(metrics []sensor.Metric, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilities = metrics
	m.capErr = err
}

func (m *MockSensorSource) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

func (m *MockSensorSource) SubscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeCount
}

func (m *MockSensorSource) UnsubscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubCount
}

// Subscribed reports whether a subscription callback is currently attached.
func (m *MockSensorSource) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cb != nil
}

type mockSubscription struct {
	source *MockSensorSource
	once   sync.Once
}

func (s *mockSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.source.mu.Lock()
		s.source.cb = nil
		s.source.unsubCount++
		s.source.mu.Unlock()
	})
	return nil
}
