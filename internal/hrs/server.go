package hrs

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/radio"
)

// SubscriberListener receives registry transition callbacks from the server.
// FirstSubscriber fires on the empty to non-empty transition,
// LastSubscriberGone on the reverse; CountChanged fires on every change.
// Callbacks run on the protocol callback goroutine and must not block.
type SubscriberListener interface {
	FirstSubscriber()
	LastSubscriberGone()
	CountChanged(n int)
}

// Server exposes the Heart Rate Service attribute table and answers protocol
// requests. It owns the current measurement payload; the sensor bridge is the
// only writer, via Notify.
type Server struct {
	gatt     radio.GATTServer
	registry *Registry
	listener SubscriberListener
	logger   *logrus.Logger

	mu      sync.RWMutex
	conn    radio.ServerConn
	payload []byte
}

// NewServer creates a Heart Rate Service server. The listener may be nil.
func NewServer(gatt radio.GATTServer, registry *Registry, listener SubscriberListener, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		gatt:     gatt,
		registry: registry,
		listener: listener,
		logger:   logger,
		payload:  EncodeMeasurement(0),
	}
}

// serviceDefinition builds the attribute table. Rebuilt wholesale on every
// (re)start.
func serviceDefinition() *radio.ServiceDefinition {
	return &radio.ServiceDefinition{
		UUID: ServiceUUID,
		Characteristics: []radio.CharacteristicDefinition{
			{
				UUID:       MeasurementUUID,
				Properties: radio.PropertyRead | radio.PropertyNotify,
				Descriptors: []radio.DescriptorDefinition{
					{UUID: CCCDUUID, Readable: true, Writable: true},
				},
			},
			{
				UUID:       SensorLocationUUID,
				Properties: radio.PropertyRead,
			},
		},
	}
}

// Start (re)creates the service table and attaches it to the radio's GATT
// role. On failure no partial state is kept.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	conn, err := s.gatt.Open(serviceDefinition(), s)
	if err != nil {
		return fmt.Errorf("%w: %v", radio.ErrServerOpenFailed, err)
	}
	s.conn = conn
	s.logger.WithField("service", ServiceUUID).Info("GATT server started")
	return nil
}

// Stop detaches the service table. Idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close GATT server: %w", err)
	}
	s.logger.Debug("GATT server stopped")
	return nil
}

// Started reports whether the server is attached to the GATT role.
func (s *Server) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// CurrentPayload returns a copy of the last pushed measurement value.
func (s *Server) CurrentPayload() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.payload))
	copy(out, s.payload)
	return out
}

// Notify stores value as the current payload and emits an unconfirmed
// notification to every subscribed central. Delivery is best-effort; failures
// are logged and do not propagate.
func (s *Server) Notify(value []byte) {
	s.mu.Lock()
	s.payload = append(s.payload[:0], value...)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}

	for _, central := range s.registry.Snapshot() {
		if err := conn.Notify(central.Addr(), MeasurementUUID, value); err != nil {
			s.logger.WithError(err).WithField("central", central.Addr()).
				Debug("Notification delivery failed")
		}
	}
}

// HandleConnection implements radio.ServerHandler. A disconnect removes the
// central from the registry; CCCD state does not survive the link.
func (s *Server) HandleConnection(central radio.Central, connected bool) {
	if connected {
		s.logger.WithField("central", central.Addr()).Debug("Central connected")
		return
	}

	removed, last := s.registry.Remove(central.Addr())
	s.logger.WithFields(logrus.Fields{
		"central":    central.Addr(),
		"subscribed": removed,
	}).Debug("Central disconnected")
	if !removed {
		return
	}
	s.notifyCountChanged()
	if last && s.listener != nil {
		s.listener.LastSubscriberGone()
	}
}

// HandleDescriptorWrite implements radio.ServerHandler. Only the CCCD is
// writable; the exact notifications-on pattern subscribes the central,
// anything else unsubscribes it.
func (s *Server) HandleDescriptorWrite(central radio.Central, charUUID, descUUID string, value []byte, offset int) radio.Status {
	if offset != 0 {
		return radio.StatusInvalidOffset
	}
	if NormalizeUUID(descUUID) != CCCDUUID || NormalizeUUID(charUUID) != MeasurementUUID {
		return radio.StatusNotSupported
	}

	if NotificationsEnabled(value) {
		added, first := s.registry.Add(central)
		s.logger.WithField("central", central.Addr()).Debug("Notifications enabled")
		if added {
			s.notifyCountChanged()
			if first && s.listener != nil {
				s.listener.FirstSubscriber()
			}
		}
	} else {
		removed, last := s.registry.Remove(central.Addr())
		s.logger.WithField("central", central.Addr()).Debug("Notifications disabled")
		if removed {
			s.notifyCountChanged()
			if last && s.listener != nil {
				s.listener.LastSubscriberGone()
			}
		}
	}
	return radio.StatusSuccess
}

// HandleCharacteristicRead implements radio.ServerHandler. Values are sliced
// at the requested offset per BLE fragmented-read semantics.
func (s *Server) HandleCharacteristicRead(central radio.Central, charUUID string, offset int) ([]byte, radio.Status) {
	switch NormalizeUUID(charUUID) {
	case MeasurementUUID:
		return sliceValue(s.CurrentPayload(), offset)
	case SensorLocationUUID:
		return sliceValue([]byte{BodySensorLocationWrist}, offset)
	default:
		return nil, radio.StatusNotSupported
	}
}

// sliceValue applies read-offset semantics: an offset equal to the value
// length is a valid empty read, past the end is an error.
func sliceValue(value []byte, offset int) ([]byte, radio.Status) {
	if offset < 0 || offset > len(value) {
		return nil, radio.StatusInvalidOffset
	}
	return value[offset:], radio.StatusSuccess
}

func (s *Server) notifyCountChanged() {
	if s.listener != nil {
		s.listener.CountChanged(s.registry.Len())
	}
}
