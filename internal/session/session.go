// Package session wires the GATT server, advertising controller, sensor
// bridge, and radio state reactor into one startable/stoppable peripheral
// session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/advertise"
	"github.com/srg/pulsim/internal/groutine"
	"github.com/srg/pulsim/internal/hrs"
	"github.com/srg/pulsim/internal/radio"
	"github.com/srg/pulsim/internal/ringchan"
	"github.com/srg/pulsim/internal/sensor"
)

// Options configures one peripheral session.
type Options struct {
	// LocalName is the advertised device name.
	LocalName string `yaml:"local_name" default:"Pulsim HR"`

	// AutoStop stops the session after this duration regardless of activity.
	// Zero disables the timer.
	AutoStop time.Duration `yaml:"auto_stop"`

	// EventBuffer is the capacity of the status event channel.
	EventBuffer int `yaml:"event_buffer" default:"32"`
}

// Session is a single-use peripheral session: construct, Start, Stop.
// A new serve run constructs a fresh Session, which guarantees restarts
// begin from a clean idle state with no carried-over subscribers or backoff
// counters.
type Session struct {
	radio  radio.Radio
	logger *logrus.Logger
	opts   Options

	registry *hrs.Registry
	server   *hrs.Server
	bridge   *sensor.Bridge
	adv      *advertise.Controller
	events   *ringchan.RingChannel[Event]

	mu            sync.Mutex
	evMu          sync.Mutex
	evClosed      bool
	started       bool
	stopped       bool
	cancelWatcher context.CancelFunc
	autoStopTimer *time.Timer
	stopOnce      sync.Once
}

// New creates a session over the given radio and sensor source.
func New(r radio.Radio, source sensor.Source, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	defaults.SetDefaults(&opts)

	s := &Session{
		radio:    r,
		logger:   logger,
		opts:     opts,
		registry: hrs.NewRegistry(),
		events:   ringchan.New[Event](opts.EventBuffer),
	}
	s.server = hrs.NewServer(r.GATT(), s.registry, s, logger)
	s.bridge = sensor.NewBridge(source, s.server, s.publishBPM, logger)
	s.adv = advertise.NewController(
		r.Advertiser(),
		r,
		radio.AdvertisingOptions{
			LocalName:    opts.LocalName,
			ServiceUUIDs: []string{hrs.ServiceUUID},
		},
		s.publishAdvertisingFailure,
		logger,
	)
	return s
}

// Events returns the status event stream. The channel closes after the
// Stopped event.
func (s *Session) Events() <-chan Event {
	return s.events.C()
}

// Start verifies the radio capability, attaches the GATT server, begins
// advertising, arms the optional auto-stop timer, and spawns the radio state
// watcher. The bridge stays inactive until a first subscriber arrives.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("session cannot be restarted after stop")
	}
	if s.started {
		return fmt.Errorf("session already started")
	}

	if !s.radio.Enabled() {
		return fmt.Errorf("%w: radio is disabled", radio.ErrRadioOff)
	}
	if !s.radio.HasPermissions() {
		return fmt.Errorf("%w: missing radio permissions", radio.ErrPermissionDenied)
	}

	if err := s.server.Start(); err != nil {
		return err
	}
	s.adv.Start()

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancelWatcher = cancel
	groutine.Go(watchCtx, "radio-state-watcher", s.watchRadioStates)

	if s.opts.AutoStop > 0 {
		s.autoStopTimer = time.AfterFunc(s.opts.AutoStop, func() {
			s.logger.WithField("after", s.opts.AutoStop).Info("Auto-stop timeout elapsed")
			s.stop(ReasonAutoStop)
		})
	}

	s.started = true
	s.logger.WithFields(logrus.Fields{
		"name":      s.opts.LocalName,
		"auto_stop": s.opts.AutoStop,
	}).Info("Peripheral session started")
	return nil
}

// Stop tears the session down now. Safe to call multiple times and
// concurrently with the auto-stop timer; only the first caller acts.
func (s *Session) Stop() {
	s.stop(ReasonRequested)
}

// stop performs the ordered best-effort teardown: bridge, advertising, GATT
// server. Every step may fail independently; failures are logged and never
// skip the remaining steps.
func (s *Session) stop(reason StopReason) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		if s.cancelWatcher != nil {
			s.cancelWatcher()
		}
		if s.autoStopTimer != nil {
			s.autoStopTimer.Stop()
		}
		s.mu.Unlock()

		s.bridge.Deactivate()
		if err := s.adv.Stop(); err != nil {
			s.logger.WithError(err).Warn("Failed to stop advertising during teardown")
		}
		if err := s.server.Stop(); err != nil {
			s.logger.WithError(err).Warn("Failed to close GATT server during teardown")
		}

		s.publish(Stopped{Reason: reason})
		s.closeEvents()
		s.logger.WithField("reason", reason).Info("Peripheral session stopped")
	})
}

// watchRadioStates is the radio state reactor. Radio off tears the running
// pieces down (subscribers are implicitly gone with the radio); radio on
// rebuilds the GATT server and restarts advertising from a clean idle state.
func (s *Session) watchRadioStates(ctx context.Context) {
	for state := range s.radio.States(ctx) {
		switch state {
		case radio.StateOff:
			s.logger.Info("Radio turned off, suspending peripheral")
			if err := s.adv.Stop(); err != nil {
				s.logger.WithError(err).Debug("Stop advertising after radio loss")
			}
			if err := s.server.Stop(); err != nil {
				s.logger.WithError(err).Debug("Close GATT server after radio loss")
			}
			s.bridge.Deactivate()
			if s.registry.Clear() {
				s.publish(SubscriberCountChanged{Count: 0})
			}

		case radio.StateOn:
			s.logger.Info("Radio turned on, restarting peripheral")
			if err := s.server.Stop(); err != nil {
				s.logger.WithError(err).Debug("Close GATT server before restart")
			}
			if err := s.server.Start(); err != nil {
				s.logger.WithError(err).Error("Failed to restart GATT server")
				continue
			}
			s.adv.Restart()
		}
	}
}

// FirstSubscriber implements hrs.SubscriberListener.
func (s *Session) FirstSubscriber() {
	s.bridge.Activate()
}

// LastSubscriberGone implements hrs.SubscriberListener.
func (s *Session) LastSubscriberGone() {
	s.bridge.Deactivate()
}

// CountChanged implements hrs.SubscriberListener.
func (s *Session) CountChanged(n int) {
	s.publish(SubscriberCountChanged{Count: n})
}

func (s *Session) publishBPM(bpm int) {
	s.publish(BPMChanged{BPM: bpm})
}

// publishAdvertisingFailure reports advertising trouble to the host. A
// terminal failure also ends the session: the controller has given up (or
// permissions are gone), and a peripheral that cannot advertise has no reason
// to keep its GATT server attached. The controller invokes this callback
// without holding its own lock, so the ordered teardown runs inline.
func (s *Session) publishAdvertisingFailure(err error, terminal bool) {
	s.publish(AdvertisingFailed{Err: err, Terminal: terminal})
	if terminal {
		s.logger.WithError(err).Error("Advertising failed permanently, stopping session")
		s.stop(ReasonAdvertisingFailed)
	}
}

// publish drops events once the stream is closed; late callbacks racing the
// teardown are benign.
func (s *Session) publish(e Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	s.events.Send(e)
}

func (s *Session) closeEvents() {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	s.evClosed = true
	s.events.Close()
}
