// Package advertise keeps the peripheral discoverable despite transient
// radio failures, with a bounded exponential-backoff retry policy.
package advertise

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/radio"
)

// State of the advertising lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAdvertising
	StateBackingOff
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAdvertising:
		return "advertising"
	case StateBackingOff:
		return "backing_off"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	initialBackoff = 500 * time.Millisecond
	maxAttempts    = 5
)

// PermissionGate is re-checked before every retry; a lost permission aborts
// the session instead of retrying.
type PermissionGate interface {
	HasPermissions() bool
}

// FailureCallback surfaces advertising failures. terminal true means the
// controller has given up for this session and will not retry on its own.
type FailureCallback func(err error, terminal bool)

// Controller owns the advertise/stop-advertise cycle and its retry policy.
// Advertising continues regardless of subscriber count so the peripheral
// stays discoverable.
type Controller struct {
	adv       radio.Advertiser
	gate      PermissionGate
	opts      radio.AdvertisingOptions
	onFailure FailureCallback
	logger    *logrus.Logger

	mu       sync.Mutex
	state    State
	attempts int
	timer    *time.Timer
	stopped  bool

	// afterFunc schedules a retry; replaced in tests to avoid real timers.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

// NewController creates an idle controller. onFailure may be nil.
func NewController(adv radio.Advertiser, gate PermissionGate, opts radio.AdvertisingOptions, onFailure FailureCallback, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	if onFailure == nil {
		onFailure = func(error, bool) {}
	}
	return &Controller{
		adv:       adv,
		gate:      gate,
		opts:      opts,
		onFailure: onFailure,
		logger:    logger,
		afterFunc: time.AfterFunc,
	}
}

// Start begins advertising. A synchronous start failure enters the same
// backoff path as an asynchronous one.
func (c *Controller) Start() {
	c.mu.Lock()
	c.stopped = false
	notify := c.startLocked()
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Stop cancels any pending retry and stops the broadcast. Further failure
// callbacks from the radio are ignored. Best-effort; safe to call when the
// radio is already gone.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = StateIdle
	c.mu.Unlock()

	if err := c.adv.Stop(); err != nil {
		c.logger.WithError(err).Debug("Failed to stop advertising")
		return err
	}
	return nil
}

// Restart fully resets the state machine to Idle with a zero attempt counter
// and starts advertising again. This is a fresh session, not a backoff
// continuation; only the radio state reactor and explicit session starts may
// use it.
func (c *Controller) Restart() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = StateIdle
	c.attempts = 0
	c.stopped = false
	notify := c.startLocked()
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the consecutive-failure counter.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// startLocked runs one start attempt. Callers hold c.mu; the returned
// callback, if any, must be invoked after releasing it.
func (c *Controller) startLocked() func() {
	c.state = StateStarting
	if err := c.adv.Start(c.opts, c.handleAsyncFailure); err != nil {
		return c.failLocked(err)
	}
	c.state = StateAdvertising
	c.attempts = 0
	c.logger.WithField("name", c.opts.LocalName).Info("Advertising started")
	return nil
}

// handleAsyncFailure is invoked by the radio stack when an established
// broadcast fails after Start returned.
func (c *Controller) handleAsyncFailure(err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	notify := c.failLocked(err)
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// failLocked applies the backoff policy to one failure. Callers hold c.mu.
func (c *Controller) failLocked(err error) func() {
	if c.attempts >= maxAttempts {
		c.state = StateFailed
		c.logger.WithError(err).WithField("attempts", c.attempts).
			Error("Advertising failed permanently")
		terminal := fmt.Errorf("%w: giving up after %d attempts: %v", radio.ErrAdvertisingFailed, c.attempts+1, err)
		return func() { c.onFailure(terminal, true) }
	}

	delay := initialBackoff << c.attempts
	c.attempts++
	c.state = StateBackingOff
	c.logger.WithError(err).WithFields(logrus.Fields{
		"attempt": c.attempts,
		"delay":   delay,
	}).Warn("Advertising failed, retrying")

	c.timer = c.afterFunc(delay, c.retry)
	transient := fmt.Errorf("%w: %v", radio.ErrAdvertisingFailed, err)
	return func() { c.onFailure(transient, false) }
}

// retry fires when the backoff delay elapses. The session may have stopped
// or lost permissions while waiting; both are checked before re-invoking
// Start.
func (c *Controller) retry() {
	c.mu.Lock()
	if c.stopped || c.state != StateBackingOff {
		c.mu.Unlock()
		return
	}

	if !c.gate.HasPermissions() {
		c.state = StateFailed
		c.mu.Unlock()
		c.logger.Error("Radio permissions lost, aborting advertising")
		c.onFailure(fmt.Errorf("%w: lost while backing off", radio.ErrPermissionDenied), true)
		return
	}

	notify := c.startLocked()
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}
