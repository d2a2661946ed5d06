package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/groutine"
	"github.com/srg/pulsim/internal/radio"
)

// DeviceFactory creates the underlying ble.Device.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = newDevice

// DefaultStatePollInterval is how often the power-state observer re-probes
// the adapter; go-ble exposes no native on/off callback.
const DefaultStatePollInterval = 3 * time.Second

// Radio implements radio.Radio over a lazily opened go-ble device.
type Radio struct {
	logger       *logrus.Logger
	PollInterval time.Duration

	mu      sync.Mutex
	dev     ble.Device
	lastErr error
}

// NewRadio creates the production radio adapter.
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		logger:       logger,
		PollInterval: DefaultStatePollInterval,
	}
}

// device returns the open ble.Device, dialing the stack on first use or
// after the handle was invalidated by a radio loss.
func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		r.lastErr = NormalizeError(err)
		return nil, r.lastErr
	}
	r.dev = dev
	r.lastErr = nil
	return dev, nil
}

// invalidateOnRadioLoss drops the cached device handle when an operation
// failed because the radio went away, so the next probe re-dials the stack.
func (r *Radio) invalidateOnRadioLoss(err error) {
	if !errors.Is(err, radio.ErrRadioOff) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev != nil {
		_ = r.dev.Stop()
		r.dev = nil
	}
	r.lastErr = err
}

// Enabled reports whether the radio stack can be opened.
func (r *Radio) Enabled() bool {
	_, err := r.device()
	return err == nil
}

// HasPermissions reports whether the process may use the radio. A radio that
// is merely off still counts as permitted.
func (r *Radio) HasPermissions() bool {
	_, err := r.device()
	return !radio.IsKind(err, radio.PermissionDenied)
}

// GATT implements radio.Radio.
func (r *Radio) GATT() radio.GATTServer {
	return &gattServer{radio: r}
}

// Advertiser implements radio.Radio.
func (r *Radio) Advertiser() radio.Advertiser {
	return &advertiser{radio: r, logger: r.logger}
}

// States polls the adapter and delivers power transitions until ctx is
// canceled. The channel closes on cancellation.
func (r *Radio) States(ctx context.Context) <-chan radio.State {
	ch := make(chan radio.State, 1)

	groutine.Go(ctx, "radio-state-poller", func(ctx context.Context) {
		defer close(ch)

		ticker := time.NewTicker(r.PollInterval)
		defer ticker.Stop()

		last := r.currentState()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := r.currentState()
				if state == last {
					continue
				}
				last = state
				select {
				case ch <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return ch
}

func (r *Radio) currentState() radio.State {
	if r.Enabled() {
		return radio.StateOn
	}
	return radio.StateOff
}
