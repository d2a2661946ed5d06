package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/groutine"
	"github.com/srg/pulsim/internal/radio"
)

// advertiser runs the advertising broadcast as a long-lived goroutine, since
// the stack's advertise call blocks until its context is canceled.
type advertiser struct {
	radio  *Radio
	logger *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start implements radio.Advertiser. Synchronous failures (radio unusable,
// bad options) are returned; a broadcast dying later is reported through
// onFailure at most once.
func (a *advertiser) Start(opts radio.AdvertisingOptions, onFailure func(error)) error {
	dev, err := a.radio.device()
	if err != nil {
		return err
	}

	uuids := make([]ble.UUID, 0, len(opts.ServiceUUIDs))
	for _, s := range opts.ServiceUUIDs {
		u, err := ble.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid advertised service UUID %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.mu.Unlock()

	groutine.Go(ctx, "advertising-loop", func(ctx context.Context) {
		a.logger.WithFields(logrus.Fields{
			"name":     opts.LocalName,
			"services": opts.ServiceUUIDs,
		}).Debug("Advertising started")

		err := dev.AdvertiseNameAndServices(ctx, opts.LocalName, uuids...)
		if ctx.Err() != nil {
			// Stopped on purpose; the stack reports the cancellation as an
			// error, which is not a failure.
			return
		}
		if err == nil {
			err = radio.ErrAdvertisingFailed
		}
		err = NormalizeError(err)
		a.radio.invalidateOnRadioLoss(err)
		a.logger.WithError(err).Warn("Advertising terminated")
		onFailure(err)
	})
	return nil
}

// Stop implements radio.Advertiser. Idempotent.
func (a *advertiser) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
