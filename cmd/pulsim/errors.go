package main

import (
	"errors"

	"github.com/srg/pulsim/internal/radio"
)

// formatUserError turns engine errors into actionable messages for the
// terminal. Anything unrecognized passes through unchanged.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, radio.ErrRadioOff):
		return "Bluetooth radio is off or unavailable. Turn Bluetooth on and try again."
	case errors.Is(err, radio.ErrPermissionDenied):
		return "Missing Bluetooth permissions. On Linux, grant CAP_NET_ADMIN or run as root."
	case errors.Is(err, radio.ErrServerOpenFailed):
		return "Could not attach the Heart Rate Service to the Bluetooth stack: " + err.Error()
	case errors.Is(err, radio.ErrAdvertisingFailed):
		return "Advertising failed: " + err.Error()
	default:
		return err.Error()
	}
}
