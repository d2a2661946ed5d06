package goble

import (
	"fmt"
	"strings"

	"github.com/srg/pulsim/internal/radio"
)

// NormalizeError maps known go-ble error strings to structured radio error
// kinds. It ensures consistent handling even if the upstream library changes
// messages slightly. Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", radio.ErrRadioOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", radio.ErrRadioOff, err)
	case containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", radio.ErrRadioOff, err)
	case containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", radio.ErrRadioOff, err)
	case containsIgnoreCase(msg, "network is down"):
		return fmt.Errorf("%w: %v", radio.ErrRadioOff, err)
	case containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", radio.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "permission denied"):
		return fmt.Errorf("%w: %v", radio.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "can't advertise"):
		return fmt.Errorf("%w: %v", radio.ErrAdvertisingFailed, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
