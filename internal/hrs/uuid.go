package hrs

import "strings"

// Assigned numbers for the Heart Rate Service, normalized to the internal
// lowercase short form.
const (
	ServiceUUID        = "180d"
	MeasurementUUID    = "2a37"
	SensorLocationUUID = "2a38"
	CCCDUUID           = "2902"
)

// BodySensorLocationWrist is the constant Body Sensor Location value.
const BodySensorLocationWrist = 0x0d

// Bluetooth SIG base UUID suffix; a 128-bit UUID of the form
// 0000xxxx-0000-1000-8000-00805f9b34fb collapses to the 16-bit form xxxx.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format: lowercase,
// no dashes or braces, 0x prefix stripped, and SIG base UUIDs reduced to
// their 16-bit short form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.Trim(u, "{}")
	u = strings.ReplaceAll(u, "-", "")
	u = strings.TrimPrefix(u, "0x")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}
