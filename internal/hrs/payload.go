package hrs

// measurementFlags is byte 0 of every Heart Rate Measurement value:
// UINT8 BPM format, no sensor-contact, energy-expended, or RR fields.
const measurementFlags = 0x00

// cccdNotifyValue is the Client Characteristic Configuration bit pattern
// that enables notifications (little-endian 0x0001).
const cccdNotifyValue = 0x0001

// ClampBPM clamps a raw sample to the UINT8 range of the measurement format.
func ClampBPM(bpm int) byte {
	if bpm < 0 {
		return 0
	}
	if bpm > 255 {
		return 255
	}
	return byte(bpm)
}

// EncodeMeasurement builds the 2-byte Heart Rate Measurement value.
func EncodeMeasurement(bpm int) []byte {
	return []byte{measurementFlags, ClampBPM(bpm)}
}

// NotificationsEnabled decodes a CCCD write value. Only the exact
// notifications-on pattern enables delivery; any other pattern, including
// bit combinations the service does not support, counts as disable.
func NotificationsEnabled(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	v := uint16(value[0])
	if len(value) > 1 {
		v |= uint16(value[1]) << 8
	}
	return v == cccdNotifyValue
}
