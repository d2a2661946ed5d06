// Package hrs implements the Bluetooth Heart Rate Service as a GATT
// peripheral: the attribute table (Heart Rate Measurement, Body Sensor
// Location, CCCD), the wire-level payload encoding, the subscriber registry,
// and the server answering protocol requests from remote centrals.
package hrs
