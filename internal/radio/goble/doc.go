// Package goble adapts the go-ble radio stack to the radio capability
// interfaces consumed by the peripheral engine: the GATT peripheral role,
// the advertising broadcast, and the power-state observer.
//
// The go-ble gatt server owns CCCD storage internally and surfaces
// subscription changes through notify sessions; this adapter translates
// those sessions back into the equivalent CCCD descriptor writes so the
// engine sees one uniform protocol surface.
package goble
