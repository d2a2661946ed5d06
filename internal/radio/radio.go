package radio

import "context"

// State represents the local radio power state.
type State int

const (
	StateOff State = iota
	StateOn
)

func (s State) String() string {
	if s == StateOn {
		return "on"
	}
	return "off"
}

// Central is an opaque identity of a remote central (address or platform
// handle). Implementations must be comparable by Addr.
type Central interface {
	Addr() string
}

// Status is the ATT-level result of a protocol request. Values mirror the
// Attribute Protocol error codes [Vol 3, Part F, 3.4.1.1] so adapters can
// pass them straight to the stack.
type Status byte

const (
	StatusSuccess       Status = 0x00
	StatusNotSupported  Status = 0x06 // request not supported
	StatusInvalidOffset Status = 0x07 // offset past the end of the attribute
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotSupported:
		return "request not supported"
	case StatusInvalidOffset:
		return "invalid offset"
	default:
		return "unknown"
	}
}

// Property is a bitmask of characteristic properties exposed in the
// attribute table.
type Property uint8

const (
	PropertyRead Property = 1 << iota
	PropertyNotify
)

// DescriptorDefinition declares one descriptor in the attribute table.
type DescriptorDefinition struct {
	UUID     string
	Readable bool
	Writable bool
}

// CharacteristicDefinition declares one characteristic in the attribute table.
type CharacteristicDefinition struct {
	UUID        string
	Properties  Property
	Descriptors []DescriptorDefinition
}

// ServiceDefinition is the declarative attribute table handed to the GATT
// role. The engine rebuilds it wholesale on every server (re)start.
type ServiceDefinition struct {
	UUID            string
	Characteristics []CharacteristicDefinition
}

// ServerHandler receives protocol callbacks from the radio stack. Calls may
// arrive on arbitrary goroutines; implementations must be safe for
// concurrent use.
type ServerHandler interface {
	// HandleConnection reports a central's link coming up or going down.
	HandleConnection(central Central, connected bool)

	// HandleDescriptorWrite processes a descriptor write request and returns
	// the ATT status to answer with. The adapter sends a response only when
	// the request demands one.
	HandleDescriptorWrite(central Central, charUUID, descUUID string, value []byte, offset int) Status

	// HandleCharacteristicRead processes a characteristic read request at the
	// given offset and returns the value slice plus the ATT status.
	HandleCharacteristicRead(central Central, charUUID string, offset int) ([]byte, Status)
}

// ServerConn is an open GATT peripheral role with the service table attached.
type ServerConn interface {
	// Notify emits an unconfirmed notification to one subscribed central.
	// Delivery is best-effort per BLE semantics.
	Notify(centralAddr, charUUID string, value []byte) error

	// Close detaches the service table. Idempotent.
	Close() error
}

// GATTServer attaches a service table to the radio's peripheral role.
type GATTServer interface {
	Open(def *ServiceDefinition, handler ServerHandler) (ServerConn, error)
}

// AdvertisingOptions configures the advertising payload: primary data carries
// the local name and the service UUIDs, the scan response carries nothing
// extra.
type AdvertisingOptions struct {
	LocalName    string
	ServiceUUIDs []string
}

// Advertiser owns the start/stop of the advertising broadcast. Start returns
// once advertising is up; an asynchronous failure after that is delivered via
// onFailure exactly once per Start.
type Advertiser interface {
	Start(opts AdvertisingOptions, onFailure func(error)) error
	Stop() error
}

// Radio is the capability/permission gate plus the peripheral-role surfaces
// of the local radio stack.
type Radio interface {
	Enabled() bool
	HasPermissions() bool

	GATT() GATTServer
	Advertiser() Advertiser

	// States delivers radio power transitions until ctx is canceled.
	States(ctx context.Context) <-chan State
}
