package goble

// central is the opaque remote identity handed to the engine; go-ble conns
// are keyed by their remote address.
type central struct {
	addr string
}

func (c central) Addr() string {
	return c.addr
}
