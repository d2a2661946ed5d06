package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/groutine"
	"github.com/srg/pulsim/internal/radio"
)

const cccdUUID = "2902"

// Synthesized CCCD values for notify-session open/close, little-endian per
// the Client Characteristic Configuration format.
var (
	cccdEnableNotify = []byte{0x01, 0x00}
	cccdDisable      = []byte{0x00, 0x00}
)

type gattServer struct {
	radio *Radio
}

// Open implements radio.GATTServer: it rebuilds the attribute table on the
// device wholesale and routes protocol requests to the handler.
func (g *gattServer) Open(def *radio.ServiceDefinition, handler radio.ServerHandler) (radio.ServerConn, error) {
	dev, err := g.radio.device()
	if err != nil {
		return nil, err
	}

	sc := &serverConn{
		radio:     g.radio,
		dev:       dev,
		handler:   handler,
		logger:    g.radio.logger,
		notifiers: make(map[string]ble.Notifier),
		watched:   make(map[string]struct{}),
	}

	svc, err := sc.buildService(def)
	if err != nil {
		return nil, err
	}
	if err := dev.SetServices([]*ble.Service{svc}); err != nil {
		return nil, NormalizeError(err)
	}
	return sc, nil
}

// serverConn is an attached GATT peripheral role. It tracks the live notify
// sessions per (characteristic, central) for Notify delivery and watches
// each central's link for disconnects.
type serverConn struct {
	radio   *Radio
	dev     ble.Device
	handler radio.ServerHandler
	logger  *logrus.Logger

	mu        sync.Mutex
	closed    bool
	notifiers map[string]ble.Notifier
	watched   map[string]struct{}
}

func (sc *serverConn) buildService(def *radio.ServiceDefinition) (*ble.Service, error) {
	svcUUID, err := ble.Parse(def.UUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", def.UUID, err)
	}

	svc := ble.NewService(svcUUID)
	for _, cdef := range def.Characteristics {
		charUUID, err := ble.Parse(cdef.UUID)
		if err != nil {
			return nil, fmt.Errorf("invalid characteristic UUID %q: %w", cdef.UUID, err)
		}
		char := svc.NewCharacteristic(charUUID)

		uuid := cdef.UUID
		if cdef.Properties&radio.PropertyRead != 0 {
			char.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				sc.serveRead(uuid, req, rsp)
			}))
		}
		if cdef.Properties&radio.PropertyNotify != 0 {
			char.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				sc.serveNotify(uuid, req, n)
			}))
		}

		for _, ddef := range cdef.Descriptors {
			// The stack owns the CCCD attribute; its writes come back to the
			// engine through serveNotify as synthesized descriptor writes.
			if ddef.UUID == cccdUUID {
				continue
			}
			descUUID, err := ble.Parse(ddef.UUID)
			if err != nil {
				return nil, fmt.Errorf("invalid descriptor UUID %q: %w", ddef.UUID, err)
			}
			desc := char.NewDescriptor(descUUID)
			duuid := ddef.UUID
			if ddef.Writable {
				desc.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
					sc.serveDescriptorWrite(uuid, duuid, req, rsp)
				}))
			}
		}
	}
	return svc, nil
}

// Notify implements radio.ServerConn over the live notify session of the
// given central.
func (sc *serverConn) Notify(centralAddr, charUUID string, value []byte) error {
	sc.mu.Lock()
	n, ok := sc.notifiers[notifierKey(charUUID, centralAddr)]
	sc.mu.Unlock()
	if !ok {
		return fmt.Errorf("central %s is not subscribed to %s", centralAddr, charUUID)
	}
	if _, err := n.Write(value); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Close implements radio.ServerConn. Idempotent, best-effort.
func (sc *serverConn) Close() error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	sc.mu.Unlock()

	if err := sc.dev.RemoveAllServices(); err != nil {
		err = NormalizeError(err)
		sc.radio.invalidateOnRadioLoss(err)
		return err
	}
	return nil
}

func (sc *serverConn) serveRead(charUUID string, req ble.Request, rsp ble.ResponseWriter) {
	centralID := sc.centralFor(req.Conn())
	value, status := sc.handler.HandleCharacteristicRead(centralID, charUUID, req.Offset())
	if status != radio.StatusSuccess {
		rsp.SetStatus(ble.ATTError(status))
		return
	}
	if _, err := rsp.Write(value); err != nil {
		sc.logger.WithError(err).WithField("characteristic", charUUID).
			Debug("Failed to write read response")
	}
}

func (sc *serverConn) serveDescriptorWrite(charUUID, descUUID string, req ble.Request, rsp ble.ResponseWriter) {
	centralID := sc.centralFor(req.Conn())
	status := sc.handler.HandleDescriptorWrite(centralID, charUUID, descUUID, req.Data(), req.Offset())
	rsp.SetStatus(ble.ATTError(status))
}

// serveNotify runs for the lifetime of one notify session. The session
// opening and closing is the stack's CCCD handling; both edges are replayed
// to the engine as the equivalent CCCD writes.
func (sc *serverConn) serveNotify(charUUID string, req ble.Request, n ble.Notifier) {
	centralID := sc.centralFor(req.Conn())
	key := notifierKey(charUUID, centralID.Addr())

	sc.mu.Lock()
	sc.notifiers[key] = n
	sc.mu.Unlock()

	sc.handler.HandleDescriptorWrite(centralID, charUUID, cccdUUID, cccdEnableNotify, 0)

	<-n.Context().Done()

	sc.mu.Lock()
	delete(sc.notifiers, key)
	sc.mu.Unlock()

	sc.handler.HandleDescriptorWrite(centralID, charUUID, cccdUUID, cccdDisable, 0)
}

// centralFor maps a conn to its central identity, reporting the link once and
// arming a disconnect watcher for it.
func (sc *serverConn) centralFor(conn ble.Conn) radio.Central {
	addr := conn.RemoteAddr().String()
	c := central{addr: addr}

	sc.mu.Lock()
	_, seen := sc.watched[addr]
	if !seen {
		sc.watched[addr] = struct{}{}
	}
	sc.mu.Unlock()

	if !seen {
		sc.handler.HandleConnection(c, true)
		groutine.Go(nil, "central-link-watcher", func(_ context.Context) {
			<-conn.Disconnected()

			sc.mu.Lock()
			delete(sc.watched, addr)
			for key := range sc.notifiers {
				if keyAddr(key) == addr {
					delete(sc.notifiers, key)
				}
			}
			sc.mu.Unlock()

			sc.handler.HandleConnection(c, false)
		})
	}
	return c
}

func notifierKey(charUUID, addr string) string {
	return charUUID + "/" + addr
}

func keyAddr(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
