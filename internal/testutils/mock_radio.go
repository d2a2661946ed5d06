package testutils

import (
	"context"
	"sync"

	"github.com/srg/pulsim/internal/radio"
)

// MockCentral is a comparable central identity for tests.
type MockCentral struct {
	Address string
}

func (m MockCentral) Addr() string { return m.Address }

// MockServerConn records Notify and Close calls.
type MockServerConn struct {
	mu         sync.Mutex
	notifyErr  error
	closeErr   error
	notified   []NotifyCall
	closeCount int
}

type NotifyCall struct {
	CentralAddr string
	CharUUID    string
	Value       []byte
}

func (m *MockServerConn) Notify(centralAddr, charUUID string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.notified = append(m.notified, NotifyCall{CentralAddr: centralAddr, CharUUID: charUUID, Value: v})
	return m.notifyErr
}

func (m *MockServerConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return m.closeErr
}

func (m *MockServerConn) NotifyCalls() []NotifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotifyCall, len(m.notified))
	copy(out, m.notified)
	return out
}

func (m *MockServerConn) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

func (m *MockServerConn) SetNotifyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyErr = err
}

// MockGATTServer hands out MockServerConns and captures the handler so tests
// can drive protocol callbacks directly.
type MockGATTServer struct {
	mu        sync.Mutex
	openErr   error
	openCount int
	def       *radio.ServiceDefinition
	handler   radio.ServerHandler
	conns     []*MockServerConn
}

func (m *MockGATTServer) Open(def *radio.ServiceDefinition, handler radio.ServerHandler) (radio.ServerConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCount++
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.def = def
	m.handler = handler
	conn := &MockServerConn{}
	m.conns = append(m.conns, conn)
	return conn, nil
}

func (m *MockGATTServer) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

func (m *MockGATTServer) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

func (m *MockGATTServer) Definition() *radio.ServiceDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def
}

func (m *MockGATTServer) Handler() radio.ServerHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// LastConn returns the most recently opened conn, or nil.
func (m *MockGATTServer) LastConn() *MockServerConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// MockAdvertiser captures Start calls with their failure callbacks so tests
// can inject asynchronous advertising failures.
type MockAdvertiser struct {
	mu         sync.Mutex
	startErr   error
	startCount int
	stopCount  int
	opts       radio.AdvertisingOptions
	onFailure  func(error)
}

func (m *MockAdvertiser) Start(opts radio.AdvertisingOptions, onFailure func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCount++
	if m.startErr != nil {
		return m.startErr
	}
	m.opts = opts
	m.onFailure = onFailure
	return nil
}

func (m *MockAdvertiser) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCount++
	return nil
}

func (m *MockAdvertiser) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockAdvertiser) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

func (m *MockAdvertiser) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCount
}

func (m *MockAdvertiser) Options() radio.AdvertisingOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// FailBroadcast invokes the captured failure callback as the stack would on
// an asynchronous advertising failure.
func (m *MockAdvertiser) FailBroadcast(err error) {
	m.mu.Lock()
	cb := m.onFailure
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// MockRadio is a fully scriptable radio.Radio.
type MockRadio struct {
	mu          sync.Mutex
	enabled     bool
	permissions bool
	gatt        *MockGATTServer
	adv         *MockAdvertiser
	states      chan radio.State
}

func (m *MockRadio) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *MockRadio) HasPermissions() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissions
}

func (m *MockRadio) GATT() radio.GATTServer { return m.gatt }

func (m *MockRadio) Advertiser() radio.Advertiser { return m.adv }

func (m *MockRadio) States(ctx context.Context) <-chan radio.State {
	out := make(chan radio.State)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-m.states:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (m *MockRadio) SetEnabled(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = v
}

func (m *MockRadio) SetPermissions(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions = v
}

// PushState emits a radio power transition to any active States watcher.
func (m *MockRadio) PushState(s radio.State) {
	m.states <- s
}

func (m *MockRadio) MockGATT() *MockGATTServer { return m.gatt }

func (m *MockRadio) MockAdv() *MockAdvertiser { return m.adv }

// MockRadioBuilder builds a MockRadio that is enabled and permitted unless
// told otherwise.
type MockRadioBuilder struct {
	enabled     bool
	permissions bool
}

func NewMockRadioBuilder() *MockRadioBuilder {
	return &MockRadioBuilder{enabled: true, permissions: true}
}

func (b *MockRadioBuilder) WithEnabled(v bool) *MockRadioBuilder {
	b.enabled = v
	return b
}

func (b *MockRadioBuilder) WithPermissions(v bool) *MockRadioBuilder {
	b.permissions = v
	return b
}

func (b *MockRadioBuilder) Build() *MockRadio {
	return &MockRadio{
		enabled:     b.enabled,
		permissions: b.permissions,
		gatt:        &MockGATTServer{},
		adv:         &MockAdvertiser{},
		states:      make(chan radio.State, 4),
	}
}
