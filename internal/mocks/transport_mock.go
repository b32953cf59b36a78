package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/ak-mqtt/pkg/mqtt"
)

// MockTransport is a mock implementation of the mqtt.Transport interface.
// Tests push notifications into EventsCh, usually from a Run hook on Connect or Subscribe.
type MockTransport struct {
	mock.Mock
	EventsCh chan mqtt.Event
}

// NewMockTransport returns a MockTransport with a buffered event channel.
func NewMockTransport() *MockTransport {
	return &MockTransport{EventsCh: make(chan mqtt.Event, 64)}
}

func (m *MockTransport) Events() <-chan mqtt.Event {
	return m.EventsCh
}

func (m *MockTransport) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) Reconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) Subscribe(topic string, qos byte) uint32 {
	args := m.Called(topic, qos)
	return args.Get(0).(uint32)
}

func (m *MockTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	args := m.Called(topic, qos, retained, payload)
	return args.Error(0)
}

func (m *MockTransport) Outstanding() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockTransport) Disconnect() {
	m.Called()
}
