package mocks

import (
	"context"

	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/reading"
	"github.com/stretchr/testify/mock"
)

// MockSensor is a testify mock of device.Sensor
type MockSensor struct {
	mock.Mock
}

var _ device.Sensor = (*MockSensor)(nil)

func (m *MockSensor) Address() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSensor) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSensor) ReadValue(ctx context.Context) (reading.Reading, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).(reading.Reading)
	return v, args.Error(1)
}

func (m *MockSensor) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSensor) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}
