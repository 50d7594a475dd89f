package testutils

import (
	"context"
	"sync/atomic"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/testutils/mocks"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite is a reusable suite that replaces the go-ble adapter
// and dialer with a mocked peripheral.
//
// Default usage serves a Heart Rate service whose 2A37 characteristic reads [60, 0]:
//
//	type SensorSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
// Custom profile (configure before calling the parent SetupTest):
//
//	func (s *SensorSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read", []byte{80})
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func(time.Duration) (blelib.Device, error)
	OriginalDialer        func(context.Context, blelib.Device, string) (goble.GATTClient, error)
	OriginalScanFunc      func(context.Context, blelib.Device, bool, blelib.AdvHandler) error

	PeripheralBuilder *PeripheralDeviceBuilder
	Client            *mocks.MockGATTClient // client handed out by the most recent dial

	// DialError, when set, makes every dial fail
	DialError error
	// DialDelay holds each dial until it elapses or the dial context ends
	DialDelay time.Duration
	// Advertisements are delivered, in order, to every scan
	Advertisements []blelib.Advertisement

	dials atomic.Int32
}

// SetupSuite saves the real factory and dialer
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	s.OriginalDeviceFactory = goble.DeviceFactory
	s.OriginalDialer = goble.Dialer
	s.OriginalScanFunc = goble.ScanFunc

	s.T().Cleanup(func() {
		goble.DeviceFactory = s.OriginalDeviceFactory
		goble.Dialer = s.OriginalDialer
		goble.ScanFunc = s.OriginalScanFunc
	})
}

// SetupTest installs the mocked adapter and dialer
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	s.dials.Store(0)

	goble.DeviceFactory = func(time.Duration) (blelib.Device, error) {
		return nil, nil
	}
	goble.Dialer = func(ctx context.Context, _ blelib.Device, _ string) (goble.GATTClient, error) {
		s.dials.Add(1)
		if s.DialDelay > 0 {
			select {
			case <-time.After(s.DialDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if s.DialError != nil {
			return nil, s.DialError
		}
		s.Client = s.PeripheralBuilder.Build()
		return s.Client, nil
	}
	goble.ScanFunc = func(ctx context.Context, _ blelib.Device, _ bool, h blelib.AdvHandler) error {
		for _, adv := range s.Advertisements {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h(adv)
		}
		return nil
	}
}

// TearDownTest restores the real adapter and resets the configuration
func (s *MockBLEPeripheralSuite) TearDownTest() {
	goble.DeviceFactory = s.OriginalDeviceFactory
	goble.Dialer = s.OriginalDialer
	goble.ScanFunc = s.OriginalScanFunc

	s.PeripheralBuilder = nil
	s.Client = nil
	s.DialError = nil
	s.DialDelay = 0
	s.Advertisements = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// NewPeripheral replaces the configured profile with an empty one
func (s *MockBLEPeripheralSuite) NewPeripheral() *PeripheralDeviceBuilder {
	s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	return s.PeripheralBuilder
}

// DialCount returns how many times the sensor dialed since SetupTest
func (s *MockBLEPeripheralSuite) DialCount() int {
	return int(s.dials.Load())
}

// createDefaultPeripheralBuilder serves Heart Rate (180D) with a readable 2A37 of 60 bpm
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(`
		{
			"services": [
				{
					"uuid": "180D",
					"characteristics": [
						{ "uuid": "2A37", "properties": "read,notify", "value": [60, 0] },
						{ "uuid": "2A38", "properties": "read", "value": [1] }
					]
				}
			]
		}`)
}
