package goble_test

import (
	"context"
	"errors"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/hrmon/internal/device"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

type SensorTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

func (s *SensorTestSuite) newSensor(opts device.ConnectOptions) *goble.Sensor {
	if opts.Address == "" {
		opts.Address = testAddress
	}
	sensor, err := goble.NewSensor(opts, s.Logger)
	s.Require().NoError(err, "sensor MUST be created")
	return sensor
}

func (s *SensorTestSuite) TestConnectReadDisconnect() {
	// GOAL: the default heart-rate characteristic is found, read and decoded
	//
	// TEST SCENARIO: connect → read 2A37 [60,0] → 60 → disconnect cancels the connection
	sensor := s.newSensor(device.ConnectOptions{})

	s.Require().NoError(sensor.Connect(context.Background()))
	s.True(sensor.IsConnected())

	v, err := sensor.ReadValue(context.Background())
	s.Require().NoError(err)
	s.Equal(reading.Reading(60), v)

	client := s.Client
	s.Require().NoError(sensor.Disconnect())
	s.False(sensor.IsConnected())
	client.AssertCalled(s.T(), "CancelConnection")

	s.NoError(sensor.Disconnect(), "second disconnect MUST be a no-op")
	client.AssertNumberOfCalls(s.T(), "CancelConnection", 1)
}

func (s *SensorTestSuite) TestInvalidAddress() {
	for _, addr := range []string{"   ", "not-a-mac"} {
		sensor, err := goble.NewSensor(device.ConnectOptions{Address: addr}, s.Logger)
		s.Require().NoError(err)

		err = sensor.Connect(context.Background())
		s.ErrorIs(err, device.ErrInvalidAddress, "address %q MUST be rejected", addr)
	}
	s.Equal(0, s.DialCount(), "invalid addresses MUST NOT be dialed")
}

func (s *SensorTestSuite) TestUnreachableDevice() {
	s.DialError = errors.New("connection refused")
	sensor := s.newSensor(device.ConnectOptions{})

	err := sensor.Connect(context.Background())
	s.ErrorIs(err, device.ErrUnreachable)
	s.False(sensor.IsConnected())

	var connErr *device.ConnectionError
	s.Require().True(errors.As(err, &connErr))
	s.Equal(testAddress, connErr.Address)
}

func (s *SensorTestSuite) TestConnectTimeout() {
	s.DialDelay = time.Second
	sensor := s.newSensor(device.ConnectOptions{ConnectTimeout: 20 * time.Millisecond})

	err := sensor.Connect(context.Background())
	s.ErrorIs(err, device.ErrUnreachable)
	s.ErrorIs(err, device.ErrTimeout, "deadline MUST be reported as a timeout")
}

func (s *SensorTestSuite) TestBluetoothOff() {
	goble.DeviceFactory = func(time.Duration) (blelib.Device, error) {
		return nil, errors.New("can't init hci: no devices available")
	}
	sensor := s.newSensor(device.ConnectOptions{})

	err := sensor.Connect(context.Background())
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *SensorTestSuite) TestAlreadyConnected() {
	sensor := s.newSensor(device.ConnectOptions{})
	s.Require().NoError(sensor.Connect(context.Background()))
	defer sensor.Disconnect()

	s.ErrorIs(sensor.Connect(context.Background()), device.ErrAlreadyConnected)
	s.Equal(1, s.DialCount())
}

func (s *SensorTestSuite) TestDiscoverFailureCancelsConnection() {
	s.WithPeripheral().WithDiscoverError(errors.New("att timeout"))
	sensor := s.newSensor(device.ConnectOptions{})

	err := sensor.Connect(context.Background())
	s.ErrorIs(err, device.ErrUnreachable)
	s.Client.AssertCalled(s.T(), "CancelConnection")
	s.False(sensor.IsConnected())
}

func (s *SensorTestSuite) TestReadWithoutConnection() {
	sensor := s.newSensor(device.ConnectOptions{})

	_, err := sensor.ReadValue(context.Background())
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *SensorTestSuite) TestCharacteristicUnavailable() {
	cases := []struct {
		name string
		opts device.ConnectOptions
	}{
		{"absent characteristic", device.ConnectOptions{CharUUID: "2a19"}},
		{"wrong service", device.ConnectOptions{ServiceUUID: "180f"}},
		{"not readable", device.ConnectOptions{CharUUID: "2a39"}},
	}

	for _, c := range cases {
		s.Run(c.name, func() {
			s.NewPeripheral().
				WithService("180D").
				WithCharacteristic("2A37", "read,notify", []byte{60, 0}).
				WithCharacteristic("2A39", "write", nil)

			sensor := s.newSensor(c.opts)
			s.Require().NoError(sensor.Connect(context.Background()))
			defer sensor.Disconnect()

			_, err := sensor.ReadValue(context.Background())
			s.ErrorIs(err, device.ErrCharacteristicUnavailable)
		})
	}
}

func (s *SensorTestSuite) TestLongFormUUIDs() {
	// GOAL: configured UUIDs match regardless of short, prefixed or 128-bit notation
	sensor := s.newSensor(device.ConnectOptions{
		ServiceUUID: "0000180d-0000-1000-8000-00805f9b34fb",
		CharUUID:    "0x2A37",
	})
	s.Require().NoError(sensor.Connect(context.Background()))
	defer sensor.Disconnect()

	v, err := sensor.ReadValue(context.Background())
	s.Require().NoError(err)
	s.Equal(reading.Reading(60), v)
}

func (s *SensorTestSuite) TestReadFailure() {
	s.NewPeripheral().
		WithService("180D").
		WithCharacteristic("2A37", "read", nil).
		WithReadError("insufficient authentication")

	sensor := s.newSensor(device.ConnectOptions{})
	s.Require().NoError(sensor.Connect(context.Background()))
	defer sensor.Disconnect()

	_, err := sensor.ReadValue(context.Background())
	s.ErrorIs(err, device.ErrReadFailed)
}

func (s *SensorTestSuite) TestReadAfterPeerDisconnect() {
	s.NewPeripheral().
		WithService("180D").
		WithCharacteristic("2A37", "read", nil).
		WithReadError("device not connected")

	sensor := s.newSensor(device.ConnectOptions{})
	s.Require().NoError(sensor.Connect(context.Background()))
	defer sensor.Disconnect()

	_, err := sensor.ReadValue(context.Background())
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *SensorTestSuite) TestDecodeFailure() {
	s.NewPeripheral().
		WithService("180D").
		WithCharacteristic("2A37", "read", []byte{60})

	sensor := s.newSensor(device.ConnectOptions{Width: 2})
	s.Require().NoError(sensor.Connect(context.Background()))
	defer sensor.Disconnect()

	_, err := sensor.ReadValue(context.Background())
	s.ErrorIs(err, device.ErrDecode)
	s.ErrorIs(err, reading.ErrShortPayload)
}

func (s *SensorTestSuite) TestMeasurementDecoder() {
	s.NewPeripheral().
		WithService("180D").
		WithCharacteristic("2A37", "read,notify", []byte{0x06, 74})

	sensor := s.newSensor(device.ConnectOptions{Decoder: reading.DecoderMeasurement})
	s.Require().NoError(sensor.Connect(context.Background()))
	defer sensor.Disconnect()

	v, err := sensor.ReadValue(context.Background())
	s.Require().NoError(err)
	s.Equal(reading.Reading(74), v)
}

func TestSensorTestSuite(t *testing.T) {
	suite.Run(t, new(SensorTestSuite))
}
