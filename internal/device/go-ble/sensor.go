package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/reading"
)

// GATTClient is the subset of ble.Client a Sensor uses
type GATTClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	CancelConnection() error
}

// DeviceFactory creates the local BLE adapter (can be overridden in tests)
//
//nolint:revive // exported for test overrides
var DeviceFactory = newDevice

// Dialer connects to a peripheral through dev (can be overridden in tests)
var Dialer = func(ctx context.Context, dev ble.Device, address string) (GATTClient, error) {
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Sensor reads a heart-rate characteristic from one BLE peripheral.
// All methods are safe for concurrent use.
type Sensor struct {
	opts   device.ConnectOptions
	decode reading.DecodeFunc
	logger *logrus.Logger

	mu      sync.Mutex
	dev     ble.Device
	client  GATTClient
	profile *ble.Profile
}

var _ device.Sensor = (*Sensor)(nil)

// NewSensor validates opts and returns a disconnected Sensor.
// The address is validated on Connect so that a misconfigured address surfaces
// as a ConnectionError on the first fetch.
func NewSensor(opts device.ConnectOptions, logger *logrus.Logger) (*Sensor, error) {
	if logger == nil {
		logger = logrus.New()
	}
	opts = opts.WithDefaults()

	charUUID, err := device.ValidateUUID(opts.CharUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID: %w", err)
	}
	opts.CharUUID = charUUID

	if opts.ServiceUUID != "" {
		svcUUID, err := device.ValidateUUID(opts.ServiceUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
		opts.ServiceUUID = svcUUID
	}

	if opts.Width < 0 || opts.Width > reading.MaxWidth {
		return nil, fmt.Errorf("invalid value width %d: must be 0..%d", opts.Width, reading.MaxWidth)
	}

	decode, err := reading.NewDecoder(opts.Decoder, opts.Width)
	if err != nil {
		return nil, err
	}

	return &Sensor{
		opts:   opts,
		decode: decode,
		logger: logger,
	}, nil
}

// Address returns the configured peripheral address
func (s *Sensor) Address() string {
	return s.opts.Address
}

// IsConnected reports whether a connection is held
func (s *Sensor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Connect dials the peripheral and discovers its GATT profile
func (s *Sensor) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := s.opts.Address
	if err := device.ValidateAddress(address); err != nil {
		s.logger.WithField("address", address).Error("Connection attempt with invalid address")
		return err
	}

	if s.client != nil {
		s.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return &device.ConnectionError{State: device.StateAlreadyConnected, Address: address}
	}

	s.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": s.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	dev, err := DeviceFactory(s.opts.ConnectTimeout)
	if err != nil {
		s.logger.WithField("error", err).Error("Failed to create BLE device")
		return s.connectionError(address, NormalizeError(err))
	}

	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	s.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := Dialer(connCtx, dev, address)
	if err != nil {
		stopDevice(dev, s.logger)
		if errors.Is(connCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: no response within %v: %v", device.ErrTimeout, s.opts.ConnectTimeout, err)
		}
		s.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return s.connectionError(address, NormalizeError(err))
	}

	s.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			s.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		stopDevice(dev, s.logger)
		return s.connectionError(address, fmt.Errorf("failed to discover profile: %w", NormalizeError(err)))
	}

	s.dev = dev
	s.client = client
	s.profile = profile

	s.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")
	return nil
}

func (s *Sensor) connectionError(address string, err error) error {
	state := device.StateUnreachable
	if errors.Is(err, device.ErrBluetoothOff) {
		state = device.StateBluetoothOff
	}
	return &device.ConnectionError{State: state, Address: address, Err: err}
}

// ReadValue reads and decodes the configured characteristic once
func (s *Sensor) ReadValue(ctx context.Context) (reading.Reading, error) {
	s.mu.Lock()
	client, profile := s.client, s.profile
	s.mu.Unlock()

	charUUID := s.opts.CharUUID
	if client == nil {
		return 0, &device.TransportError{Reason: device.ReasonNotConnected, Characteristic: charUUID}
	}

	char, err := findCharacteristic(profile, s.opts.ServiceUUID, charUUID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address":   s.opts.Address,
			"char_uuid": charUUID,
		}).Error("Characteristic unavailable")
		return 0, &device.TransportError{Reason: device.ReasonUnavailable, Characteristic: charUUID, Err: err}
	}

	data, err := readWithTimeout(ctx, client, char, s.opts.ReadTimeout)
	if err != nil {
		reason := device.ReasonReadFailed
		normalized := NormalizeError(err)
		if errors.Is(normalized, device.ErrNotConnected) {
			reason = device.ReasonNotConnected
		}
		return 0, &device.TransportError{Reason: reason, Characteristic: charUUID, Err: normalized}
	}

	value, err := s.decode(data)
	if err != nil {
		return 0, &device.TransportError{Reason: device.ReasonDecode, Characteristic: charUUID, Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"address":   s.opts.Address,
		"char_uuid": charUUID,
		"bytes":     len(data),
		"value":     value,
	}).Debug("Characteristic read")
	return value, nil
}

// Disconnect cancels the connection; calling it while disconnected is a no-op
func (s *Sensor) Disconnect() error {
	s.mu.Lock()
	client, dev := s.client, s.dev
	s.client, s.dev, s.profile = nil, nil, nil
	s.mu.Unlock()

	if client == nil {
		s.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	s.logger.WithField("address", s.opts.Address).Info("Disconnecting BLE device...")
	err := client.CancelConnection()
	stopDevice(dev, s.logger)

	if err != nil {
		s.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	s.logger.Info("BLE device disconnected successfully")
	return nil
}

func stopDevice(dev ble.Device, logger *logrus.Logger) {
	if dev == nil {
		return
	}
	if err := dev.Stop(); err != nil {
		logger.WithField("error", err).Debug("Failed to stop BLE device")
	}
}

// findCharacteristic locates uuid in the profile, restricted to service when it is set
func findCharacteristic(profile *ble.Profile, service, uuid string) (*ble.Characteristic, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile not discovered")
	}
	for _, svc := range profile.Services {
		if service != "" && !device.SameUUID(svc.UUID.String(), service) {
			continue
		}
		for _, char := range svc.Characteristics {
			if !device.SameUUID(char.UUID.String(), uuid) {
				continue
			}
			if char.Property&ble.CharRead == 0 {
				return nil, fmt.Errorf("characteristic %s is not readable", device.DisplayName(uuid))
			}
			return char, nil
		}
	}
	if service != "" {
		return nil, fmt.Errorf("characteristic %s not found in service %s", device.DisplayName(uuid), service)
	}
	return nil, fmt.Errorf("characteristic %s not found", device.DisplayName(uuid))
}

// readWithTimeout reads char, giving up after timeout or when ctx is done.
// The underlying read cannot be cancelled; its late result is discarded.
func readWithTimeout(ctx context.Context, client GATTClient, char *ble.Characteristic, timeout time.Duration) ([]byte, error) {
	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, err := client.ReadCharacteristic(char)
		resultCh <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic: %w", result.err)
		}
		return result.data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w reading characteristic after %v", device.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
