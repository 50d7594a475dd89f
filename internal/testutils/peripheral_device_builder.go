package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	blelib "github.com/go-ble/ble"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,notify"
	Value      []byte `json:"value,omitempty"`
	ReadError  string `json:"read_error,omitempty"` // ReadCharacteristic fails with this message
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete peripheral profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a mocked GATT client serving a configured profile
type PeripheralDeviceBuilder struct {
	profile     DeviceProfileConfig
	discoverErr error
	cancelErr   error
}

// NewPeripheralDeviceBuilder creates a new peripheral builder with no services
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{Services: []ServiceConfig{}},
	}
}

// WithService adds a service to the profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	svc := b.lastService("WithCharacteristic")
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithReadError makes reads of the last added characteristic fail with msg
func (b *PeripheralDeviceBuilder) WithReadError(msg string) *PeripheralDeviceBuilder {
	svc := b.lastService("WithReadError")
	if len(svc.Characteristics) == 0 {
		panic("WithReadError: no characteristic added yet, call WithCharacteristic first")
	}
	svc.Characteristics[len(svc.Characteristics)-1].ReadError = msg
	return b
}

// WithDiscoverError makes profile discovery fail
func (b *PeripheralDeviceBuilder) WithDiscoverError(err error) *PeripheralDeviceBuilder {
	b.discoverErr = err
	return b
}

// WithCancelError makes CancelConnection fail
func (b *PeripheralDeviceBuilder) WithCancelError(err error) *PeripheralDeviceBuilder {
	b.cancelErr = err
	return b
}

// FromJSON replaces the profile with one parsed from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

func (b *PeripheralDeviceBuilder) lastService(caller string) *ServiceConfig {
	if len(b.profile.Services) == 0 {
		panic(caller + ": no service added yet, call WithService first")
	}
	return &b.profile.Services[len(b.profile.Services)-1]
}

// parseCharacteristicProperties converts "read,notify" style strings to ble.Property flags
func parseCharacteristicProperties(props string) blelib.Property {
	if props == "" {
		return blelib.CharRead | blelib.CharNotify
	}
	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			property |= blelib.CharRead
		case "write":
			property |= blelib.CharWrite
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		}
	}
	return property
}

// BuildProfile converts the configuration into a go-ble profile
func (b *PeripheralDeviceBuilder) BuildProfile() *blelib.Profile {
	services := make([]*blelib.Service, 0, len(b.profile.Services))
	for _, svcConfig := range b.profile.Services {
		svc := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID)}
		for _, charConfig := range svcConfig.Characteristics {
			svc.Characteristics = append(svc.Characteristics, &blelib.Characteristic{
				UUID:     blelib.MustParse(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			})
		}
		services = append(services, svc)
	}
	return &blelib.Profile{Services: services}
}

// Build creates a mocked GATT client serving the configured profile
func (b *PeripheralDeviceBuilder) Build() *mocks.MockGATTClient {
	client := &mocks.MockGATTClient{}
	profile := b.BuildProfile()

	if b.discoverErr != nil {
		client.On("DiscoverProfile", true).Return(nil, b.discoverErr)
	} else {
		client.On("DiscoverProfile", true).Return(profile, nil)
	}
	client.On("CancelConnection").Return(b.cancelErr)

	for i, svc := range profile.Services {
		for j, char := range svc.Characteristics {
			cfg := b.profile.Services[i].Characteristics[j]
			switch {
			case cfg.ReadError != "":
				client.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("%s", cfg.ReadError))
			case char.Property&blelib.CharRead != 0:
				client.On("ReadCharacteristic", char).Return(char.Value, nil)
			default:
				client.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("characteristic %s does not support read", device.NormalizeUUID(cfg.UUID)))
			}
		}
	}
	client.On("ReadCharacteristic", mock.Anything).Return(nil, fmt.Errorf("unknown characteristic")).Maybe()

	return client
}
