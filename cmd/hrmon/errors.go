package main

import (
	"errors"
	"fmt"

	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/lua"
	"github.com/srg/hrmon/internal/storage"
)

// Command-level errors
var (
	// ErrNoAddress is returned when neither the config file nor a flag names the sensor
	ErrNoAddress = errors.New("no device address configured (set device.address or pass --address)")
)

// FormatUserError turns known error kinds into a one-line hint. The original
// message is kept so logs and bug reports still carry the details.
func FormatUserError(err error) string {
	var (
		connErr   *device.ConnectionError
		transErr  *device.TransportError
		storeErr  *storage.StorageError
		scriptErr *lua.ScriptError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return fmt.Sprintf("Bluetooth is off or no adapter is available (%v)", err)
	case errors.Is(err, device.ErrInvalidAddress):
		return fmt.Sprintf("invalid device address (%v)", err)
	case errors.Is(err, device.ErrUnreachable) && errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("device did not answer in time; is it powered on and in range? (%v)", err)
	case errors.As(err, &connErr):
		return fmt.Sprintf("cannot connect to %s (%v)", connErr.Address, err)
	case errors.Is(err, device.ErrCharacteristicUnavailable):
		return fmt.Sprintf("the device does not expose a readable heart-rate characteristic (%v)", err)
	case errors.As(err, &transErr):
		return fmt.Sprintf("sensor read failed (%v)", err)
	case errors.As(err, &storeErr):
		return fmt.Sprintf("storage %s failed on %s: %v", storeErr.Op, storeErr.Driver, storeErr.Err)
	case errors.As(err, &scriptErr):
		return fmt.Sprintf("rule script error (%v)", err)
	default:
		return err.Error()
	}
}
