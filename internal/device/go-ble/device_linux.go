package goble

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// newDevice opens the default HCI adapter.
func newDevice(connectTimeout time.Duration) (ble.Device, error) {
	dev, err := linux.NewDevice(ble.OptDialerTimeout(connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open HCI device: %w", err)
	}
	return dev, nil
}
