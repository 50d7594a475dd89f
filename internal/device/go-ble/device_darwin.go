package goble

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// newDevice opens the CoreBluetooth central manager.
// CoreBluetooth has no dialer timeout option; the connect context bounds the dial.
func newDevice(_ time.Duration) (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open CoreBluetooth device: %w", err)
	}
	return dev, nil
}
