//go:build !linux && !darwin

package goble

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-ble/ble"
)

func newDevice(_ time.Duration) (ble.Device, error) {
	return nil, fmt.Errorf("bluetooth is not supported on %s", runtime.GOOS)
}
