package goble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
)

// ScanFunc runs an advertisement scan on dev (can be overridden in tests)
var ScanFunc = func(ctx context.Context, dev ble.Device, allowDup bool, h ble.AdvHandler) error {
	return dev.Scan(ctx, allowDup, h)
}

// Scan opens the adapter and feeds advertisements to h until timeout or ctx ends.
// Ending by deadline or cancellation is not an error. Adapter failures are
// *device.ConnectionError with StateBluetoothOff when the radio is unavailable.
func Scan(ctx context.Context, timeout time.Duration, allowDup bool, h ble.AdvHandler, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory(timeout)
	if err != nil {
		err = NormalizeError(err)
		state := device.StateUnreachable
		if errors.Is(err, device.ErrBluetoothOff) {
			state = device.StateBluetoothOff
		}
		return &device.ConnectionError{State: state, Err: err}
	}
	defer stopDevice(dev, logger)

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.WithField("duration", timeout).Debug("Scanning for advertisements...")
	err = ScanFunc(scanCtx, dev, allowDup, h)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", NormalizeError(err))
	}
	return nil
}
