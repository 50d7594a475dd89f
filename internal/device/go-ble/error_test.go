package goble

import (
	"errors"
	"testing"

	"github.com/srg/hrmon/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{"darwin powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"turned off", errors.New("Bluetooth is turned off"), device.ErrBluetoothOff},
		{"no hci adapter", errors.New("can't init hci: no devices available: (hci0: can't down device: no such device)"), device.ErrBluetoothOff},
		{"already connected", errors.New("device already connected"), device.ErrAlreadyConnected},
		{"not connected", errors.New("write failed: device not connected"), device.ErrNotConnected},
		{"peer disconnected", errors.New("peripheral disconnected"), device.ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.input.Error(), "original message MUST be preserved")
		})
	}
}

func TestNormalizeError_PassThrough(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	original := errors.New("att: insufficient authentication")
	assert.Same(t, original, NormalizeError(original))
}
