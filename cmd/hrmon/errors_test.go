package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/lua"
	"github.com/srg/hrmon/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bluetooth off",
			err:  &device.ConnectionError{State: device.StateBluetoothOff, Err: errors.New("can't init hci")},
			want: "Bluetooth is off",
		},
		{
			name: "invalid address",
			err:  &device.ConnectionError{State: device.StateInvalidAddress, Address: "xx", Err: errors.New("bad")},
			want: "invalid device address",
		},
		{
			name: "timeout",
			err:  &device.ConnectionError{State: device.StateUnreachable, Address: "AA", Err: fmt.Errorf("dial: %w", device.ErrTimeout)},
			want: "did not answer in time",
		},
		{
			name: "unreachable",
			err:  fmt.Errorf("fetch: %w", &device.ConnectionError{State: device.StateUnreachable, Address: "AA", Err: errors.New("refused")}),
			want: "cannot connect to AA",
		},
		{
			name: "characteristic missing",
			err:  &device.TransportError{Reason: device.ReasonUnavailable, Characteristic: "2a37"},
			want: "does not expose a readable heart-rate characteristic",
		},
		{
			name: "read failed",
			err:  &device.TransportError{Reason: device.ReasonReadFailed, Err: errors.New("att error")},
			want: "sensor read failed",
		},
		{
			name: "storage",
			err:  &storage.StorageError{Op: "insert", Driver: "postgres", Err: errors.New("connection reset")},
			want: "storage insert failed on postgres: connection reset",
		},
		{
			name: "script",
			err:  &lua.ScriptError{Type: lua.ErrTypeSyntax, Message: "unexpected symbol"},
			want: "rule script error",
		},
		{
			name: "plain",
			err:  errors.New("something else"),
			want: "something else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.want)
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
