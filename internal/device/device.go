package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/hrmon/internal/reading"
)

// ConnectionState represents the specific kind of connection failure
type ConnectionState string

const (
	StateInvalidAddress   ConnectionState = "invalid_address"
	StateUnreachable      ConnectionState = "unreachable"
	StateAlreadyConnected ConnectionState = "already_connected"
	StateBluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError reports a failure to establish the transport connection
type ConnectionError struct {
	State   ConnectionState
	Address string
	Err     error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.State)
	if e.Address != "" {
		msg = fmt.Sprintf("%s: device %q", msg, e.Address)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying transport error
func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// TransportReason classifies a failed characteristic operation
type TransportReason string

const (
	ReasonNotConnected TransportReason = "not_connected"
	ReasonUnavailable  TransportReason = "characteristic_unavailable"
	ReasonReadFailed   TransportReason = "read_failed"
	ReasonDecode       TransportReason = "decode_failed"
)

// TransportError reports a failed read over an established (or missing) connection
type TransportError struct {
	Reason         TransportReason
	Characteristic string
	Err            error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Reason)
	if e.Characteristic != "" {
		msg = fmt.Sprintf("%s: characteristic %q", msg, e.Characteristic)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare TransportError values by Reason
func (e *TransportError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// Predefined sentinel errors, matched by state or reason
var (
	ErrInvalidAddress   = &ConnectionError{State: StateInvalidAddress}
	ErrUnreachable      = &ConnectionError{State: StateUnreachable}
	ErrAlreadyConnected = &ConnectionError{State: StateAlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: StateBluetoothOff}

	ErrNotConnected              = &TransportError{Reason: ReasonNotConnected}
	ErrCharacteristicUnavailable = &TransportError{Reason: ReasonUnavailable}
	ErrReadFailed                = &TransportError{Reason: ReasonReadFailed}
	ErrDecode                    = &TransportError{Reason: ReasonDecode}
)

// ErrTimeout is wrapped by connect and read errors caused by an expired deadline
var ErrTimeout = errors.New("timeout")

// IsConnectionError reports whether err is (or wraps) a ConnectionError
func IsConnectionError(err error) bool {
	var cerr *ConnectionError
	return errors.As(err, &cerr)
}

// IsTransportError reports whether err is (or wraps) a TransportError
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}

// Sensor is a single BLE heart-rate peripheral reachable at a fixed address.
// Implementations are not required to be safe for concurrent use; the monitor
// confines each Sensor to a single worker goroutine.
type Sensor interface {
	Address() string
	Connect(ctx context.Context) error
	ReadValue(ctx context.Context) (reading.Reading, error)
	Disconnect() error
	IsConnected() bool
}
