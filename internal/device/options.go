package device

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
)

// ConnectOptions configures a Sensor
type ConnectOptions struct {
	Address        string
	ServiceUUID    string        // optional; empty searches every service
	CharUUID       string        `default:"2a37"`
	ConnectTimeout time.Duration `default:"30s"`
	ReadTimeout    time.Duration `default:"5s"`
	Decoder        string        `default:"uint-le"`
	Width          int           // value width in bytes, 0 = whole payload
}

// WithDefaults returns a copy of o with unset fields filled from the default tags
func (o ConnectOptions) WithDefaults() ConnectOptions {
	defaults.SetDefaults(&o)
	return o
}

var (
	macAddressPattern  = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)
	peripheralIDFormat = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
)

// ValidateAddress accepts a MAC address (HCI) or a CoreBluetooth peripheral UUID.
// Failures are *ConnectionError with StateInvalidAddress.
func ValidateAddress(address string) error {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return &ConnectionError{State: StateInvalidAddress, Err: fmt.Errorf("device address is empty")}
	}
	if macAddressPattern.MatchString(trimmed) || peripheralIDFormat.MatchString(trimmed) {
		return nil
	}
	return &ConnectionError{
		State:   StateInvalidAddress,
		Address: address,
		Err:     fmt.Errorf("expected a MAC address (AA:BB:CC:DD:EE:FF) or a peripheral UUID"),
	}
}
