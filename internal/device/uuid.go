package device

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// sigBaseSuffix is the Bluetooth SIG base UUID without its leading 32-bit field
const sigBaseSuffix = "00001000800000805f9b34fb"

// Well-known GATT UUIDs (normalized short form)
const (
	ServiceHeartRate         = "180d"
	CharHeartRateMeasurement = "2a37"
	CharBodySensorLocation   = "2a38"
	CharBatteryLevel         = "2a19"
)

var knownCharacteristics = map[string]string{
	CharHeartRateMeasurement: "Heart Rate Measurement",
	CharBodySensorLocation:   "Body Sensor Location",
	"2a39":                   "Heart Rate Control Point",
	CharBatteryLevel:         "Battery Level",
}

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips braces and a 0x prefix. Full 128-bit UUIDs in the Bluetooth SIG base
// format (0000xxxx-0000-1000-8000-00805f9b34fb) collapse to the 16-bit form (xxxx).
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.Trim(s, "{}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// ValidateUUID checks that uuid is a 16, 32 or 128-bit hex UUID and returns its normalized form
func ValidateUUID(uuid string) (string, error) {
	if strings.TrimSpace(uuid) == "" {
		return "", fmt.Errorf("UUID cannot be empty")
	}
	normalized := NormalizeUUID(uuid)
	switch len(normalized) {
	case 4, 8, 32:
	default:
		return "", fmt.Errorf("invalid UUID length: %s", uuid)
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("invalid UUID format: %s", uuid)
	}
	return normalized, nil
}

// SameUUID reports whether two UUID strings refer to the same attribute
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// KnownName returns the assigned name of a well-known characteristic, or "" if unknown
func KnownName(uuid string) string {
	return knownCharacteristics[NormalizeUUID(uuid)]
}

// DisplayName returns the known name followed by the short UUID, or just the UUID
func DisplayName(uuid string) string {
	normalized := NormalizeUUID(uuid)
	if name := knownCharacteristics[normalized]; name != "" {
		return fmt.Sprintf("%s (%s)", name, normalized)
	}
	return normalized
}
