// Package device defines the heart-rate sensor contract and its error taxonomy.
//
// A Sensor owns one transport connection to one peripheral:
//   - Connect establishes the link to the configured address
//   - ReadValue performs one GATT read of the configured characteristic and decodes it
//   - Disconnect releases the link and is safe to call more than once
//
// WithConnection scopes a connection to a callback so that Disconnect runs on
// every exit path. Transport backends live in sub-packages (see goble).
package device
