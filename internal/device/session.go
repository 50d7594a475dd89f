package device

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ProgressCallback is called when the session phase changes
type ProgressCallback func(phase string)

// Session phases reported through ProgressCallback
const (
	PhaseConnecting = "Connecting"
	PhaseConnected  = "Connected"
	PhaseReading    = "Reading"
	PhaseFailed     = "Failed"
	PhaseDone       = "Done"
)

// SessionCallback runs against a connected sensor and produces a result of type R
type SessionCallback[R any] func(Sensor) (R, error)

// WithConnection connects the sensor, executes the callback and disconnects.
// Disconnect runs on every exit path, including callback errors and panics.
// A disconnect failure is logged and does not replace the callback result.
func WithConnection[R any](ctx context.Context, sensor Sensor, logger *logrus.Logger, progress ProgressCallback, callback SessionCallback[R]) (R, error) {
	var zero R
	if logger == nil {
		logger = logrus.New()
	}
	if progress == nil {
		progress = func(string) {}
	}

	progress(PhaseConnecting)
	if err := sensor.Connect(ctx); err != nil {
		progress(PhaseFailed)
		return zero, err
	}
	progress(PhaseConnected)

	defer func() {
		if err := sensor.Disconnect(); err != nil {
			logger.WithFields(logrus.Fields{
				"address": sensor.Address(),
				"error":   err,
			}).Warn("Failed to disconnect sensor")
		}
	}()

	progress(PhaseReading)
	result, err := callback(sensor)
	if err != nil {
		progress(PhaseFailed)
		return zero, err
	}
	progress(PhaseDone)
	return result, nil
}
