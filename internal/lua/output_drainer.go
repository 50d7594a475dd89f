package lua

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/groutine"
)

// OutputDrainer forwards rule script output to the logger.
// Script print() lines are logged at debug level, errors at warn level.
type OutputDrainer struct {
	cancelOnce sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup
}

// Cancel signals the drainer to flush what is buffered and stop.
func (d *OutputDrainer) Cancel() {
	d.cancelOnce.Do(func() {
		close(d.stop)
	})
}

// Wait blocks until the drainer goroutine has exited.
func (d *OutputDrainer) Wait() {
	d.wg.Wait()
}

func logRecord(logger *logrus.Logger, record OutputRecord) {
	entry := logger.WithFields(logrus.Fields{
		"source": record.Source,
		"at":     record.Timestamp.Format(time.RFC3339Nano),
	})
	line := strings.TrimRight(record.Content, "\n")
	if record.Source == "stderr" {
		entry.Warn("Rule script: " + line)
		return
	}
	entry.Debug("Rule script: " + line)
}

// drainWithTimeout logs what is left in outputChan, giving up after timeout.
// Returns true if the channel was closed.
func drainWithTimeout(outputChan <-chan OutputRecord, timeout time.Duration, logger *logrus.Logger) bool {
	deadline := time.After(timeout)
	for {
		select {
		case record, ok := <-outputChan:
			if !ok {
				return true
			}
			logRecord(logger, record)
		case <-deadline:
			return false
		}
	}
}

// NewOutputDrainer starts draining outputChan into logger until the channel
// closes, Cancel is called, or ctx is done.
func NewOutputDrainer(ctx context.Context, outputChan <-chan OutputRecord, logger *logrus.Logger) *OutputDrainer {
	drainer := &OutputDrainer{
		stop: make(chan struct{}),
	}

	drainer.wg.Add(1)
	groutine.GoSafe(ctx, "rule-output-drainer", logger, func(ctx context.Context) {
		defer drainer.wg.Done()
		defer logger.Debugf("%s: exiting", groutine.GetName(ctx))

		for {
			select {
			case record, ok := <-outputChan:
				if !ok {
					return
				}
				logRecord(logger, record)
			case <-drainer.stop:
				drainWithTimeout(outputChan, 100*time.Millisecond, logger)
				return
			case <-ctx.Done():
				drainWithTimeout(outputChan, 100*time.Millisecond, logger)
				return
			}
		}
	})

	return drainer
}
