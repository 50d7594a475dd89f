package monitor

import (
	"context"
	"time"

	"github.com/srg/hrmon/internal/reading"
)

// Result is the outcome of one successful fetch
type Result struct {
	Raw     reading.Reading
	Value   reading.Reading
	Anomaly bool
	ReadAt  time.Time
	Address string
}

// Event carries either a Result or the error that prevented it
type Event struct {
	Result Result
	Err    error
	At     time.Time
}

// Failed reports whether the event carries an error
func (e Event) Failed() bool {
	return e.Err != nil
}

// Shell renders events and turns user actions into fetch requests.
// Run blocks until the user quits or ctx is cancelled.
type Shell interface {
	Run(ctx context.Context, events <-chan Event, request func()) error
}

// ShellFunc adapts a function to Shell
type ShellFunc func(ctx context.Context, events <-chan Event, request func()) error

func (f ShellFunc) Run(ctx context.Context, events <-chan Event, request func()) error {
	return f(ctx, events, request)
}
