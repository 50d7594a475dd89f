package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/groutine"
	"github.com/srg/hrmon/internal/ringchan"
)

// DefaultEventCapacity bounds the events waiting for the shell
const DefaultEventCapacity = 16

// ErrFetchPanic wraps a panic raised by a fetch
var ErrFetchPanic = errors.New("fetch panicked")

// FetchFunc performs one fetch
type FetchFunc func(ctx context.Context) (Result, error)

// Dispatcher runs fetches on a single worker goroutine.
// Requests made while one is pending coalesce into it.
type Dispatcher struct {
	fetch    FetchFunc
	logger   *logrus.Logger
	requests chan struct{}
	events   *ringchan.RingChannel[Event]

	mu        sync.Mutex
	observers []func(Event)

	started  atomic.Bool
	done     chan struct{}
	fetches  atomic.Int64
	failures atomic.Int64
}

// NewDispatcher creates a dispatcher publishing into a ring of eventCapacity events
func NewDispatcher(fetch FetchFunc, eventCapacity int, logger *logrus.Logger) *Dispatcher {
	if eventCapacity <= 0 {
		eventCapacity = DefaultEventCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		fetch:    fetch,
		logger:   logger,
		requests: make(chan struct{}, 1),
		events:   ringchan.New[Event](eventCapacity),
		done:     make(chan struct{}),
	}
}

// Observe registers fn to see every event before it reaches the shell.
// fn runs on the worker goroutine and must not block.
func (d *Dispatcher) Observe(fn func(Event)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// Events is the channel the shell renders from. It is closed when the worker exits.
func (d *Dispatcher) Events() <-chan Event {
	return d.events.C()
}

// Request asks for a fetch and returns immediately.
// It reports false when a request was already pending.
func (d *Dispatcher) Request() bool {
	select {
	case d.requests <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start launches the worker; it stops when ctx is cancelled
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}
	groutine.GoSafe(ctx, "fetch-worker", d.logger, func(ctx context.Context) {
		defer close(d.done)
		defer d.events.Close()
		d.run(ctx)
	})
	return nil
}

// Wait blocks until the worker has exited
func (d *Dispatcher) Wait() {
	if !d.started.Load() {
		return
	}
	<-d.done
}

// Stats returns the number of fetches run and how many failed
func (d *Dispatcher) Stats() (fetches, failures int64) {
	return d.fetches.Load(), d.failures.Load()
}

// EventMetrics reports handoff ring statistics
func (d *Dispatcher) EventMetrics() ringchan.Metrics {
	return d.events.GetMetrics()
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.requests:
			d.handle(ctx)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context) {
	d.fetches.Add(1)
	result, err := d.safeFetch(ctx)
	if err != nil && ctx.Err() != nil {
		// shutting down; nobody is left to render the failure
		return
	}

	event := Event{Result: result, Err: err, At: time.Now()}
	if err != nil {
		d.failures.Add(1)
		d.logger.WithError(err).Error("Fetch failed")
	}

	d.mu.Lock()
	observers := d.observers
	d.mu.Unlock()
	for _, fn := range observers {
		fn(event)
	}

	if dropped := d.events.Send(event); dropped {
		d.logger.Debug("Event ring full, oldest event dropped")
	}
}

// safeFetch turns a panic into a failed fetch so the worker keeps serving requests
func (d *Dispatcher) safeFetch(ctx context.Context) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Fetch panic recovered")
			result, err = Result{}, fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()
	return d.fetch(ctx)
}
