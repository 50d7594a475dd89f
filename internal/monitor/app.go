package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/storage"
)

// State is the App lifecycle state
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyRun is returned by a second call to Run
var ErrAlreadyRun = errors.New("monitor has already been run")

// Service is a component started with the App and stopped after the worker exits
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

// Options wires an App
type Options struct {
	Fetcher       *Fetcher
	Sink          storage.Sink
	Shell         Shell
	PollInterval  time.Duration
	EventCapacity int
	Logger        *logrus.Logger
}

// App owns the monitor lifecycle: Idle → Running → Stopped
type App struct {
	fetcher    *Fetcher
	sink       storage.Sink
	shell      Shell
	dispatcher *Dispatcher
	poller     *Poller
	services   []Service
	logger     *logrus.Logger

	mu    sync.Mutex
	state State
}

// NewApp validates opts and creates an idle App
func NewApp(opts Options) (*App, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("monitor requires a fetcher")
	}
	if opts.Sink == nil {
		return nil, errors.New("monitor requires a storage sink")
	}
	if opts.Shell == nil {
		return nil, errors.New("monitor requires a shell")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	dispatcher := NewDispatcher(opts.Fetcher.Fetch, opts.EventCapacity, logger)
	return &App{
		fetcher:    opts.Fetcher,
		sink:       opts.Sink,
		shell:      opts.Shell,
		dispatcher: dispatcher,
		poller:     NewPoller(opts.PollInterval, dispatcher.Request, logger),
		logger:     logger,
	}, nil
}

// AddService registers a service; services start in order and stop in reverse
func (a *App) AddService(svc Service) {
	a.services = append(a.services, svc)
}

// Observe registers an event observer, see Dispatcher.Observe
func (a *App) Observe(fn func(Event)) {
	a.dispatcher.Observe(fn)
}

// Request asks for a fetch without blocking
func (a *App) Request() bool {
	return a.dispatcher.Request()
}

// State returns the current lifecycle state
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run initializes storage, starts services, the worker and the poller, then
// blocks in the shell. Everything is stopped before Run returns.
func (a *App) Run(ctx context.Context) (err error) {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return ErrAlreadyRun
	}
	a.state = StateRunning
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	started := 0
	workerStarted := false
	defer func() {
		err = errors.Join(err, a.stop(cancel, started, workerStarted))
	}()

	if err := a.sink.Init(runCtx); err != nil {
		return err
	}

	for _, svc := range a.services {
		if err := svc.Start(runCtx); err != nil {
			return err
		}
		started++
	}

	if err := a.dispatcher.Start(runCtx); err != nil {
		return err
	}
	a.poller.Start(runCtx)
	workerStarted = true

	a.logger.WithFields(logrus.Fields{
		"policy":   a.fetcher.Policy(),
		"services": len(a.services),
	}).Info("Monitor running")

	return a.shell.Run(runCtx, a.dispatcher.Events(), func() { a.dispatcher.Request() })
}

func (a *App) stop(cancel context.CancelFunc, started int, workerStarted bool) error {
	cancel()

	if workerStarted {
		a.poller.Wait()
		a.dispatcher.Wait()
	}

	var errs []error
	if err := a.fetcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to disconnect sensor: %w", err))
	}
	for i := started - 1; i >= 0; i-- {
		if err := a.services[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.sink.Close(); err != nil {
		errs = append(errs, err)
	}

	a.mu.Lock()
	a.state = StateStopped
	a.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		a.logger.WithError(err).Warn("Monitor stopped with errors")
	} else {
		a.logger.Debug("Monitor stopped")
	}
	return err
}
