package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/srg/hrmon/internal/monitor"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/storage"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/srg/hrmon/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// recordingService logs its lifecycle calls into a shared journal
type recordingService struct {
	name     string
	journal  *[]string
	mu       *sync.Mutex
	startErr error
}

func (r *recordingService) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.journal = append(*r.journal, "start "+r.name)
	return r.startErr
}

func (r *recordingService) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.journal = append(*r.journal, "stop "+r.name)
	return nil
}

type failingSink struct {
	storage.MemorySink
}

func (f *failingSink) Init(context.Context) error {
	return &storage.StorageError{Op: "init", Driver: "test", Err: errors.New("disk full")}
}

type AppTestSuite struct {
	suite.Suite

	helper  *testutils.TestHelper
	sensor  *mocks.MockSensor
	sink    *storage.MemorySink
	fetcher *monitor.Fetcher

	mu      sync.Mutex
	journal []string
}

func (s *AppTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.sensor = &mocks.MockSensor{}
	s.sensor.On("Address").Return(testAddress).Maybe()
	s.sink = storage.NewMemorySink()
	s.journal = nil

	pipeline, err := reading.NewPipeline(reading.DefaultRange(), nil)
	s.Require().NoError(err)
	s.fetcher, err = monitor.NewFetcher(s.sensor, pipeline, s.sink, s.helper.Logger)
	s.Require().NoError(err)
}

func (s *AppTestSuite) service(name string) *recordingService {
	return &recordingService{name: name, journal: &s.journal, mu: &s.mu}
}

func (s *AppTestSuite) newApp(shell monitor.Shell) *monitor.App {
	app, err := monitor.NewApp(monitor.Options{
		Fetcher: s.fetcher,
		Sink:    s.sink,
		Shell:   shell,
		Logger:  s.helper.Logger,
	})
	s.Require().NoError(err)
	return app
}

func (s *AppTestSuite) TestRunRendersRequestedFetch() {
	// GOAL: the shell's read action reaches the sensor through the worker and comes back as an event
	//
	// TEST SCENARIO: shell requests → worker fetches 60 → shell receives event → quits → app stopped
	s.sensor.On("Connect", mock.Anything).Return(nil).Once()
	s.sensor.On("ReadValue", mock.Anything).Return(reading.Reading(60), nil).Once()
	s.sensor.On("Disconnect").Return(nil).Once()

	var rendered monitor.Event
	var app *monitor.App
	app = s.newApp(monitor.ShellFunc(func(ctx context.Context, events <-chan monitor.Event, request func()) error {
		s.Equal(monitor.StateRunning, app.State())
		request()
		rendered = <-events
		return nil
	}))
	s.Equal(monitor.StateIdle, app.State())

	var observed []monitor.Event
	app.Observe(func(ev monitor.Event) { observed = append(observed, ev) })

	s.Require().NoError(app.Run(context.Background()))

	s.Equal(monitor.StateStopped, app.State())
	s.Require().NoError(rendered.Err)
	s.Equal(reading.Reading(60), rendered.Result.Value)
	s.Len(observed, 1, "observers MUST see the event")
	s.Len(s.sink.Records(), 1)
	s.sensor.AssertExpectations(s.T())
}

func (s *AppTestSuite) TestSecondRunFails() {
	app := s.newApp(monitor.ShellFunc(func(context.Context, <-chan monitor.Event, func()) error {
		return nil
	}))

	s.Require().NoError(app.Run(context.Background()))
	s.ErrorIs(app.Run(context.Background()), monitor.ErrAlreadyRun)
	s.Equal(monitor.StateStopped, app.State())
}

func (s *AppTestSuite) TestServicesStartInOrderAndStopInReverse() {
	app := s.newApp(monitor.ShellFunc(func(context.Context, <-chan monitor.Event, func()) error {
		s.mu.Lock()
		s.journal = append(s.journal, "shell")
		s.mu.Unlock()
		return nil
	}))
	app.AddService(s.service("visualizer"))
	app.AddService(s.service("bridge"))

	s.Require().NoError(app.Run(context.Background()))

	s.Equal([]string{"start visualizer", "start bridge", "shell", "stop bridge", "stop visualizer"}, s.journal)
}

func (s *AppTestSuite) TestFailedServiceStopsStartedOnes() {
	shellRan := false
	app := s.newApp(monitor.ShellFunc(func(context.Context, <-chan monitor.Event, func()) error {
		shellRan = true
		return nil
	}))
	broken := s.service("bridge")
	broken.startErr = errors.New("no pty")
	app.AddService(s.service("visualizer"))
	app.AddService(broken)

	err := app.Run(context.Background())

	s.ErrorContains(err, "no pty")
	s.False(shellRan, "shell MUST NOT run after a startup failure")
	s.Equal([]string{"start visualizer", "start bridge", "stop visualizer"}, s.journal)
	s.Equal(monitor.StateStopped, app.State())
}

func (s *AppTestSuite) TestStorageInitFailure() {
	pipeline, err := reading.NewPipeline(reading.DefaultRange(), nil)
	s.Require().NoError(err)
	sink := &failingSink{}
	fetcher, err := monitor.NewFetcher(s.sensor, pipeline, sink, s.helper.Logger)
	s.Require().NoError(err)

	app, err := monitor.NewApp(monitor.Options{
		Fetcher: fetcher,
		Sink:    sink,
		Shell: monitor.ShellFunc(func(context.Context, <-chan monitor.Event, func()) error {
			s.Fail("shell MUST NOT run without storage")
			return nil
		}),
	})
	s.Require().NoError(err)

	s.ErrorIs(app.Run(context.Background()), storage.ErrInit)
}

func (s *AppTestSuite) TestCancelledContextStopsShell() {
	ctx, cancel := context.WithCancel(context.Background())
	app := s.newApp(monitor.ShellFunc(func(ctx context.Context, _ <-chan monitor.Event, _ func()) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}))

	s.ErrorIs(app.Run(ctx), context.Canceled)
	s.Equal(monitor.StateStopped, app.State())
}

func (s *AppTestSuite) TestNewAppValidation() {
	_, err := monitor.NewApp(monitor.Options{Sink: s.sink})
	s.Error(err)
	_, err = monitor.NewApp(monitor.Options{Fetcher: s.fetcher, Sink: s.sink})
	s.Error(err)
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}
