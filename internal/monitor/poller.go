package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/groutine"
)

// Poller requests a fetch every interval until its context ends
type Poller struct {
	interval time.Duration
	request  func() bool
	logger   *logrus.Logger
	done     chan struct{}
}

// NewPoller creates a poller; an interval of zero or less disables it
func NewPoller(interval time.Duration, request func() bool, logger *logrus.Logger) *Poller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Poller{interval: interval, request: request, logger: logger, done: make(chan struct{})}
}

// Enabled reports whether the poller has a positive interval
func (p *Poller) Enabled() bool {
	return p.interval > 0
}

// Start begins polling; the first request is made immediately
func (p *Poller) Start(ctx context.Context) {
	if !p.Enabled() {
		close(p.done)
		return
	}
	groutine.GoSafe(ctx, "poller", p.logger, func(ctx context.Context) {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	})
}

func (p *Poller) tick() {
	if !p.request() {
		p.logger.Debug("Previous fetch still pending, poll coalesced")
	}
}

// Wait blocks until the poll loop has exited
func (p *Poller) Wait() {
	<-p.done
}
