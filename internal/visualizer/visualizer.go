// Package visualizer keeps a rolling history of heart-rate samples, renders
// it as a chart image and optionally serves it as a live HTTP feed.
package visualizer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/groutine"
	"github.com/srg/hrmon/internal/monitor"
	"github.com/srg/hrmon/internal/reading"
)

// Config configures the visualizer
type Config struct {
	History int    `yaml:"history" default:"120"` // samples kept for the chart
	Listen  string `yaml:"listen"`                // live feed address, empty disables it
}

// Sample is one plotted reading
type Sample struct {
	Value   uint64    `json:"value"`
	Raw     uint64    `json:"raw"`
	Anomaly bool      `json:"anomaly"`
	Address string    `json:"address"`
	ReadAt  time.Time `json:"read_at"`
}

func sampleOf(r monitor.Result) Sample {
	return Sample{
		Value:   uint64(r.Value),
		Raw:     uint64(r.Raw),
		Anomaly: r.Anomaly,
		Address: r.Address,
		ReadAt:  r.ReadAt,
	}
}

// Visualizer buffers published samples and renders them.
// Publish never blocks; samples are moved into the history by a drain goroutine
// or on demand by Samples and Chart.
type Visualizer struct {
	cfg    Config
	rng    reading.Range
	logger *logrus.Logger

	incoming mpmc.RichOverlappedRingBuffer[Sample]
	notify   chan struct{}
	dropped  atomic.Uint64

	mu      sync.Mutex
	history []Sample

	feed   *Feed
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a visualizer plotting against rng
func New(cfg Config, rng reading.Range, logger *logrus.Logger) *Visualizer {
	if cfg.History <= 0 {
		cfg.History = 120
	}
	if logger == nil {
		logger = logrus.New()
	}
	v := &Visualizer{
		cfg:      cfg,
		rng:      rng,
		logger:   logger,
		incoming: mpmc.NewOverlappedRingBuffer[Sample](uint32(cfg.History)),
		notify:   make(chan struct{}, 1),
		history:  make([]Sample, 0, cfg.History),
	}
	if cfg.Listen != "" {
		v.feed = NewFeed(v, logger)
	}
	return v
}

// Range returns the band drawn as normal
func (v *Visualizer) Range() reading.Range {
	return v.rng
}

// Publish queues a result for plotting
func (v *Visualizer) Publish(r monitor.Result) {
	if overwrites, err := v.incoming.EnqueueM(sampleOf(r)); err != nil {
		v.logger.WithError(err).Warn("Failed to queue sample")
		return
	} else if overwrites > 0 {
		v.dropped.Add(uint64(overwrites))
	}
	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// Observe publishes successful events; it matches monitor.App.Observe
func (v *Visualizer) Observe(ev monitor.Event) {
	if ev.Failed() {
		return
	}
	v.Publish(ev.Result)
}

// Dropped returns how many queued samples were overwritten before being drained
func (v *Visualizer) Dropped() uint64 {
	return v.dropped.Load()
}

// Flush moves queued samples into the history and returns the new ones.
// Fresh samples reach the live feed in queue order, whichever goroutine flushes.
func (v *Visualizer) Flush() []Sample {
	v.mu.Lock()
	defer v.mu.Unlock()
	var fresh []Sample
	for !v.incoming.IsEmpty() {
		s, err := v.incoming.Dequeue()
		if err != nil {
			break
		}
		fresh = append(fresh, s)
		v.history = append(v.history, s)
	}
	if extra := len(v.history) - v.cfg.History; extra > 0 {
		v.history = append(v.history[:0], v.history[extra:]...)
	}

	// broadcast must not block: it runs under v.mu
	if v.feed != nil {
		for _, s := range fresh {
			v.feed.broadcast(s)
		}
	}
	return fresh
}

// Samples returns the current history, oldest first
func (v *Visualizer) Samples() []Sample {
	v.Flush()
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Sample, len(v.history))
	copy(out, v.history)
	return out
}

// Latest returns the most recent sample
func (v *Visualizer) Latest() (Sample, bool) {
	samples := v.Samples()
	if len(samples) == 0 {
		return Sample{}, false
	}
	return samples[len(samples)-1], true
}

// Start launches the drain goroutine and, when configured, the live feed
func (v *Visualizer) Start(ctx context.Context) error {
	if v.feed != nil {
		if err := v.feed.Start(v.cfg.Listen); err != nil {
			return err
		}
	}

	ctx, v.cancel = context.WithCancel(ctx)
	v.done = make(chan struct{})
	groutine.GoSafe(ctx, "visualizer-drain", v.logger, func(ctx context.Context) {
		defer close(v.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-v.notify:
				v.Flush()
			}
		}
	})
	return nil
}

// Stop ends the drain goroutine and shuts the feed down
func (v *Visualizer) Stop() error {
	if v.cancel != nil {
		v.cancel()
		<-v.done
		v.cancel = nil
	}
	if v.feed != nil {
		return v.feed.Stop()
	}
	return nil
}

// Feed returns the live feed, nil when Listen is empty
func (v *Visualizer) Feed() *Feed {
	return v.feed
}
