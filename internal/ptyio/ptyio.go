// Package ptyio mirrors monitor events onto a pseudo-terminal so serial
// console tools (screen, minicom, picocom) can follow the readings.
//
//	bridge, err := ptyio.Open(ptyio.Options{Link: "/tmp/hrmon", Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer bridge.Close()
//	bridge.Start(ctx)
//	bridge.WriteLine("hello")
//
// Writes never block: lines are queued in a byte ring buffer and copied to the
// master by a writer goroutine. A line that does not fit is dropped whole and
// counted in Stats.
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/hrmon/internal/groutine"
	"golang.org/x/term"
)

// DefaultBufferSize is the write queue capacity in bytes
const DefaultBufferSize = 4096

// Options configures a Bridge
type Options struct {
	Link       string // optional symlink to the slave device
	BufferSize int    // write queue capacity, 0 = DefaultBufferSize
	Logger     *logrus.Logger
}

// Stats are runtime counters of a Bridge
type Stats struct {
	QueueLen     int
	QueueCap     int
	LinesQueued  uint64
	LinesDropped uint64
	BytesDropped uint64
	BytesWritten uint64
}

// Bridge owns a PTY pair and copies queued lines to its master side
type Bridge struct {
	logger  *logrus.Logger
	master  *os.File
	slave   *os.File
	ttyName string
	link    string

	buf    *ringbuffer.RingBuffer
	notify chan struct{}

	linesQueued  atomic.Uint64
	linesDropped atomic.Uint64
	bytesDropped atomic.Uint64
	bytesWritten atomic.Uint64

	mu      sync.Mutex
	started bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Open creates the PTY pair, switches the slave to raw mode and creates the link
func Open(opts Options) (*Bridge, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	master, slave, err := createPTY()
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		logger:  logger,
		master:  master,
		slave:   slave,
		ttyName: slave.Name(),
		buf:     ringbuffer.New(size),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if opts.Link != "" {
		if err := createLink(b.ttyName, opts.Link); err != nil {
			_ = master.Close()
			_ = slave.Close()
			return nil, err
		}
		b.link = opts.Link
	}

	logger.WithFields(logrus.Fields{
		"tty":  b.ttyName,
		"link": b.link,
	}).Info("Serial bridge opened")
	return b, nil
}

func createPTY() (master *os.File, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		path := slave.Name()
		closeErr := errors.Join(master.Close(), slave.Close())
		if closeErr != nil {
			return nil, nil, fmt.Errorf("failed to set PTY(tty) %s to raw mode: %w (cleanup errors: %v)", path, err, closeErr)
		}
		return nil, nil, fmt.Errorf("failed to set PTY(tty) %s to raw mode: %w", path, err)
	}
	return master, slave, nil
}

// createLink points link at target, replacing a stale symlink but never a regular file
func createLink(target, link string) error {
	if fi, err := os.Lstat(link); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("cannot create link %s: path exists and is not a symlink", link)
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove stale link %s: %w", link, err)
		}
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create link %s: %w", link, err)
	}
	return nil
}

// TTYName returns the slave device path, e.g. /dev/pts/5
func (b *Bridge) TTYName() string {
	return b.ttyName
}

// Link returns the symlink path, empty when none was requested
func (b *Bridge) Link() string {
	return b.link
}

// Start launches the writer goroutine
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return os.ErrClosed
	}
	if b.started {
		return errors.New("serial bridge already started")
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	master := b.master
	groutine.GoSafe(ctx, "pty-write-loop", b.logger, func(ctx context.Context) {
		defer close(b.done)
		b.writeLoop(ctx, master)
	})
	return nil
}

func (b *Bridge) writeLoop(ctx context.Context, master *os.File) {
	chunk := make([]byte, 1024)
	for {
		if b.buf.IsEmpty() {
			select {
			case <-ctx.Done():
				return
			case <-b.notify:
			}
		}

		n, err := b.buf.TryRead(chunk)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			b.logger.WithError(err).Warn("Serial bridge queue read failed")
			continue
		}
		for offset := 0; offset < n; {
			written, err := master.Write(chunk[offset:n])
			offset += written
			b.bytesWritten.Add(uint64(written))
			if err != nil {
				if !errors.Is(err, os.ErrClosed) {
					b.logger.WithError(err).Warn("Serial bridge write failed")
				}
				return
			}
		}
	}
}

// WriteLine queues line followed by a newline. It reports false when the line
// was dropped because the queue is full or the bridge is closed.
func (b *Bridge) WriteLine(line string) bool {
	if b.closed.Load() {
		return false
	}
	data := []byte(line + "\n")
	if b.buf.Free() < len(data) {
		b.linesDropped.Add(1)
		b.bytesDropped.Add(uint64(len(data)))
		b.logger.WithField("bytes", len(data)).Debug("Serial bridge queue full, line dropped")
		return false
	}
	if _, err := b.buf.Write(data); err != nil {
		b.linesDropped.Add(1)
		b.bytesDropped.Add(uint64(len(data)))
		return false
	}
	b.linesQueued.Add(1)
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Stats returns a snapshot of the counters
func (b *Bridge) Stats() Stats {
	return Stats{
		QueueLen:     b.buf.Length(),
		QueueCap:     b.buf.Capacity(),
		LinesQueued:  b.linesQueued.Load(),
		LinesDropped: b.linesDropped.Load(),
		BytesDropped: b.bytesDropped.Load(),
		BytesWritten: b.bytesWritten.Load(),
	}
}

// Stop implements monitor.Service
func (b *Bridge) Stop() error {
	return b.Close()
}

// Close stops the writer, removes the link and closes both ends
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	started := b.started
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	var errs []error
	if err := b.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY(ptyx): %w", err))
	}
	if err := b.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY(tty): %w", err))
	}

	if started {
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
			b.logger.WithField("tty", b.ttyName).Error("Serial bridge writer did not exit")
		}
	}

	if b.link != "" {
		if err := os.Remove(b.link); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove link %s: %w", b.link, err))
		}
	}
	return errors.Join(errs...)
}
