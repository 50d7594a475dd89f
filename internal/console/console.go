// Package console is the terminal shell. It prints one line per event and
// maps single key presses to actions: r reads, q or Ctrl-C quits.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/groutine"
	"github.com/srg/hrmon/internal/monitor"
	"golang.org/x/term"
)

const (
	keyRead  = 'r'
	keyQuit  = 'q'
	keyCtrlC = 0x03
)

// Help is printed when the shell starts
const Help = "Press r to read the sensor, q to quit"

// Options configures a Console
type Options struct {
	In     io.Reader // nil = os.Stdin
	Out    io.Writer // nil = os.Stdout
	Colors bool
	Logger *logrus.Logger
}

// Console is a monitor.Shell rendering to a terminal
type Console struct {
	in     io.Reader
	out    io.Writer
	logger *logrus.Logger

	eol     string
	value   *color.Color
	anomaly *color.Color
	failure *color.Color
	dim     *color.Color
}

// New creates a console shell
func New(opts Options) *Console {
	c := &Console{
		in:     opts.In,
		out:    opts.Out,
		logger: opts.Logger,
		eol:    "\n",

		value:   color.New(color.FgGreen, color.Bold),
		anomaly: color.New(color.FgRed, color.Bold),
		failure: color.New(color.FgYellow),
		dim:     color.New(color.Faint),
	}
	if c.in == nil {
		c.in = os.Stdin
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.logger == nil {
		c.logger = logrus.New()
	}
	for _, col := range []*color.Color{c.value, c.anomaly, c.failure, c.dim} {
		if opts.Colors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Run renders events until q is pressed, the input ends with Ctrl-C, the
// event channel closes or ctx is cancelled
func (c *Console) Run(ctx context.Context, events <-chan monitor.Event, request func()) error {
	restore := c.enterRawMode()
	defer restore()

	quit := make(chan struct{})
	groutine.GoSafe(ctx, "console-input", c.logger, func(ctx context.Context) {
		c.readKeys(ctx, request, quit)
	})

	c.println(c.dim.Sprint(Help))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-quit:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.println(c.Render(ev))
		}
	}
}

// Render formats one event as a single line
func (c *Console) Render(ev monitor.Event) string {
	if ev.Failed() {
		return fmt.Sprintf("%s %s", c.timestamp(ev.At), c.failure.Sprintf("ERROR: %v", ev.Err))
	}
	r := ev.Result
	at := r.ReadAt
	if at.IsZero() {
		at = ev.At
	}
	if r.Anomaly {
		return fmt.Sprintf("%s %s %s", c.timestamp(at), c.anomaly.Sprintf("%3d bpm", r.Value), c.anomaly.Sprint("ANOMALY"))
	}
	return fmt.Sprintf("%s %s", c.timestamp(at), c.value.Sprintf("%3d bpm", r.Value))
}

func (c *Console) timestamp(t time.Time) string {
	return c.dim.Sprintf("[%s]", t.Format(time.TimeOnly))
}

func (c *Console) println(line string) {
	fmt.Fprint(c.out, line+c.eol)
}

// enterRawMode switches a terminal stdin to raw mode so keys arrive unbuffered
func (c *Console) enterRawMode() func() {
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	state, err := term.MakeRaw(int(f.Fd()))
	if err != nil {
		c.logger.WithError(err).Warn("Failed to switch terminal to raw mode")
		return func() {}
	}
	// raw mode disables output post-processing
	c.eol = "\r\n"
	return func() {
		if err := term.Restore(int(f.Fd()), state); err != nil {
			c.logger.WithError(err).Warn("Failed to restore terminal")
		}
	}
}

func (c *Console) readKeys(ctx context.Context, request func(), quit chan<- struct{}) {
	reader := bufio.NewReader(c.in)
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			if err != io.EOF {
				c.logger.WithError(err).Debug("Console input closed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		switch strings.ToLower(string(r)) {
		case string(keyRead):
			request()
		case string(keyQuit), string(rune(keyCtrlC)):
			close(quit)
			return
		}
	}
}
