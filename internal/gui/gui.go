//go:build !nogui

package gui

import (
	"context"
	"image/color"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/monitor"
)

// Available reports whether the binary was built with the desktop shell
const Available = true

var anomalyColor = color.NRGBA{R: 0xd1, G: 0x1f, B: 0x1f, A: 0xff}

// Main runs the toolkit loop; it must be called from the main goroutine and never returns
func Main() {
	app.Main()
}

// Shell is a monitor.Shell backed by a Gio window
type Shell struct {
	chart  ChartSource
	logger *logrus.Logger
}

// New creates the desktop shell; chart may be nil
func New(chart ChartSource, logger *logrus.Logger) (*Shell, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return &Shell{chart: chart, logger: logger}, nil
}

// Run opens the window and blocks until it is closed or ctx ends
func (s *Shell) Run(ctx context.Context, events <-chan monitor.Event, request func()) error {
	w := new(app.Window)
	w.Option(app.Title(Title), app.Size(unit.Dp(480), unit.Dp(420)))

	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))

	winEvents := make(chan event.Event)
	ack := make(chan struct{})
	go func() {
		for {
			ev := w.Event()
			winEvents <- ev
			<-ack
			if _, ok := ev.(app.DestroyEvent); ok {
				return
			}
		}
	}()

	var (
		ops   op.Ops
		read  widget.Clickable
		state = newViewState()
		done  = ctx.Done()
	)
	for {
		select {
		case <-done:
			done = nil
			w.Perform(system.ActionClose)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			state.apply(ev)
			w.Invalidate()
		case e := <-winEvents:
			switch e := e.(type) {
			case app.DestroyEvent:
				ack <- struct{}{}
				s.logger.Debug("Window closed")
				return e.Err
			case app.FrameEvent:
				gtx := app.NewContext(&ops, e)
				for read.Clicked(gtx) {
					request()
					state.requested()
				}
				s.layout(gtx, th, &read, state)
				e.Frame(gtx.Ops)
			}
			ack <- struct{}{}
		}
	}
}

func (s *Shell) layout(gtx layout.Context, th *material.Theme, read *widget.Clickable, state *viewState) layout.Dimensions {
	inset := layout.UniformInset(unit.Dp(8))
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return inset.Layout(gtx, material.H6(th, Title).Layout)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			lbl := material.H2(th, state.value)
			if state.anomaly {
				lbl.Color = anomalyColor
			}
			return inset.Layout(gtx, lbl.Layout)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return inset.Layout(gtx, material.Body2(th, state.status).Layout)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			btn := material.Button(th, read, "Read")
			return inset.Layout(gtx, btn.Layout)
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			if s.chart == nil {
				return layout.Dimensions{Size: gtx.Constraints.Min}
			}
			size := gtx.Constraints.Max
			if size.X <= 0 || size.Y <= 0 {
				return layout.Dimensions{}
			}
			img := s.chart.Chart(size.X, size.Y)
			return widget.Image{
				Src: paint.NewImageOp(img),
				Fit: widget.Contain,
			}.Layout(gtx)
		}),
	)
}
