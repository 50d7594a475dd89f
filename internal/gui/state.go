// Package gui is the desktop shell: a Gio window with a Read button, the
// latest value, a status line and the rolling chart.
package gui

import (
	"fmt"
	"image"
	"time"

	"github.com/srg/hrmon/internal/monitor"
)

// Title is the window title
const Title = "Patient Monitoring App"

// ChartSource renders the history chart
type ChartSource interface {
	Chart(width, height int) image.Image
}

// viewState is what the window shows; it is owned by the window loop
type viewState struct {
	value   string
	anomaly bool
	status  string
	pending bool
}

func newViewState() *viewState {
	return &viewState{value: "--", status: "Press Read to fetch a heart rate"}
}

func (v *viewState) requested() {
	v.pending = true
	v.status = "Reading…"
}

func (v *viewState) apply(ev monitor.Event) {
	v.pending = false
	if ev.Failed() {
		v.status = "Error: " + ev.Err.Error()
		return
	}
	r := ev.Result
	v.value = fmt.Sprintf("%d bpm", r.Value)
	v.anomaly = r.Anomaly
	at := r.ReadAt
	if at.IsZero() {
		at = ev.At
	}
	if r.Anomaly {
		v.status = fmt.Sprintf("Anomaly detected at %s", at.Format(time.TimeOnly))
	} else {
		v.status = fmt.Sprintf("Last reading at %s", at.Format(time.TimeOnly))
	}
}
