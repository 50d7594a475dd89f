package ptyio

import (
	"fmt"
	"strings"
	"time"

	"github.com/srg/hrmon/internal/monitor"
)

// FormatEvent renders one event as a tab separated line:
//
//	2025-03-01T12:00:00Z	60	ok
//	2025-03-01T12:00:05Z	200	ANOMALY
//	2025-03-01T12:00:10Z	ERROR	unreachable: device "AA:BB:CC:DD:EE:FF"
func FormatEvent(ev monitor.Event) string {
	at := ev.At
	if !ev.Failed() && !ev.Result.ReadAt.IsZero() {
		at = ev.Result.ReadAt
	}
	ts := at.UTC().Format(time.RFC3339)

	if ev.Failed() {
		msg := strings.NewReplacer("\n", " ", "\t", " ").Replace(ev.Err.Error())
		return fmt.Sprintf("%s\tERROR\t%s", ts, msg)
	}
	status := "ok"
	if ev.Result.Anomaly {
		status = "ANOMALY"
	}
	return fmt.Sprintf("%s\t%d\t%s", ts, ev.Result.Value, status)
}

// Observe writes ev to the bridge; it matches monitor.App.Observe
func (b *Bridge) Observe(ev monitor.Event) {
	b.WriteLine(FormatEvent(ev))
}
