package visualizer_test

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/srg/hrmon/internal/monitor"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/srg/hrmon/internal/visualizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func result(v reading.Reading, i int) monitor.Result {
	return monitor.Result{
		Raw:     v,
		Value:   v,
		Anomaly: !reading.DefaultRange().Contains(v),
		ReadAt:  baseTime.Add(time.Duration(i) * time.Second),
		Address: "AA:BB:CC:DD:EE:FF",
	}
}

func newVisualizer(t *testing.T, history int) *visualizer.Visualizer {
	helper := testutils.NewTestHelper(t)
	return visualizer.New(visualizer.Config{History: history}, reading.DefaultRange(), helper.Logger)
}

func TestPublishAndSamples(t *testing.T) {
	vis := newVisualizer(t, 8)

	_, ok := vis.Latest()
	assert.False(t, ok, "empty history MUST have no latest sample")

	vis.Publish(result(60, 0))
	vis.Publish(result(200, 1))

	samples := vis.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, uint64(60), samples[0].Value)
	assert.True(t, samples[1].Anomaly)

	latest, ok := vis.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(200), latest.Value)
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	vis := newVisualizer(t, 4)

	for i := 0; i < 10; i++ {
		vis.Publish(result(reading.Reading(60+i), i))
		vis.Flush()
	}

	samples := vis.Samples()
	require.Len(t, samples, 4)
	assert.Equal(t, uint64(66), samples[0].Value)
	assert.Equal(t, uint64(69), samples[3].Value)
}

func TestObserveSkipsFailures(t *testing.T) {
	vis := newVisualizer(t, 8)

	vis.Observe(monitor.Event{Err: errors.New("unreachable")})
	vis.Observe(monitor.Event{Result: result(72, 0)})

	samples := vis.Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, uint64(72), samples[0].Value)
}

func TestPublishNeverBlocks(t *testing.T) {
	// GOAL: a stalled renderer never holds up the worker
	//
	// TEST SCENARIO: nobody drains → many publishes return quickly → oldest are overwritten
	vis := newVisualizer(t, 8)

	start := time.Now()
	for i := 0; i < 1000; i++ {
		vis.Publish(result(60, i))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, vis.Dropped(), "overflow MUST overwrite queued samples")
	assert.LessOrEqual(t, len(vis.Samples()), 8)
}

func TestDrainGoroutine(t *testing.T) {
	vis := newVisualizer(t, 8)
	require.NoError(t, vis.Start(context.Background()))
	defer vis.Stop()

	vis.Publish(result(80, 0))
	require.Eventually(t, func() bool {
		_, ok := vis.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, vis.Stop())
	assert.NoError(t, vis.Stop(), "Stop MUST be idempotent")
}

func TestChart(t *testing.T) {
	vis := newVisualizer(t, 8)

	img := vis.Chart(200, 100)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	rgba := func(x, y int) color.RGBA {
		return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
	}
	assert.Equal(t, visualizer.BandColor, rgba(10, 0), "area above max MUST be shaded")
	assert.Equal(t, visualizer.BandColor, rgba(10, 99), "area below min MUST be shaded")
	assert.Equal(t, visualizer.BackgroundColor, rgba(10, 50), "normal range MUST be clear")

	vis.Publish(result(110, 0))
	vis.Publish(result(110, 1))
	vis.Publish(result(250, 2))

	img = vis.Chart(200, 100)
	assert.Equal(t, visualizer.LineColor, color.RGBAModel.Convert(img.At(50, rowOf(110, 250))).(color.RGBA),
		"flat segment MUST be drawn at its value")
	assert.Equal(t, visualizer.AnomalyColor, color.RGBAModel.Convert(img.At(199, 0)).(color.RGBA),
		"anomalous sample MUST be marked")
}

// rowOf mirrors the chart scale for a 100 pixel high image of the default range
func rowOf(v, maxSample float64) int {
	lo, hi := 30.0, 190.0
	if maxSample > hi {
		hi = maxSample
	}
	return int(99*(1-(v-lo)/(hi-lo)) + 0.5)
}

func TestChartDegenerateSize(t *testing.T) {
	vis := newVisualizer(t, 8)
	img := vis.Chart(0, 0)
	assert.Equal(t, 2, img.Bounds().Dx())
}
