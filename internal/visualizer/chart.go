package visualizer

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/srg/hrmon/internal/reading"
)

// Chart colors
var (
	BackgroundColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	BandColor       = color.RGBA{R: 0xfd, G: 0xe4, B: 0xe4, A: 0xff}
	GuideColor      = color.RGBA{R: 0xbb, G: 0xbb, B: 0xbb, A: 0xff}
	LineColor       = color.RGBA{R: 0x1f, G: 0x6f, B: 0xd1, A: 0xff}
	AnomalyColor    = color.RGBA{R: 0xd1, G: 0x1f, B: 0x1f, A: 0xff}
)

// chartMargin is the headroom kept above and below the normal range
const chartMargin = 10

// Chart renders the history as a line chart. Values outside the normal range
// fall in a shaded band and anomalous samples are marked.
func (v *Visualizer) Chart(width, height int) image.Image {
	if width < 2 {
		width = 2
	}
	if height < 2 {
		height = 2
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: BackgroundColor}, image.Point{}, draw.Src)

	samples := v.Samples()
	sc := newScale(v.rng, samples, height)

	// shaded anomaly band above max and below min
	top := sc.y(uint64(v.rng.Max))
	bottom := sc.y(uint64(v.rng.Min))
	band := &image.Uniform{C: BandColor}
	draw.Draw(img, image.Rect(0, 0, width, top), band, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, bottom+1, width, height), band, image.Point{}, draw.Src)
	for x := 0; x < width; x++ {
		img.SetRGBA(x, top, GuideColor)
		img.SetRGBA(x, bottom, GuideColor)
	}

	if len(samples) == 0 {
		return img
	}

	step := 0.0
	if len(samples) > 1 {
		step = float64(width-1) / float64(len(samples)-1)
	}
	px := func(i int) int { return int(float64(i)*step + 0.5) }

	for i := 1; i < len(samples); i++ {
		drawLine(img, px(i-1), sc.y(samples[i-1].Value), px(i), sc.y(samples[i].Value), LineColor)
	}
	for i, s := range samples {
		if s.Anomaly {
			mark(img, px(i), sc.y(s.Value), AnomalyColor)
		}
	}
	return img
}

// scale maps values onto image rows; larger values are higher up
type scale struct {
	lo, hi float64
	height int
}

func newScale(rng reading.Range, samples []Sample, height int) scale {
	lo, hi := float64(rng.Min)-chartMargin, float64(rng.Max)+chartMargin
	if lo < 0 {
		lo = 0
	}
	for _, s := range samples {
		if v := float64(s.Value); v < lo {
			lo = v
		} else if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		hi = lo + 1
	}
	return scale{lo: lo, hi: hi, height: height}
}

func (s scale) y(v uint64) int {
	frac := (float64(v) - s.lo) / (s.hi - s.lo)
	y := int(float64(s.height-1)*(1-frac) + 0.5)
	if y < 0 {
		return 0
	}
	if y > s.height-1 {
		return s.height - 1
	}
	return y
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func mark(img *image.RGBA, x, y int, c color.RGBA) {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			img.SetRGBA(x+dx, y+dy, c)
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
