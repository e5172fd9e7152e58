// ABOUTME: Interpolating resamplers (nearest, linear, cubic Hermite)
// ABOUTME: Each keeps a few frames of history so chunk boundaries stay continuous
package resample

import "math"

// window views the last few frames of the previous call followed by the
// current input as one contiguous sequence of frames.
type window struct {
	hist     []float32 // histFrames * channels
	src      []float32
	channels int
}

func (w *window) at(frame, ch int) float32 {
	histFrames := len(w.hist) / w.channels
	if frame < histFrames {
		return w.hist[frame*w.channels+ch]
	}
	return w.src[(frame-histFrames)*w.channels+ch]
}

// keep copies the last len(hist) samples of the window into hist
func (w *window) keep() {
	n := len(w.hist)
	if len(w.src) >= n {
		copy(w.hist, w.src[len(w.src)-n:])
		return
	}
	shift := len(w.src)
	copy(w.hist, w.hist[shift:])
	copy(w.hist[n-shift:], w.src)
}

// interpolator carries the fractional read position and the history window
type interpolator struct {
	channels int
	hist     []float32
	pos      float64 // read position in window frames
	start    float64 // position after Reset
	lead     int     // frames needed after floor(pos)
	kernel   func(w *window, i int, frac float64, ch int) float32
}

func newInterpolator(channels, histFrames, lead int, start float64,
	kernel func(w *window, i int, frac float64, ch int) float32) *interpolator {
	return &interpolator{
		channels: channels,
		hist:     make([]float32, histFrames*channels),
		pos:      start,
		start:    start,
		lead:     lead,
		kernel:   kernel,
	}
}

func (r *interpolator) Process(dst, src []float32, ratio float64) int {
	if len(src) < r.channels || ratio <= 0 {
		return 0
	}

	src = src[:len(src)-len(src)%r.channels]
	w := window{hist: r.hist, src: src, channels: r.channels}
	histFrames := len(r.hist) / r.channels
	total := histFrames + len(src)/r.channels
	step := 1.0 / ratio

	out := 0
	for {
		i := int(r.pos)
		if i+r.lead >= total || out+r.channels > len(dst) {
			break
		}
		frac := r.pos - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			dst[out+ch] = r.kernel(&w, i, frac, ch)
		}
		out += r.channels
		r.pos += step
	}

	consumed := float64(total - histFrames)
	r.pos -= consumed
	if r.pos < 0 {
		// only reachable when dst filled up before the input was used
		r.pos = r.start
	}
	w.keep()

	return out
}

func (r *interpolator) Reset() {
	for i := range r.hist {
		r.hist[i] = 0
	}
	r.pos = r.start
}

func (r *interpolator) Close() {
	r.hist = nil
}

func newNearest(channels int, _ float64, _ Quality) (Resampler, error) {
	return newInterpolator(channels, 1, 1, 0, func(w *window, i int, frac float64, ch int) float32 {
		if frac >= 0.5 {
			return w.at(i+1, ch)
		}
		return w.at(i, ch)
	}), nil
}

func newLinear(channels int, _ float64, _ Quality) (Resampler, error) {
	return newInterpolator(channels, 1, 1, 0, func(w *window, i int, frac float64, ch int) float32 {
		s1 := float64(w.at(i, ch))
		s2 := float64(w.at(i+1, ch))
		return float32(s1*(1.0-frac) + s2*frac)
	}), nil
}

// Hermite basis coefficients
const (
	hermiteHalf       = 0.5
	hermiteOneHalf    = 1.5
	hermiteTwoAndHalf = 2.5
)

func newCubic(channels int, _ float64, _ Quality) (Resampler, error) {
	// window index 0 is y0, interpolation runs between i and i+1 so i starts at 1
	return newInterpolator(channels, 3, 2, 1, func(w *window, i int, frac float64, ch int) float32 {
		y0 := float64(w.at(i-1, ch))
		y1 := float64(w.at(i, ch))
		y2 := float64(w.at(i+1, ch))
		y3 := float64(w.at(i+2, ch))

		a := -hermiteHalf*y0 + hermiteOneHalf*y1 - hermiteOneHalf*y2 + hermiteHalf*y3
		b := y0 - hermiteTwoAndHalf*y1 + 2*y2 - hermiteHalf*y3
		c := -hermiteHalf*y0 + hermiteHalf*y2
		d := y1

		return float32(math.FMA(math.FMA(math.FMA(a, frac, b), frac, c), frac, d))
	}), nil
}
