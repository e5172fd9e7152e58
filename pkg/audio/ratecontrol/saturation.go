// ABOUTME: Fixed-capacity log of driver free-space readings
// ABOUTME: Summarizes mean fill, deviation and time spent near the water marks
package ratecontrol

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// DefaultRingCapacity is the number of readings kept for the close-time summary
const DefaultRingCapacity = 1024

// minSummarySamples is the number of retained readings (seed included) needed for a summary
const minSummarySamples = 3

// ErrCapacity is returned when a ring capacity is not a positive power of two
var ErrCapacity = errors.New("ring capacity must be a positive power of two")

// SaturationSample is a single free-space reading and its ring index
type SaturationSample struct {
	Index uint64
	Free  int
}

// SaturationRing keeps the most recent free-space readings.
// The very first reading is taken before the driver has settled and is
// left out of every summary.
type SaturationRing struct {
	samples []int
	scratch []float64
	mask    uint64
	count   uint64
}

// NewSaturationRing creates a ring holding capacity readings
func NewSaturationRing(capacity int) (*SaturationRing, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	return &SaturationRing{
		samples: make([]int, capacity),
		scratch: make([]float64, 0, capacity),
		mask:    uint64(capacity - 1),
	}, nil
}

// Record appends a free-space reading, overwriting the oldest once full
func (r *SaturationRing) Record(free int) {
	r.samples[r.count&r.mask] = free
	r.count++
}

// Capacity returns the fixed ring size
func (r *SaturationRing) Capacity() int {
	return len(r.samples)
}

// Count returns the number of readings ever recorded
func (r *SaturationRing) Count() uint64 {
	return r.count
}

// Len returns the number of readings currently retained
func (r *SaturationRing) Len() int {
	if r.count > uint64(len(r.samples)) {
		return len(r.samples)
	}
	return int(r.count)
}

// Last returns the most recent reading
func (r *SaturationRing) Last() (SaturationSample, bool) {
	if r.count == 0 {
		return SaturationSample{}, false
	}
	idx := r.count - 1
	return SaturationSample{Index: idx, Free: r.samples[idx&r.mask]}, true
}

// Samples returns the retained readings, oldest first, seed included
func (r *SaturationRing) Samples() []SaturationSample {
	n := r.Len()
	out := make([]SaturationSample, 0, n)
	for idx := r.count - uint64(n); idx < r.count; idx++ {
		out = append(out, SaturationSample{Index: idx, Free: r.samples[idx&r.mask]})
	}
	return out
}

// Reset forgets all readings
func (r *SaturationRing) Reset() {
	r.count = 0
}

// window fills scratch with the readings that take part in a summary
func (r *SaturationRing) window() []float64 {
	x := r.scratch[:0]
	first := r.count - uint64(r.Len())
	if first == 0 {
		// the seed reading is still retained
		first = 1
	}
	for idx := first; idx < r.count; idx++ {
		x = append(x, float64(r.samples[idx&r.mask]))
	}
	return x
}

// Summary describes how full the driver buffer ran
type Summary struct {
	Samples      int     // readings used
	MeanFill     float64 // 0..1, average fraction of the buffer in use
	Deviation    float64 // standard deviation of the fill, as a fraction of the buffer
	NearUnderrun float64 // fraction of readings with at least 3/4 of the buffer free
	NearOverrun  float64 // fraction of readings with at most 1/4 of the buffer free
}

// Summarize computes fill statistics against a buffer of bufferFrames.
// It reports false when fewer than three readings are retained.
//
// The deviation divides by (retained readings - 2) while the seed is retained,
// i.e. the seed is excluded from the sum and again from the divisor. This matches
// the historical saturation report and is kept as is.
func (r *SaturationRing) Summarize(bufferFrames int) (Summary, bool) {
	if r.Len() < minSummarySamples || bufferFrames <= 0 {
		return Summary{}, false
	}

	x := r.window()
	mean, std := stat.MeanStdDev(x, nil)
	capacity := float64(bufferFrames)

	lowWater := bufferFrames * 3 / 4
	highWater := bufferFrames / 4

	var low, high int
	for _, v := range x {
		free := int(v)
		if free >= lowWater {
			low++
		} else if free <= highWater {
			high++
		}
	}

	n := float64(len(x))
	return Summary{
		Samples:      len(x),
		MeanFill:     1 - mean/capacity,
		Deviation:    std / capacity,
		NearUnderrun: float64(low) / n,
		NearOverrun:  float64(high) / n,
	}, true
}

func (s Summary) String() string {
	return fmt.Sprintf("Average audio buffer saturation: %.2f %%, standard deviation (percentage points): %.2f %%. "+
		"Amount of time spent close to underrun: %.2f %%. Close to blocking: %.2f %%.",
		s.MeanFill*100, s.Deviation*100, s.NearUnderrun*100, s.NearOverrun*100)
}
