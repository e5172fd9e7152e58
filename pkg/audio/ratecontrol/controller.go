// ABOUTME: Proportional resample ratio controller
// ABOUTME: Steers driver buffer occupancy toward half full
package ratecontrol

// DefaultDelta is the controller gain used when none is configured
const DefaultDelta = 0.005

// Adjust returns the ratio multiplier for a driver with avail free out of bufferSize.
// A half-full buffer yields 1; empty yields 1+delta, full 1-delta.
func Adjust(avail, bufferSize int, delta float64) float64 {
	half := bufferSize / 2
	if half <= 0 {
		return 1
	}
	direction := float64(avail-half) / float64(half)
	return 1 + delta*direction
}

// Controller tracks the current ratio for one pipeline
type Controller struct {
	original float64
	delta    float64
	current  float64
	ring     *SaturationRing
}

// NewController creates a controller around the nominal output/input ratio.
// ring may be nil when no statistics are wanted.
func NewController(original, delta float64, ring *SaturationRing) *Controller {
	return &Controller{
		original: original,
		delta:    delta,
		current:  original,
		ring:     ring,
	}
}

// Update feeds one free-space reading and returns the new ratio
func (c *Controller) Update(avail, bufferSize int) float64 {
	if c.ring != nil {
		c.ring.Record(avail)
	}
	c.current = c.original * Adjust(avail, bufferSize, c.delta)
	return c.current
}

// Ratio returns the ratio set by the last update
func (c *Controller) Ratio() float64 {
	return c.current
}

// Original returns the nominal output/input ratio
func (c *Controller) Original() float64 {
	return c.original
}

// Delta returns the controller gain
func (c *Controller) Delta() float64 {
	return c.delta
}

// Ring returns the saturation log fed by Update
func (c *Controller) Ring() *SaturationRing {
	return c.ring
}
