package monitor

import "math"

// DefaultAlpha is the smoothing factor applied to pitch.
const DefaultAlpha = 0.2

// LowPass blends current into previous: previous*(1-alpha) + current*alpha.
// The result always lies between previous and current.
func LowPass(current, previous, alpha float64) float64 {
	v := previous + alpha*(current-previous)
	lo, hi := math.Min(previous, current), math.Max(previous, current)
	return math.Min(math.Max(v, lo), hi)
}

// Filter is LowPass with DefaultAlpha. Only pitch goes through it; roll and yaw
// are used raw so lateral tilt reads instantly.
func Filter(current, previous float64) float64 {
	return LowPass(current, previous, DefaultAlpha)
}
