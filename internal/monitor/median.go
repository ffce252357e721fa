package monitor

import (
	"sort"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Median returns the median of values without modifying them. Even counts
// average the two middle elements. ok is false for an empty slice.
func Median(values []float64) (median float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// ComputeBaseline takes the median of the pitch and roll windows, falling back to
// the current reading when a window is empty.
func ComputeBaseline(pitches, rolls []float64, currentPitch, currentRoll float64) models.Baseline {
	b := models.Baseline{ReferencePitch: currentPitch, ReferenceRoll: currentRoll}
	if p, ok := Median(pitches); ok {
		b.ReferencePitch = p
	}
	if r, ok := Median(rolls); ok {
		b.ReferenceRoll = r
	}
	return b
}
