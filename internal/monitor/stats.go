package monitor

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Summarize computes display statistics for a history window.
func Summarize(values []float64) models.HistoryStats {
	s := models.HistoryStats{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	if len(values) == 1 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}
