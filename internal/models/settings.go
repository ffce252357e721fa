package models

import (
	"errors"
	"math"
)

// Durable setting keys.
const (
	SettingPoorPostureThreshold = "poorPostureThresholdDeg"
	SettingWarningThreshold     = "warningThresholdDeg"
	SettingRollThreshold        = "rollThresholdDeg"
	SettingReferencePitch       = "referencePitchDeg"
	SettingReferenceRoll        = "referenceRollDeg"
)

// Documented threshold ranges in degrees.
const (
	PoorPostureThresholdMin = -45.0
	PoorPostureThresholdMax = 0.0
	WarningThresholdMin     = 0.0
	WarningThresholdMax     = 45.0
	RollThresholdMin        = 0.0
	RollThresholdMax        = 45.0
)

// Thresholds are the user-configurable bounds relative to the baseline.
//
//	PoorPosture <= 0 <= Warning, Roll >= 0
type Thresholds struct {
	PoorPosture float64 `json:"poor_posture_threshold"`
	Warning     float64 `json:"warning_threshold"`
	Roll        float64 `json:"roll_threshold"`
}

// Validate reports whether t lies inside the documented ranges.
func (t *Thresholds) Validate() error {
	if math.IsNaN(t.PoorPosture) || t.PoorPosture < PoorPostureThresholdMin || t.PoorPosture > PoorPostureThresholdMax {
		return errors.New("poor posture threshold must be between -45 and 0")
	}
	if math.IsNaN(t.Warning) || t.Warning < WarningThresholdMin || t.Warning > WarningThresholdMax {
		return errors.New("warning threshold must be between 0 and 45")
	}
	if math.IsNaN(t.Roll) || t.Roll < RollThresholdMin || t.Roll > RollThresholdMax {
		return errors.New("roll threshold must be between 0 and 45")
	}
	return nil
}

// Clamp returns t with every bound forced into its documented range.
func (t Thresholds) Clamp() Thresholds {
	return Thresholds{
		PoorPosture: ClampPoorPosture(t.PoorPosture),
		Warning:     ClampWarning(t.Warning),
		Roll:        ClampRoll(t.Roll),
	}
}

func ClampPoorPosture(v float64) float64 {
	return clamp(v, PoorPostureThresholdMin, PoorPostureThresholdMax)
}

func ClampWarning(v float64) float64 {
	return clamp(v, WarningThresholdMin, WarningThresholdMax)
}

func ClampRoll(v float64) float64 {
	return clamp(v, RollThresholdMin, RollThresholdMax)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// Baseline is the calibrated neutral orientation.
type Baseline struct {
	ReferencePitch float64 `json:"reference_pitch"`
	ReferenceRoll  float64 `json:"reference_roll"`
}

// Settings groups every durable scalar.
type Settings struct {
	Thresholds Thresholds `json:"thresholds"`
	Baseline   Baseline   `json:"baseline"`
}

// DefaultSettings returns -15°, 1°, 1° thresholds and a zero baseline.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: Thresholds{PoorPosture: -15, Warning: 1, Roll: 1},
	}
}

// Values flattens s into its durable key/value form.
func (s Settings) Values() map[string]float64 {
	return map[string]float64{
		SettingPoorPostureThreshold: s.Thresholds.PoorPosture,
		SettingWarningThreshold:     s.Thresholds.Warning,
		SettingRollThreshold:        s.Thresholds.Roll,
		SettingReferencePitch:       s.Baseline.ReferencePitch,
		SettingReferenceRoll:        s.Baseline.ReferenceRoll,
	}
}

// Set assigns a single durable value by key. It reports false for unknown keys.
func (s *Settings) Set(key string, value float64) bool {
	switch key {
	case SettingPoorPostureThreshold:
		s.Thresholds.PoorPosture = value
	case SettingWarningThreshold:
		s.Thresholds.Warning = value
	case SettingRollThreshold:
		s.Thresholds.Roll = value
	case SettingReferencePitch:
		s.Baseline.ReferencePitch = value
	case SettingReferenceRoll:
		s.Baseline.ReferenceRoll = value
	default:
		return false
	}
	return true
}
