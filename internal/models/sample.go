package models

import (
	"errors"
	"math"
	"time"
)

// Vector3 is a three-axis reading (rad/s for rotation rate, g for accelerations).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) finite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// OrientationSample is one decoded head-orientation frame. Angles are in degrees.
type OrientationSample struct {
	Pitch            float64   `json:"pitch"`
	Roll             float64   `json:"roll"`
	Yaw              float64   `json:"yaw"`
	RotationRate     Vector3   `json:"rotation_rate"`
	UserAcceleration Vector3   `json:"user_acceleration"`
	Gravity          Vector3   `json:"gravity"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// Validate rejects samples carrying NaN or infinite values.
func (s *OrientationSample) Validate() error {
	if !isFinite(s.Pitch) || !isFinite(s.Roll) || !isFinite(s.Yaw) {
		return errors.New("orientation angles must be finite")
	}
	if !s.RotationRate.finite() {
		return errors.New("rotation rate must be finite")
	}
	if !s.UserAcceleration.finite() {
		return errors.New("user acceleration must be finite")
	}
	if !s.Gravity.finite() {
		return errors.New("gravity must be finite")
	}
	return nil
}

// RadiansToDegrees converts the three attitude angles of s from radians to degrees.
func (s OrientationSample) RadiansToDegrees() OrientationSample {
	s.Pitch = s.Pitch * 180 / math.Pi
	s.Roll = s.Roll * 180 / math.Pi
	s.Yaw = s.Yaw * 180 / math.Pi
	return s
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
