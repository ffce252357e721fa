// Package models defines the posture domain entities: samples, thresholds, posture
// states, published snapshots, alert events and session records.
package models

import (
	"errors"
	"time"
)

// AlertEvent is emitted when the posture state escalates into Alert and the
// cooldown gate lets the notification through.
type AlertEvent struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Pitch      float64       `json:"pitch"`
	Roll       float64       `json:"roll"`
	Duration   time.Duration `json:"duration"`
	Baseline   Baseline      `json:"baseline"`
	DetectedAt time.Time     `json:"detected_at"`
	Notified   bool          `json:"notified"`
}

// Validate checks alert event field constraints.
func (a *AlertEvent) Validate() error {
	if a.ID == "" {
		return errors.New("alert ID must not be empty")
	}
	if a.SessionID == "" {
		return errors.New("session ID must not be empty")
	}
	if a.Duration < 0 {
		return errors.New("alert duration must not be negative")
	}
	if a.DetectedAt.IsZero() {
		return errors.New("detected at must be set")
	}
	return nil
}

// SessionRecord summarises a finished session.
type SessionRecord struct {
	ID                    string        `json:"id"`
	StartedAt             time.Time     `json:"started_at"`
	EndedAt               time.Time     `json:"ended_at"`
	TotalTime             time.Duration `json:"total_time"`
	PoorPostureTime       time.Duration `json:"poor_posture_time"`
	PoorPosturePercentage int           `json:"poor_posture_percentage"`
	AlertCount            int           `json:"alert_count"`
}

// Validate checks session record field constraints.
func (r *SessionRecord) Validate() error {
	if r.ID == "" {
		return errors.New("session ID must not be empty")
	}
	if r.TotalTime < 0 {
		return errors.New("total time must not be negative")
	}
	if r.PoorPostureTime < 0 {
		return errors.New("poor posture time must not be negative")
	}
	if r.PoorPostureTime > r.TotalTime {
		return errors.New("poor posture time must be <= total time")
	}
	if r.PoorPosturePercentage < 0 || r.PoorPosturePercentage > 100 {
		return errors.New("poor posture percentage must be between 0 and 100")
	}
	if r.EndedAt.Before(r.StartedAt) {
		return errors.New("ended at must be >= started at")
	}
	return nil
}
