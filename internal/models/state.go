package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PostureKind tags the active variant of a PostureState.
type PostureKind int

const (
	PostureGood PostureKind = iota
	PostureWarning
	PostureAlert
)

func (k PostureKind) String() string {
	switch k {
	case PostureGood:
		return "good"
	case PostureWarning:
		return "warning"
	case PostureAlert:
		return "alert"
	default:
		return fmt.Sprintf("PostureKind(%d)", int(k))
	}
}

func (k PostureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PostureKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "good":
		*k = PostureGood
	case "warning":
		*k = PostureWarning
	case "alert":
		*k = PostureAlert
	default:
		return fmt.Errorf("unknown posture kind %q", string(b))
	}
	return nil
}

// PostureState is one of
//
//	Good{Duration}            time since the session started
//	Warning{Pitch, Duration}  time spent outside the thresholds, <= escalation delay
//	Alert{Pitch, Duration}    time spent outside the thresholds, > escalation delay
//
// Pitch is zero for Good.
type PostureState struct {
	Kind     PostureKind   `json:"kind"`
	Pitch    float64       `json:"pitch,omitempty"`
	Duration time.Duration `json:"duration"`
}

func Good(d time.Duration) PostureState {
	return PostureState{Kind: PostureGood, Duration: d}
}

func Warning(pitch float64, d time.Duration) PostureState {
	return PostureState{Kind: PostureWarning, Pitch: pitch, Duration: d}
}

func Alert(pitch float64, d time.Duration) PostureState {
	return PostureState{Kind: PostureAlert, Pitch: pitch, Duration: d}
}

func (s PostureState) IsGood() bool  { return s.Kind == PostureGood }
func (s PostureState) IsAlert() bool { return s.Kind == PostureAlert }

func (s PostureState) String() string {
	if s.Kind == PostureGood {
		return fmt.Sprintf("good(%s)", s.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s(pitch=%.1f, %s)", s.Kind, s.Pitch, s.Duration.Round(time.Millisecond))
}

// ConnectionState is the sample-source lifecycle as seen by the engine.
type ConnectionState int

const (
	ConnectionNotStarted ConnectionState = iota
	ConnectionConnecting
	ConnectionLive
	ConnectionSimulated
	ConnectionStopped
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionNotStarted:
		return "not_started"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionLive:
		return "live"
	case ConnectionSimulated:
		return "simulated"
	case ConnectionStopped:
		return "stopped"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(c))
	}
}

func (c ConnectionState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// HistoryStats summarises a history buffer for display.
type HistoryStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Snapshot is the read-only view published to the presentation layer.
type Snapshot struct {
	Pitch            float64 `json:"pitch"`
	Roll             float64 `json:"roll"`
	Yaw              float64 `json:"yaw"`
	RotationRate     Vector3 `json:"rotation_rate"`
	UserAcceleration Vector3 `json:"user_acceleration"`
	Gravity          Vector3 `json:"gravity"`

	IsDeviceConnected bool            `json:"is_device_connected"`
	Connection        ConnectionState `json:"connection"`
	ConnectionStatus  string          `json:"connection_status"`
	IsSimulationMode  bool            `json:"is_simulation_mode"`
	LastError         string          `json:"last_error,omitempty"`
	IsCalibrating     bool            `json:"is_calibrating"`

	PostureState     PostureState `json:"posture_state"`
	IsPoorPostureNow bool         `json:"is_poor_posture_now"`

	PitchHistory []float64    `json:"pitch_history"`
	RollHistory  []float64    `json:"roll_history"`
	PitchStats   HistoryStats `json:"pitch_stats"`
	RollStats    HistoryStats `json:"roll_stats"`

	SessionID             string        `json:"session_id"`
	SessionStart          time.Time     `json:"session_start"`
	TotalSessionTime      time.Duration `json:"total_session_time"`
	PoorPostureDuration   time.Duration `json:"poor_posture_duration"`
	PoorPosturePercentage int           `json:"poor_posture_percentage"`
	AlertCount            int           `json:"alert_count"`

	Thresholds     Thresholds `json:"thresholds"`
	ReferencePitch float64    `json:"reference_pitch"`
	ReferenceRoll  float64    `json:"reference_roll"`
}

// JSON encodes s for publishing.
func (s *Snapshot) JSON() ([]byte, error) {
	return json.Marshal(s)
}
