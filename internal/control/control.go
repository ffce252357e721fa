// Package control maps remote commands onto the posture engine. Threshold values
// are clamped to their documented ranges here, before they reach the engine.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Command names accepted by Dispatch.
const (
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdRestart   = "restart"
	CmdReset     = "reset"
	CmdCalibrate = "calibrate"
	CmdStatus    = "status"
	CmdSetPoor   = "set_poor_posture_threshold"
	CmdSetWarn   = "set_warning_threshold"
	CmdSetRoll   = "set_roll_threshold"
)

var ErrUnknownCommand = errors.New("unknown command")

// Controller is the engine surface exposed to remote control.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	ResetSession()
	Calibrate(ctx context.Context) (models.Baseline, error)
	SetPoorPostureThreshold(v float64)
	SetWarningThreshold(v float64)
	SetRollThreshold(v float64)
	Snapshot() models.Snapshot
}

// Command is one remote request.
type Command struct {
	Name  string   `json:"command"`
	Value *float64 `json:"value,omitempty"`
}

// ParseJSON decodes a command payload such as {"command":"set_roll_threshold","value":3}.
func ParseJSON(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	cmd.Name = strings.ToLower(strings.TrimSpace(cmd.Name))
	if cmd.Name == "" {
		return Command{}, errors.New("command name is required")
	}
	return cmd, nil
}

// Dispatch runs cmd against c and returns a short human readable result.
func Dispatch(ctx context.Context, c Controller, cmd Command) (string, error) {
	switch cmd.Name {
	case CmdStart:
		if err := c.Start(ctx); err != nil {
			return "", err
		}
		return "Monitoring started", nil
	case CmdStop:
		if err := c.Stop(); err != nil {
			return "", err
		}
		return "Monitoring stopped", nil
	case CmdRestart:
		if err := c.Restart(ctx); err != nil {
			return "", err
		}
		return "Monitoring restarted", nil
	case CmdReset:
		c.ResetSession()
		return "Session reset", nil
	case CmdCalibrate:
		b, err := c.Calibrate(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Calibrated: pitch %.1f°, roll %.1f°", b.ReferencePitch, b.ReferenceRoll), nil
	case CmdStatus:
		return FormatStatus(c.Snapshot()), nil
	case CmdSetPoor, CmdSetWarn, CmdSetRoll:
		return setThreshold(c, cmd)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
}

func setThreshold(c Controller, cmd Command) (string, error) {
	if cmd.Value == nil {
		return "", fmt.Errorf("%s requires a value", cmd.Name)
	}
	v := *cmd.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("%s requires a finite value", cmd.Name)
	}

	switch cmd.Name {
	case CmdSetPoor:
		v = models.ClampPoorPosture(v)
		c.SetPoorPostureThreshold(v)
		return fmt.Sprintf("Poor posture threshold set to %.1f°", v), nil
	case CmdSetWarn:
		v = models.ClampWarning(v)
		c.SetWarningThreshold(v)
		return fmt.Sprintf("Warning threshold set to %.1f°", v), nil
	default:
		v = models.ClampRoll(v)
		c.SetRollThreshold(v)
		return fmt.Sprintf("Roll threshold set to %.1f°", v), nil
	}
}

// FormatStatus renders a snapshot as a few plain text lines.
func FormatStatus(s models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", s.ConnectionStatus)
	fmt.Fprintf(&b, "Posture: %s\n", s.PostureState.Kind)
	fmt.Fprintf(&b, "Pitch %.1f° (ref %.1f°), roll %.1f° (ref %.1f°)\n",
		s.Pitch, s.ReferencePitch, s.Roll, s.ReferenceRoll)
	fmt.Fprintf(&b, "Session %s, poor posture %s (%d%%), %d alerts\n",
		s.TotalSessionTime.Round(time.Second), s.PoorPostureDuration.Round(time.Second),
		s.PoorPosturePercentage, s.AlertCount)
	fmt.Fprintf(&b, "Thresholds: poor %.1f°, warning %.1f°, roll %.1f°",
		s.Thresholds.PoorPosture, s.Thresholds.Warning, s.Thresholds.Roll)
	if s.IsCalibrating {
		b.WriteString("\nCalibrating...")
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", s.LastError)
	}
	return b.String()
}
