// Package notify delivers posture alerts through local side channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rewired-gh/postureguard/internal/logger"
	"github.com/rewired-gh/postureguard/internal/models"
)

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, alert models.AlertEvent) error
}

// Runner executes a command and waits for it.
type Runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Sound plays the alert sound with an external player.
type Sound struct {
	command []string
	run     Runner
}

// NewSound creates a sound notifier running command (argv). A nil run uses os/exec.
func NewSound(command []string, run Runner) (*Sound, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("sound command is required")
	}
	if run == nil {
		run = runCommand
	}
	return &Sound{command: append([]string(nil), command...), run: run}, nil
}

func (s *Sound) Notify(ctx context.Context, alert models.AlertEvent) error {
	if err := s.run(ctx, s.command[0], s.command[1:]...); err != nil {
		return fmt.Errorf("failed to play alert sound: %w", err)
	}
	logger.Debug("Played alert sound for %s", alert.ID)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert models.AlertEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
