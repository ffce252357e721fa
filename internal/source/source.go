// Package source provides orientation sample sources: a synthetic generator, an
// MQTT subscriber and a serial line reader. The engine treats them identically.
package source

import (
	"context"
	"errors"

	"github.com/rewired-gh/postureguard/internal/models"
)

// ErrUnavailable means the physical sensor is missing or stopped reporting.
var ErrUnavailable = errors.New("sensor unavailable")

// Sink receives decoded samples. It must not block.
type Sink func(models.OrientationSample)

// Source delivers samples to sink until ctx is cancelled or the source fails.
// Run returns nil after cancellation and a non-nil error on failure.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}
