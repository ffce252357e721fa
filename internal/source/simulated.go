package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Pattern selects how the simulated source moves.
type Pattern string

const (
	// PatternRandom draws every frame independently from fixed ranges.
	PatternRandom Pattern = "random"
	// PatternWave produces smooth, deterministic head movement.
	PatternWave Pattern = "wave"
)

// Simulated generates synthetic samples at a fixed rate.
type Simulated struct {
	interval time.Duration
	pattern  Pattern
	rng      *rand.Rand
}

// NewSimulated creates a generator emitting sampleRate frames per second.
// A zero seed picks a time-based one.
func NewSimulated(sampleRate float64, pattern Pattern, seed uint64) (*Simulated, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	}
	switch pattern {
	case PatternRandom, PatternWave:
	case "":
		pattern = PatternRandom
	default:
		return nil, fmt.Errorf("unknown simulation pattern %q", pattern)
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulated{
		interval: time.Duration(float64(time.Second) / sampleRate),
		pattern:  pattern,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (s *Simulated) Name() string { return "simulated" }

// Interval is the time between frames.
func (s *Simulated) Interval() time.Duration { return s.interval }

// Run emits one frame per interval until ctx is cancelled.
func (s *Simulated) Run(ctx context.Context, sink Sink) error {
	start := time.Now()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			sample := s.Next(t.Sub(start))
			sample.Timestamp = t
			sink(sample)
		}
	}
}

// Next produces the frame for the given time since Run started.
func (s *Simulated) Next(elapsed time.Duration) models.OrientationSample {
	if s.pattern == PatternWave {
		return wave(elapsed.Seconds())
	}
	return models.OrientationSample{
		Pitch:        s.uniform(-30, 30),
		Roll:         s.uniform(-15, 15),
		Yaw:          s.uniform(-10, 10),
		RotationRate: models.Vector3{X: 2, Y: 2, Z: 2},
		UserAcceleration: models.Vector3{
			X: s.uniform(-0.2, 0.2),
			Y: s.uniform(-0.2, 0.2),
			Z: s.uniform(-0.2, 0.2),
		},
		Gravity: models.Vector3{
			X: s.uniform(-1, 1),
			Y: s.uniform(-1, 1),
			Z: s.uniform(-1, 1),
		},
	}
}

func (s *Simulated) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// wave slowly nods forward past the default poor-posture bound and tilts sideways.
func wave(t float64) models.OrientationSample {
	pitch := 20 * math.Sin(t*0.3)
	roll := 8 * math.Sin(t*0.5)
	yaw := 10 * math.Sin(t*0.2)
	return models.OrientationSample{
		Pitch: pitch,
		Roll:  roll,
		Yaw:   yaw,
		RotationRate: models.Vector3{
			X: 20 * 0.3 * math.Cos(t*0.3) * math.Pi / 180,
			Y: 8 * 0.5 * math.Cos(t*0.5) * math.Pi / 180,
			Z: 10 * 0.2 * math.Cos(t*0.2) * math.Pi / 180,
		},
		Gravity: models.Vector3{
			X: math.Sin(roll * math.Pi / 180),
			Y: -math.Sin(pitch * math.Pi / 180),
			Z: -math.Cos(pitch*math.Pi/180) * math.Cos(roll*math.Pi/180),
		},
	}
}
