package monitor

import (
	"math"
	"time"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Accountant tracks total session time, time spent in bad posture and the
// display histories. Both durations only grow until Reset.
type Accountant struct {
	sessionStart time.Time
	anchor       time.Time
	total        time.Duration
	poor         time.Duration
	poorStart    time.Time

	pitch *History
	roll  *History
}

func NewAccountant(historySize int, now time.Time) *Accountant {
	return &Accountant{
		sessionStart: now,
		anchor:       now,
		pitch:        NewHistory(historySize),
		roll:         NewHistory(historySize),
	}
}

// Tick accounts for the time since the previous tick and records the sample.
// It reports whether the tick was bad posture.
func (a *Accountant) Tick(pitch, roll float64, b models.Baseline, t models.Thresholds, now time.Time) bool {
	dt := nonNegative(now.Sub(a.anchor))
	a.total += dt
	if now.After(a.anchor) {
		a.anchor = now
	}

	bad := IsBadPosture(pitch, roll, b, t)
	if bad {
		if a.poorStart.IsZero() {
			a.poorStart = now
		}
		a.poor += dt
	} else {
		a.poorStart = time.Time{}
	}

	a.pitch.Append(pitch)
	a.roll.Append(roll)
	return bad
}

// Reanchor moves the tick anchor to now without counting the gap, used when
// ticks resume after the source was stopped.
func (a *Accountant) Reanchor(now time.Time) {
	a.anchor = now
	a.poorStart = time.Time{}
}

// Reset clears counters and histories and starts a new session at now.
func (a *Accountant) Reset(now time.Time) {
	a.sessionStart = now
	a.anchor = now
	a.total = 0
	a.poor = 0
	a.poorStart = time.Time{}
	a.pitch.Reset()
	a.roll.Reset()
}

func (a *Accountant) SessionStart() time.Time            { return a.sessionStart }
func (a *Accountant) TotalSessionTime() time.Duration    { return a.total }
func (a *Accountant) PoorPostureDuration() time.Duration { return a.poor }
func (a *Accountant) PitchHistory() *History             { return a.pitch }
func (a *Accountant) RollHistory() *History              { return a.roll }

// PoorPostureStart reports when the current bad stretch began.
func (a *Accountant) PoorPostureStart() (time.Time, bool) {
	return a.poorStart, !a.poorStart.IsZero()
}

func (a *Accountant) PoorPosturePercentage() int {
	return PoorPosturePercentage(a.poor, a.total)
}

// PoorPosturePercentage is round(poor/total*100), or 0 for an empty session.
func PoorPosturePercentage(poor, total time.Duration) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(poor.Seconds() / total.Seconds() * 100))
}
