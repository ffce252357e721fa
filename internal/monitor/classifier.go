package monitor

import (
	"math"
	"time"

	"github.com/rewired-gh/postureguard/internal/models"
)

// IsBadPosture is the single posture predicate shared by the classifier and the
// session accountant. Pitch is bad when it drops below baseline+PoorPosture or
// rises above baseline+Warning; roll is bad when it strays more than Roll from
// the reference. Inverted pitch bounds or a negative roll bound match nothing.
func IsBadPosture(pitch, roll float64, b models.Baseline, t models.Thresholds) bool {
	delta := pitch - b.ReferencePitch
	if t.PoorPosture <= t.Warning {
		if delta < t.PoorPosture || delta > t.Warning {
			return true
		}
	}
	if t.Roll >= 0 && math.Abs(roll-b.ReferenceRoll) > t.Roll {
		return true
	}
	return false
}

// Classifier turns each tick into a PostureState. Bad posture is a Warning until
// it has lasted longer than the escalation delay, measured from the last Good
// tick, and then becomes an Alert.
type Classifier struct {
	escalationDelay time.Duration

	prev       models.PostureState
	lastGoodAt time.Time
	badSince   time.Time
}

func NewClassifier(escalationDelay time.Duration) *Classifier {
	return &Classifier{escalationDelay: escalationDelay}
}

// Classify evaluates one tick. escalated is true only on the tick that enters
// Alert from a non-Alert state.
func (c *Classifier) Classify(pitch, roll float64, b models.Baseline, t models.Thresholds, sessionStart, now time.Time) (state models.PostureState, escalated bool) {
	if !IsBadPosture(pitch, roll, b, t) {
		state = models.Good(nonNegative(now.Sub(sessionStart)))
		c.lastGoodAt = now
		c.badSince = time.Time{}
	} else {
		if c.badSince.IsZero() {
			c.badSince = now
		}
		// Never seen Good: the clock starts at the first bad tick.
		anchor := c.lastGoodAt
		if anchor.IsZero() {
			anchor = c.badSince
		}
		elapsed := nonNegative(now.Sub(anchor))
		if elapsed > c.escalationDelay {
			state = models.Alert(pitch, elapsed)
		} else {
			state = models.Warning(pitch, elapsed)
		}
	}

	escalated = state.IsAlert() && !c.prev.IsAlert()
	c.prev = state
	return state, escalated
}

// Previous returns the last state produced.
func (c *Classifier) Previous() models.PostureState {
	return c.prev
}

// Reset forgets all history so the next bad tick is a cold start.
func (c *Classifier) Reset() {
	c.prev = models.PostureState{}
	c.lastGoodAt = time.Time{}
	c.badSince = time.Time{}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
