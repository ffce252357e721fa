package monitor

import (
	"sync"
	"time"
)

// AlertGate rate-limits alert notifications to one per cooldown window.
type AlertGate struct {
	mu        sync.Mutex
	cooldown  time.Duration
	lastFired time.Time
	fired     bool
}

func NewAlertGate(cooldown time.Duration) *AlertGate {
	return &AlertGate{cooldown: cooldown}
}

// TryFire reports whether a notification may go out at now and, if so, records now
// as the last fire.
func (g *AlertGate) TryFire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fired && now.Sub(g.lastFired) < g.cooldown {
		return false
	}
	g.fired = true
	g.lastFired = now
	return true
}
