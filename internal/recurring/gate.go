package recurring

import (
	"sync"
	"time"

	"qingbu/internal/core"
)

// Gate lets the automatic sweep run at most once per local day. The last
// check lives in memory only, so a restart checks again.
type Gate struct {
	loc  *time.Location
	mu   sync.Mutex
	last time.Time
}

func NewGate(loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{loc: loc}
}

// ShouldCheck reports whether no check was marked yet on now's day.
func (g *Gate) ShouldCheck(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last.IsZero() || g.last.Before(core.TruncateDay(now, g.loc))
}

// MarkChecked records now's day as checked.
func (g *Gate) MarkChecked(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = core.TruncateDay(now, g.loc)
}
