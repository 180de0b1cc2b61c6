package engine

import (
	"time"

	"github.com/rustyeddy/fxengine/market"
)

// BarGate answers "is this a new bar" for one timeframe. Entry evaluation
// and the bar-level exit checks each consult it through the engine.
type BarGate struct {
	tf   market.Timeframe
	last time.Time
}

func NewBarGate(tf market.Timeframe) *BarGate {
	return &BarGate{tf: tf}
}

// Observe records barTime and reports whether it opens a bar not seen
// before. The first observation is always new.
func (g *BarGate) Observe(barTime time.Time) bool {
	open := g.tf.BarOpen(barTime)
	if !open.After(g.last) {
		return false
	}
	g.last = open
	return true
}

func (g *BarGate) Last() time.Time { return g.last }

func (g *BarGate) Reset() { g.last = time.Time{} }

// barTime is the open time of the newest closed primary bar, or the bar
// containing the snapshot time when no bars are present.
func barTime(snap market.Snapshot) time.Time {
	if len(snap.Primary.Bars) > 0 {
		return snap.Primary.Bars[0].Time
	}
	return snap.Primary.Timeframe.BarOpen(snap.Time)
}

// barsBetween counts whole bars of tf from the bar containing from to the
// bar containing to.
func barsBetween(tf market.Timeframe, from, to time.Time) int {
	d := tf.Duration()
	if d <= 0 || to.Before(from) {
		return 0
	}
	return int(tf.BarOpen(to).Sub(tf.BarOpen(from)) / d)
}
