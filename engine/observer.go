package engine

import (
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
)

// Observer receives the engine's decisions as they happen. The metrics
// package implements it; the default does nothing.
type Observer interface {
	EntryScored(s signal.Scores)
	EntryDecision(dir market.Direction, d risk.Decision)
	ExitAction(action string)
	Exposure(aggregatePct float64, open int)
	Session(s risk.SessionState)
}

type nopObserver struct{}

func (nopObserver) EntryScored(signal.Scores)                     {}
func (nopObserver) EntryDecision(market.Direction, risk.Decision) {}
func (nopObserver) ExitAction(string)                             {}
func (nopObserver) Exposure(float64, int)                         {}
func (nopObserver) Session(risk.SessionState)                     {}
