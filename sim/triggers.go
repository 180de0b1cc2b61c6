package sim

import (
	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
)

// triggered reports whether q reaches p's stop or target. Longs are marked
// on the bid and shorts on the ask. The stop wins when both are reached.
// Fills happen at the level itself.
func triggered(p broker.Position, q market.Quote) (price float64, reason string, hit bool) {
	mark := q.Close(p.Direction)
	switch {
	case hitStopLoss(p, mark):
		return p.Stop, broker.ReasonSL, true
	case hitTakeProfit(p, mark):
		return p.TP, broker.ReasonTP, true
	}
	return 0, "", false
}

func hitStopLoss(p broker.Position, price float64) bool {
	if p.Stop == 0 {
		return false
	}
	if p.Direction == market.Long {
		return price <= p.Stop
	}
	return price >= p.Stop
}

func hitTakeProfit(p broker.Position, price float64) bool {
	if p.TP == 0 {
		return false
	}
	if p.Direction == market.Long {
		return price >= p.TP
	}
	return price <= p.TP
}
