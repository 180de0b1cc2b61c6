package sim

import (
	"math"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
)

// profit of volume lots of p closed at price, in account currency.
func profit(p broker.Position, volume, price float64, meta market.SymbolMeta) float64 {
	return (price - p.Entry) * p.Direction.Sign() * meta.ValuePerPrice() * volume
}

func roundVolume(v float64, meta market.SymbolMeta) float64 {
	if meta.LotStep <= 0 {
		return v
	}
	// Nudge by half a step so 0.1-0.05 lands on 0.05 and not 0.04.
	return risk.FloorToStep(v+meta.LotStep/2, meta.LotStep)
}

func onStep(v float64, meta market.SymbolMeta) bool {
	if meta.LotStep <= 0 {
		return v > 0
	}
	return math.Abs(v-roundVolume(v, meta)) < meta.LotStep*1e-6
}
