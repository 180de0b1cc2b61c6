package risk

import (
	"github.com/rustyeddy/fxengine/market"
	"github.com/shopspring/decimal"
)

// LotFromRiskPct sizes a position so that a stop stopPoints away loses
// riskPct percent of equity:
//
//	lots = (equity × riskPct/100) / (stop distance in ticks × tick value)
//
// The result is floored to the lot step and clamped to [MinLot, MaxLot].
// Any non-positive input or symbol metadata returns exactly 0.
func LotFromRiskPct(equity, riskPct, stopPoints float64, meta market.SymbolMeta) float64 {
	if equity <= 0 || riskPct <= 0 || stopPoints <= 0 {
		return 0
	}
	if meta.TickValue <= 0 || meta.TickSize <= 0 || meta.LotStep <= 0 || meta.Point <= 0 {
		return 0
	}

	riskMoney := equity * riskPct / 100
	stopTicks := stopPoints * meta.Point / meta.TickSize
	lots := riskMoney / (stopTicks * meta.TickValue)
	return NormalizeVolume(lots, meta)
}

// FloorToStep floors v to a whole number of steps using decimal arithmetic,
// so 0.05 with a 0.01 step stays 0.05.
func FloorToStep(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s).InexactFloat64()
}

// NormalizeVolume floors to the lot step and clamps to the broker range.
// Returns 0 when the lot step is unusable.
func NormalizeVolume(v float64, meta market.SymbolMeta) float64 {
	if meta.LotStep <= 0 || v <= 0 {
		return 0
	}
	v = FloorToStep(v, meta.LotStep)
	if v < meta.MinLot {
		v = meta.MinLot
	}
	if meta.MaxLot > 0 && v > meta.MaxLot {
		v = FloorToStep(meta.MaxLot, meta.LotStep)
	}
	return v
}

// SplitHalf splits volume for a partial close. The closed half is floored
// to the lot step; ok is false when either side would fall below MinLot.
func SplitHalf(volume float64, meta market.SymbolMeta) (closeVol, remain float64, ok bool) {
	if meta.LotStep <= 0 || volume <= 0 {
		return 0, volume, false
	}
	half := decimal.NewFromFloat(volume).Div(decimal.NewFromInt(2))
	step := decimal.NewFromFloat(meta.LotStep)
	closeD := half.Div(step).Floor().Mul(step)
	remainD := decimal.NewFromFloat(volume).Sub(closeD)

	minLot := decimal.NewFromFloat(meta.MinLot)
	if closeD.Sign() <= 0 || closeD.LessThan(minLot) || remainD.LessThan(minLot) {
		return 0, volume, false
	}
	return closeD.InexactFloat64(), remainD.InexactFloat64(), true
}

// MoneyAtRisk is the loss if price moves from price to stop, for volume lots.
func MoneyAtRisk(stopDistance, volume float64, meta market.SymbolMeta) float64 {
	if stopDistance <= 0 || volume <= 0 {
		return 0
	}
	return stopDistance * volume * meta.ValuePerPrice()
}
