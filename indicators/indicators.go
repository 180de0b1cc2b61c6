// Package indicators provides technical analysis indicators for trading
package indicators

import "github.com/rustyeddy/fxengine/market"

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value, or 0 before Ready.
	Value() float64
}

// Run resets ind, feeds it every candle (oldest first) and returns the values
// produced once the indicator became ready. The result is oldest first and
// aligned to the tail of candles.
func Run(ind Indicator, candles []market.Candle) []float64 {
	ind.Reset()
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		ind.Update(c)
		if ind.Ready() {
			out = append(out, ind.Value())
		}
	}
	return out
}

func trueRange(c, prev market.Candle) float64 {
	tr := c.High - c.Low
	if v := abs(c.High - prev.Close); v > tr {
		tr = v
	}
	if v := abs(c.Low - prev.Close); v > tr {
		tr = v
	}
	return tr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
