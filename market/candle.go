package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
// Time is the bar open time.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Time   time.Time
	Volume float64
}

// Body is the absolute distance between open and close.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range is high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

func (c Candle) Bullish() bool { return c.Close > c.Open }
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Closes extracts closing prices in the order the candles are given.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Reverse returns a reversed copy. Indicator math runs oldest-first while
// snapshots are newest-first, so this is used at that boundary.
func Reverse[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
