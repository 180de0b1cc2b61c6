package market

import "time"

// Frame holds the bars and indicator series of one timeframe.
// Every series is newest-first: index 0 is the most recently closed bar.
type Frame struct {
	Timeframe Timeframe

	Bars []Candle

	EMAFast []float64
	EMASlow []float64
	RSI     []float64
	ATR     []float64

	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	ADX []float64

	BBUpper []float64
	BBMid   []float64
	BBLower []float64
}

// Snapshot is the read-only market view for one evaluation.
type Snapshot struct {
	Symbol string
	Time   time.Time
	Bid    float64
	Ask    float64

	Primary Frame
	Higher  []Frame
}

// Mid is the average of bid and ask.
func (s Snapshot) Mid() float64 {
	return (s.Bid + s.Ask) / 2
}

func (s Snapshot) Spread() float64 {
	return s.Ask - s.Bid
}

// ExitPrice is the price a position in direction d would close at.
func (s Snapshot) ExitPrice(d Direction) float64 {
	if d == Short {
		return s.Ask
	}
	return s.Bid
}

// EntryPrice is the price a new position in direction d would fill at.
func (s Snapshot) EntryPrice(d Direction) float64 {
	if d == Short {
		return s.Bid
	}
	return s.Ask
}

// HigherFrame returns the i-th higher timeframe frame if present.
func (s Snapshot) HigherFrame(i int) (Frame, bool) {
	if i < 0 || i >= len(s.Higher) {
		return Frame{}, false
	}
	return s.Higher[i], true
}

// At returns series[i] when it exists. Scoring code uses this to fail closed
// on short history instead of indexing out of range.
func At(series []float64, i int) (float64, bool) {
	if i < 0 || i >= len(series) {
		return 0, false
	}
	return series[i], true
}

// Bar returns the i-th newest bar when it exists.
func (f Frame) Bar(i int) (Candle, bool) {
	if i < 0 || i >= len(f.Bars) {
		return Candle{}, false
	}
	return f.Bars[i], true
}

// Has reports whether every series is at least n long.
func Has(n int, series ...[]float64) bool {
	for _, s := range series {
		if len(s) < n {
			return false
		}
	}
	return true
}
