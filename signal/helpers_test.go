package signal

import (
	"time"

	"github.com/rustyeddy/fxengine/market"
)

var barTime = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

// bullFrame is a primary frame with a fresh bullish MACD cross, fast EMA
// above slow, RSI 55 and ADX 25, closing on the Bollinger mid line.
func bullFrame() market.Frame {
	return market.Frame{
		Timeframe: market.M5,
		Bars: []market.Candle{
			{Open: 1.1040, High: 1.1055, Low: 1.1035, Close: 1.1050, Time: barTime},
			{Open: 1.1030, High: 1.1045, Low: 1.1025, Close: 1.1040, Time: barTime.Add(-5 * time.Minute)},
		},
		EMAFast:    []float64{1.1045, 1.1040},
		EMASlow:    []float64{1.1030, 1.1028},
		RSI:        []float64{55, 52},
		ATR:        []float64{0.0010, 0.0010},
		MACD:       []float64{0.0004, 0.0001},
		MACDSignal: []float64{0.0002, 0.0002},
		MACDHist:   []float64{0.0002, -0.0001},
		ADX:        []float64{25},
		BBUpper:    []float64{1.1080},
		BBMid:      []float64{1.1050},
		BBLower:    []float64{1.1020},
	}
}

func snapOf(primary market.Frame, higher ...market.Frame) market.Snapshot {
	return market.Snapshot{
		Symbol:  "EURUSD",
		Time:    barTime.Add(5 * time.Minute),
		Bid:     primary.Bars[0].Close,
		Ask:     primary.Bars[0].Close + 0.0001,
		Primary: primary,
		Higher:  higher,
	}
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
