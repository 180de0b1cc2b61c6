package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/fxengine/market"
)

// Bollinger bands: mid is the SMA of closes, upper/lower are mid ± K
// population standard deviations.
type Bollinger struct {
	period int
	k      float64
	window []float64
}

func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{period: period, k: k, window: make([]float64, 0, period)}
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%.1f)", b.period, b.k)
}

func (b *Bollinger) Warmup() int {
	return b.period
}

func (b *Bollinger) Reset() {
	b.window = b.window[:0]
}

func (b *Bollinger) Update(c market.Candle) {
	b.window = append(b.window, c.Close)
	if len(b.window) > b.period {
		b.window = b.window[1:]
	}
}

func (b *Bollinger) Ready() bool {
	return b.period > 0 && len(b.window) >= b.period
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 {
	mid, _ := b.meanStd()
	return mid
}

// Bands returns upper, mid and lower.
func (b *Bollinger) Bands() (upper, mid, lower float64) {
	mid, sd := b.meanStd()
	return mid + b.k*sd, mid, mid - b.k*sd
}

func (b *Bollinger) meanStd() (float64, float64) {
	if !b.Ready() {
		return 0, 0
	}
	n := float64(len(b.window))
	sum := 0.0
	for _, v := range b.window {
		sum += v
	}
	mean := sum / n
	ss := 0.0
	for _, v := range b.window {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}

// BollingerSeries returns aligned upper/mid/lower bands, oldest first.
func BollingerSeries(candles []market.Candle, period int, k float64) (upper, mid, lower []float64) {
	b := NewBollinger(period, k)
	for _, c := range candles {
		b.Update(c)
		if b.Ready() {
			u, m, l := b.Bands()
			upper = append(upper, u)
			mid = append(mid, m)
			lower = append(lower, l)
		}
	}
	return upper, mid, lower
}
