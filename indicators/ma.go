package indicators

import (
	"fmt"

	"github.com/rustyeddy/fxengine/market"
)

// SimpleMA is a streaming Simple Moving Average indicator
type SimpleMA struct {
	period int
	window []float64
	sum    float64
}

// NewMA creates a new Simple Moving Average indicator with the given period
func NewMA(period int) *SimpleMA {
	return &SimpleMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("MA(%d)", m.period)
}

func (m *SimpleMA) Warmup() int {
	return m.period
}

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
	m.sum = 0
}

func (m *SimpleMA) Update(c market.Candle) {
	m.Add(c.Close)
}

// Add consumes a raw value instead of a candle close.
func (m *SimpleMA) Add(v float64) {
	m.window = append(m.window, v)
	m.sum += v
	// Keep only the last 'period' values
	if len(m.window) > m.period {
		m.sum -= m.window[0]
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool {
	return m.period > 0 && len(m.window) >= m.period
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(len(m.window))
}

// ExponentialMA is a streaming Exponential Moving Average indicator.
// It is seeded with the simple average of the first period values.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

// NewEMA creates a new Exponential Moving Average indicator with the given period
func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

func (e *ExponentialMA) Warmup() int {
	return e.period
}

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(c market.Candle) {
	e.Add(c.Close)
}

// Add consumes a raw value instead of a candle close.
func (e *ExponentialMA) Add(v float64) {
	if e.period <= 0 {
		return
	}
	if e.count < e.period {
		e.warmupSum += v
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (v-e.ema)*e.multiplier + e.ema
}

func (e *ExponentialMA) Ready() bool {
	return e.period > 0 && e.count >= e.period
}

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}

// SMAValues is the batch form of SimpleMA over raw values.
func SMAValues(values []float64, period int) []float64 {
	m := NewMA(period)
	out := make([]float64, 0, len(values))
	for _, v := range values {
		m.Add(v)
		if m.Ready() {
			out = append(out, m.Value())
		}
	}
	return out
}

// EMAValues is the batch form of ExponentialMA over raw values.
func EMAValues(values []float64, period int) []float64 {
	e := NewEMA(period)
	out := make([]float64, 0, len(values))
	for _, v := range values {
		e.Add(v)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out
}
