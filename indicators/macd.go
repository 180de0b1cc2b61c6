package indicators

import (
	"fmt"

	"github.com/rustyeddy/fxengine/market"
)

// MACD is the fast/slow EMA spread with its signal line.
// Value returns the MACD line; Signal and Hist the other two buffers.
type MACD struct {
	fast, slow, signal *ExponentialMA

	line  float64
	ready bool
}

func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.fast.period, m.slow.period, m.signal.period)
}

func (m *MACD) Warmup() int {
	slow := m.slow.period
	if m.fast.period > slow {
		slow = m.fast.period
	}
	return slow + m.signal.period - 1
}

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.line = 0
	m.ready = false
}

func (m *MACD) Update(c market.Candle) {
	m.fast.Add(c.Close)
	m.slow.Add(c.Close)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Add(m.line)
	m.ready = m.signal.Ready()
}

func (m *MACD) Ready() bool {
	return m.ready
}

func (m *MACD) Value() float64 {
	if !m.ready {
		return 0
	}
	return m.line
}

func (m *MACD) Signal() float64 {
	if !m.ready {
		return 0
	}
	return m.signal.Value()
}

func (m *MACD) Hist() float64 {
	return m.Value() - m.Signal()
}

// MACDSeries runs MACD over candles and returns the three aligned buffers,
// oldest first.
func MACDSeries(candles []market.Candle, fast, slow, signal int) (line, sig, hist []float64) {
	m := NewMACD(fast, slow, signal)
	for _, c := range candles {
		m.Update(c)
		if m.Ready() {
			line = append(line, m.Value())
			sig = append(sig, m.Signal())
			hist = append(hist, m.Hist())
		}
	}
	return line, sig, hist
}
