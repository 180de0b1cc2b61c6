package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

func m15(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		p := 1.1 + float64(i)*0.001
		out[i] = Candle{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: p, High: p + 0.002, Low: p - 0.001, Close: p + 0.0005, Volume: 10}
	}
	return out
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" h1 ")
	require.NoError(t, err)
	assert.Equal(t, H1, tf)
	assert.Equal(t, time.Hour, tf.Duration())

	_, err = ParseTimeframe("W1")
	assert.Error(t, err)
	assert.False(t, Timeframe("W1").Valid())
	assert.Zero(t, Timeframe("W1").Duration())
}

func TestBarOpen(t *testing.T) {
	at := time.Date(2024, 6, 5, 10, 37, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 5, 10, 30, 0, 0, time.UTC), M15.BarOpen(at))
	assert.Equal(t, time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC), H4.BarOpen(at))
	assert.Equal(t, at, Timeframe("").BarOpen(at))
}

func TestResample(t *testing.T) {
	bars := m15(5)

	h1, err := Resample(bars, M15, H1)
	require.NoError(t, err)
	require.Len(t, h1, 1, "the 11:00 bucket is incomplete")
	assert.Equal(t, Candle{Time: t0, Open: 1.1, High: 1.105, Low: 1.099, Close: 1.1035, Volume: 40}, roundCandle(h1[0]))

	_, err = Resample(bars, H1, M15)
	assert.Error(t, err)
	_, err = Resample(bars, M15, Timeframe("M7"))
	assert.Error(t, err)

	none, err := Resample(nil, M15, H1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func roundCandle(c Candle) Candle {
	r := func(v float64) float64 { return float64(int64(v*1e6+0.5)) / 1e6 }
	c.Open, c.High, c.Low, c.Close = r(c.Open), r(c.High), r(c.Low), r(c.Close)
	return c
}

func TestSymbolMeta(t *testing.T) {
	eur := Symbols["EURUSD"]
	require.NoError(t, eur.Validate())
	assert.InDelta(t, 0.0001, eur.PipSize(), 1e-12)
	assert.InDelta(t, 0.0001, eur.MinStopPrice(), 1e-12)
	assert.InDelta(t, 100000, eur.ValuePerPrice(), 1e-6)

	gold := Symbols["XAUUSD"]
	assert.InDelta(t, 0.01, gold.PipSize(), 1e-12)

	bad := eur
	bad.LotStep = 0
	assert.ErrorContains(t, bad.Validate(), "lot_step")
	bad = eur
	bad.MaxLot = 0.001
	assert.ErrorContains(t, bad.Validate(), "lot bounds")
}

func TestSnapshotPrices(t *testing.T) {
	s := Snapshot{Bid: 1.1000, Ask: 1.1002}
	assert.Equal(t, 1.1002, s.EntryPrice(Long))
	assert.Equal(t, 1.1000, s.EntryPrice(Short))
	assert.Equal(t, 1.1000, s.ExitPrice(Long))
	assert.Equal(t, 1.1002, s.ExitPrice(Short))
	assert.InDelta(t, 0.0002, s.Spread(), 1e-12)

	q := Quote{Bid: 1.1, Ask: 1.2}
	assert.Equal(t, 1.2, q.Close(Short))
	assert.InDelta(t, 1.15, q.Mid(), 1e-12)

	_, ok := s.HigherFrame(0)
	assert.False(t, ok)
}

func TestSeriesAccess(t *testing.T) {
	v, ok := At([]float64{3, 2, 1}, 1)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = At([]float64{3}, 1)
	assert.False(t, ok)
	_, ok = At(nil, -1)
	assert.False(t, ok)

	assert.True(t, Has(2, []float64{1, 2}, []float64{1, 2, 3}))
	assert.False(t, Has(3, []float64{1, 2}, []float64{1, 2, 3}))

	f := Frame{Bars: m15(2)}
	b, ok := f.Bar(1)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(15*time.Minute), b.Time)
	_, ok = f.Bar(2)
	assert.False(t, ok)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "long", Long.String())
	assert.Equal(t, "flat", Flat.String())
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, -1.0, Short.Sign())
	assert.Equal(t, 1, Short.Index())
	assert.Equal(t, []float64{3, 2, 1}, Reverse([]float64{1, 2, 3}))

	c := Candle{Open: 1.2, Close: 1.1, High: 1.25, Low: 1.05}
	assert.True(t, c.Bearish())
	assert.InDelta(t, 0.1, c.Body(), 1e-12)
	assert.InDelta(t, 0.2, c.Range(), 1e-12)
}
