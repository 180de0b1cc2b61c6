package snapshot

import (
	"testing"
	"time"

	"github.com/rustyeddy/fxengine/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampBars(n int, start time.Time, tf market.Timeframe) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		c := 1.1000 + float64(i)*0.0001
		out[i] = market.Candle{Open: c - 0.00005, High: c + 0.0002, Low: c - 0.0002, Close: c, Time: start.Add(time.Duration(i) * tf.Duration())}
	}
	return out
}

func smallParams() Params {
	p := DefaultParams()
	p.EMAFast, p.EMASlow = 3, 5
	p.RSI, p.ATR, p.ADX = 3, 3, 3
	p.MACDFast, p.MACDSlow, p.MACDSignal = 3, 5, 3
	p.BBPeriod = 5
	p.Depth = 10
	p.History = 100
	return p
}

func TestBuilderNewestFirst(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	b, err := NewBuilder("EURUSD", market.M5, []market.Timeframe{market.H1}, smallParams())
	require.NoError(t, err)

	for _, c := range rampBars(60, start, market.M5) {
		require.NoError(t, b.Add(c))
	}

	q := market.Quote{Symbol: "EURUSD", Time: start.Add(5 * time.Hour), Bid: 1.1060, Ask: 1.1061}
	snap, err := b.Snapshot(q)
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", snap.Symbol)
	require.Len(t, snap.Primary.Bars, 10)
	assert.True(t, snap.Primary.Bars[0].Time.After(snap.Primary.Bars[1].Time))
	assert.Greater(t, snap.Primary.EMAFast[0], snap.Primary.EMAFast[1])
	assert.Greater(t, snap.Primary.EMAFast[0], snap.Primary.EMASlow[0])
	assert.Len(t, snap.Primary.MACDHist, 10)

	require.Len(t, snap.Higher, 1)
	assert.Equal(t, market.H1, snap.Higher[0].Timeframe)
	assert.Len(t, snap.Higher[0].Bars, 5)
	// five H1 bars give exactly one EMA(5) point
	assert.Len(t, snap.Higher[0].EMASlow, 1)
}

func TestBuilderRejectsOutOfOrder(t *testing.T) {
	t.Parallel()
	b, err := NewBuilder("EURUSD", market.M1, nil, smallParams())
	require.NoError(t, err)

	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, b.Add(market.Candle{Time: now, Close: 1}))
	assert.Error(t, b.Add(market.Candle{Time: now, Close: 1}))
	assert.Equal(t, 1, b.Len())
}

func TestBuilderHistoryCap(t *testing.T) {
	t.Parallel()
	p := smallParams()
	p.History = 20
	b, err := NewBuilder("EURUSD", market.M1, nil, p)
	require.NoError(t, err)
	for _, c := range rampBars(50, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), market.M1) {
		require.NoError(t, b.Add(c))
	}
	assert.Equal(t, 20, b.Len())
	last, ok := b.Last()
	require.True(t, ok)
	assert.InDelta(t, 1.1049, last.Close, 1e-9)
}

func TestNewBuilderValidation(t *testing.T) {
	t.Parallel()
	_, err := NewBuilder("EURUSD", market.H1, []market.Timeframe{market.M5}, smallParams())
	assert.Error(t, err)

	p := smallParams()
	p.EMAFast = p.EMASlow
	_, err = NewBuilder("EURUSD", market.M5, nil, p)
	assert.Error(t, err)
}

func TestShortHistoryYieldsShortSeries(t *testing.T) {
	t.Parallel()
	f := BuildFrame(market.M5, rampBars(2, time.Now().UTC(), market.M5), smallParams())
	assert.Len(t, f.Bars, 2)
	assert.Empty(t, f.EMASlow)
	assert.Empty(t, f.ADX)
	_, ok := market.At(f.RSI, 0)
	assert.False(t, ok)
}
