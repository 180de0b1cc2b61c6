package signal

import (
	"testing"
	"time"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toppingFrame is a long position's view near a top: RSI fell back from 75
// to 65 while price printed a new high. The MACD histogram is still positive.
func toppingFrame() market.Frame {
	bars := []market.Candle{
		{Open: 1.1050, High: 1.1060, Low: 1.1044, Close: 1.1052},
		{Open: 1.1042, High: 1.1050, Low: 1.1040, Close: 1.1048},
		{Open: 1.1035, High: 1.1045, Low: 1.1033, Close: 1.1042},
		{Open: 1.1030, High: 1.1040, Low: 1.1028, Close: 1.1035},
	}
	for i := range bars {
		bars[i].Time = barTime.Add(-time.Duration(i) * 5 * time.Minute)
	}
	return market.Frame{
		Timeframe:  market.M5,
		Bars:       bars,
		EMAFast:    []float64{1.1045, 1.1043, 1.1040, 1.1037},
		EMASlow:    []float64{1.1035, 1.1034, 1.1033, 1.1032},
		RSI:        []float64{65, 75, 70, 68},
		ATR:        []float64{0.0010, 0.0010, 0.0010, 0.0010},
		MACD:       []float64{0.0006, 0.0007, 0.0006, 0.0005},
		MACDSignal: []float64{0.0004, 0.0004, 0.0004, 0.0004},
		MACDHist:   []float64{0.0002, 0.0003, 0.0002, 0.0001},
	}
}

func scenarioConfig() ReversalConfig {
	cfg := DefaultReversalConfig()
	cfg.Weights = map[string]float64{
		CondRSIExtremeTurn: 0.40,
		CondRSIDivergence:  0.35,
		CondMACDHistFlip:   0.35,
	}
	cfg.DivergenceLookback = 3
	return cfg
}

func TestReversalSingleCategoryDoesNotTrigger(t *testing.T) {
	t.Parallel()
	c := NewComposite(DefaultEntryConfig(), scenarioConfig(), DefaultThresholdAdapter(), DefaultReversalThreshold(), false)
	pos := broker.Position{Ticket: 1, Direction: market.Long, Entry: 1.1030}

	r := c.ShouldExit(pos, snapOf(toppingFrame()))
	assert.InDelta(t, 0.75, r.Raw, 1e-9)
	assert.Equal(t, []string{CondRSIDivergence, CondRSIExtremeTurn}, r.Conditions)
	assert.Equal(t, 1, r.Categories)
	assert.False(t, r.Valid)
	assert.Equal(t, 0.0, r.Score)
	assert.False(t, r.Triggered)
}

func TestReversalTwoCategoriesTrigger(t *testing.T) {
	t.Parallel()
	c := NewComposite(DefaultEntryConfig(), scenarioConfig(), DefaultThresholdAdapter(), DefaultReversalThreshold(), false)
	pos := broker.Position{Ticket: 1, Direction: market.Long, Entry: 1.1030}

	f := toppingFrame()
	// no new high: divergence off; histogram flips negative: MACD on
	f.Bars[0].High = 1.1049
	f.MACDHist[0] = -0.0001

	r := c.ShouldExit(pos, snapOf(f))
	assert.InDelta(t, 0.75, r.Raw, 1e-9)
	assert.Equal(t, []string{CondMACDHistFlip, CondRSIExtremeTurn}, r.Conditions)
	assert.Equal(t, 2, r.Categories)
	assert.True(t, r.Valid)
	assert.True(t, r.MTFConfirmed)
	assert.InDelta(t, 0.60, r.Threshold, 1e-9)
	assert.True(t, r.Triggered)
}

func TestReversalHigherTimeframeDamping(t *testing.T) {
	t.Parallel()
	c := NewComposite(DefaultEntryConfig(), scenarioConfig(), DefaultThresholdAdapter(), DefaultReversalThreshold(), false)
	pos := broker.Position{Ticket: 1, Direction: market.Long}

	f := toppingFrame()
	f.Bars[0].High = 1.1049
	f.MACDHist[0] = -0.0001

	// higher frame still bullish and RSI neutral: no confirmation
	h := market.Frame{Timeframe: market.H1, RSI: []float64{55, 54}, EMAFast: []float64{1.105}, EMASlow: []float64{1.100}}
	r := c.ShouldExit(pos, snapOf(f, h))
	assert.False(t, r.MTFConfirmed)
	assert.InDelta(t, 0.75*0.7, r.Score, 1e-9)
	assert.InDelta(t, 0.60*1.2, r.Threshold, 1e-9)
	assert.False(t, r.Triggered)

	// higher frame overbought confirms
	h.RSI[0] = 72
	r = c.ShouldExit(pos, snapOf(f, h))
	assert.True(t, r.MTFConfirmed)
	assert.True(t, r.Triggered)

	// higher frame with no indicator data fails open
	r = c.ShouldExit(pos, snapOf(f, market.Frame{Timeframe: market.H1}))
	assert.True(t, r.MTFConfirmed)
}

func TestReversalConditions(t *testing.T) {
	t.Parallel()
	s := NewReversalScorer(DefaultReversalConfig())

	t.Run("bearish engulfing against long", func(t *testing.T) {
		bars := []market.Candle{
			{Open: 1.1050, High: 1.1052, Low: 1.1020, Close: 1.1022},
			{Open: 1.1030, High: 1.1046, Low: 1.1028, Close: 1.1045},
		}
		assert.True(t, engulfing(bars, market.Short, 1.2))
		assert.False(t, engulfing(bars, market.Long, 1.2))
		got := s.conditions(market.Frame{Bars: bars}, market.Long)
		assert.Contains(t, got, CondEngulfing)
	})

	t.Run("small body is not engulfing", func(t *testing.T) {
		bars := []market.Candle{
			{Open: 1.1046, High: 1.1047, Low: 1.1026, Close: 1.1029},
			{Open: 1.1030, High: 1.1046, Low: 1.1028, Close: 1.1045},
		}
		assert.False(t, engulfing(bars, market.Short, 1.2))
	})

	t.Run("doji at new high", func(t *testing.T) {
		bars := []market.Candle{
			{Open: 1.1060, High: 1.1070, Low: 1.1050, Close: 1.1061},
			{Open: 1.1050, High: 1.1060, Low: 1.1045, Close: 1.1058},
			{Open: 1.1040, High: 1.1052, Low: 1.1038, Close: 1.1050},
		}
		assert.True(t, dojiAtExtreme(bars, market.Long, 0.1, 2))
		assert.False(t, dojiAtExtreme(bars, market.Short, 0.1, 2))
		assert.False(t, dojiAtExtreme(bars, market.Long, 0.1, 3))
	})

	t.Run("ema cross against short", func(t *testing.T) {
		f := market.Frame{EMAFast: []float64{1.101, 1.099}, EMASlow: []float64{1.100, 1.100}}
		assert.Contains(t, s.conditions(f, market.Short), CondEMACross)
		assert.NotContains(t, s.conditions(f, market.Long), CondEMACross)
	})

	t.Run("macd cross against long", func(t *testing.T) {
		f := market.Frame{MACD: []float64{0.0001, 0.0003}, MACDSignal: []float64{0.0002, 0.0002}}
		assert.Contains(t, s.conditions(f, market.Long), CondMACDCross)
	})

	t.Run("band bounce from upper", func(t *testing.T) {
		f := market.Frame{
			Bars: []market.Candle{
				{Open: 1.1078, High: 1.1079, Low: 1.1060, Close: 1.1062},
				{Open: 1.1070, High: 1.1085, Low: 1.1068, Close: 1.1078},
			},
			BBUpper: []float64{1.1080, 1.1080},
			BBLower: []float64{1.1020, 1.1020},
		}
		assert.Contains(t, s.conditions(f, market.Long), CondBandBounce)
		assert.NotContains(t, s.conditions(f, market.Short), CondBandBounce)
	})

	t.Run("structure break under swing lows", func(t *testing.T) {
		bars := []market.Candle{{Close: 1.0990}}
		for i := 0; i < 5; i++ {
			bars = append(bars, market.Candle{Low: 1.1000 + float64(i)*0.0001, High: 1.1020, Close: 1.1010})
		}
		assert.True(t, structureBreak(bars, market.Long, 5))
		assert.False(t, structureBreak(bars, market.Short, 5))
		assert.False(t, structureBreak(bars[:3], market.Long, 5))
	})

	t.Run("oversold turn against short", func(t *testing.T) {
		assert.True(t, rsiExtremeTurn([]float64{33, 28}, market.Short, 70, 30))
		assert.False(t, rsiExtremeTurn([]float64{28, 25}, market.Short, 70, 30))
		assert.False(t, rsiExtremeTurn([]float64{33}, market.Short, 70, 30))
	})
}

func TestReversalDisabledWeightsIgnored(t *testing.T) {
	t.Parallel()
	cfg := DefaultReversalConfig()
	cfg.Weights = map[string]float64{CondEMACross: 0}
	s := NewReversalScorer(cfg)
	f := market.Frame{EMAFast: []float64{1.099, 1.101}, EMASlow: []float64{1.100, 1.100}}
	r := s.Score(market.Snapshot{Primary: f}, market.Long)
	require.Empty(t, r.Conditions)
	assert.Equal(t, 0.0, r.Raw)
}

func TestCompositeAdaptiveRSI(t *testing.T) {
	t.Parallel()
	f := bullFrame()
	// RSI 49 fails the static 50 admission but passes once a volatility
	// burst relaxes the long threshold
	f.RSI[0] = 49
	f.ATR = atrSeries(0.0015, 0.0010, 14)

	static := NewComposite(DefaultEntryConfig(), DefaultReversalConfig(), DefaultThresholdAdapter(), DefaultReversalThreshold(), false)
	adaptive := NewComposite(DefaultEntryConfig(), DefaultReversalConfig(), DefaultThresholdAdapter(), DefaultReversalThreshold(), true)

	s1 := static.Scores(snapOf(f))
	s2 := adaptive.Scores(snapOf(f))
	assert.InDelta(t, 0.60, s1.Long, 1e-9)
	assert.InDelta(t, 0.75, s2.Long, 1e-9)
	assert.InDelta(t, 45, s2.RSI.Long, 1e-9)
	assert.Equal(t, s2.Long, s2.For(market.Long))
}
