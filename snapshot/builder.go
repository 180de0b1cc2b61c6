// Package snapshot keeps a rolling window of closed bars and turns it into
// the newest-first market.Snapshot the decision engine reads.
package snapshot

import (
	"fmt"
	"time"

	"github.com/rustyeddy/fxengine/indicators"
	"github.com/rustyeddy/fxengine/market"
)

// Params are the indicator periods and window sizes used for every frame.
type Params struct {
	EMAFast    int     `yaml:"ema_fast" json:"ema_fast"`
	EMASlow    int     `yaml:"ema_slow" json:"ema_slow"`
	RSI        int     `yaml:"rsi" json:"rsi"`
	ATR        int     `yaml:"atr" json:"atr"`
	MACDFast   int     `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow   int     `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal int     `yaml:"macd_signal" json:"macd_signal"`
	ADX        int     `yaml:"adx" json:"adx"`
	BBPeriod   int     `yaml:"bb_period" json:"bb_period"`
	BBDev      float64 `yaml:"bb_dev" json:"bb_dev"`

	// Depth is how many newest points each series keeps in the snapshot.
	Depth int `yaml:"depth" json:"depth"`
	// History caps the primary bars retained by the builder.
	History int `yaml:"history" json:"history"`
}

func DefaultParams() Params {
	return Params{
		EMAFast:    20,
		EMASlow:    50,
		RSI:        14,
		ATR:        14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ADX:        14,
		BBPeriod:   20,
		BBDev:      2.0,
		Depth:      60,
		History:    2000,
	}
}

func (p Params) Validate() error {
	for name, v := range map[string]int{
		"ema_fast": p.EMAFast, "ema_slow": p.EMASlow, "rsi": p.RSI, "atr": p.ATR,
		"macd_fast": p.MACDFast, "macd_slow": p.MACDSlow, "macd_signal": p.MACDSignal,
		"adx": p.ADX, "bb_period": p.BBPeriod, "depth": p.Depth,
	} {
		if v <= 0 {
			return fmt.Errorf("snapshot: %s must be > 0", name)
		}
	}
	if p.EMAFast >= p.EMASlow {
		return fmt.Errorf("snapshot: ema_fast (%d) must be < ema_slow (%d)", p.EMAFast, p.EMASlow)
	}
	if p.BBDev <= 0 {
		return fmt.Errorf("snapshot: bb_dev must be > 0")
	}
	if p.History != 0 && p.History < p.Depth {
		return fmt.Errorf("snapshot: history (%d) must be >= depth (%d)", p.History, p.Depth)
	}
	return nil
}

// Builder accumulates closed primary bars for one symbol.
type Builder struct {
	symbol  string
	primary market.Timeframe
	higher  []market.Timeframe
	params  Params

	bars []market.Candle // oldest first
}

func NewBuilder(symbol string, primary market.Timeframe, higher []market.Timeframe, p Params) (*Builder, error) {
	if !primary.Valid() {
		return nil, fmt.Errorf("snapshot: invalid primary timeframe %q", primary)
	}
	for _, h := range higher {
		if !h.Valid() || h.Duration() <= primary.Duration() {
			return nil, fmt.Errorf("snapshot: higher timeframe %q must be longer than %q", h, primary)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Builder{symbol: symbol, primary: primary, higher: higher, params: p}, nil
}

// Add appends a closed primary bar. Bars that are not newer than the last one
// are ignored and reported.
func (b *Builder) Add(c market.Candle) error {
	if n := len(b.bars); n > 0 && !c.Time.After(b.bars[n-1].Time) {
		return fmt.Errorf("snapshot: bar %s not after %s", c.Time.Format(time.RFC3339), b.bars[n-1].Time.Format(time.RFC3339))
	}
	b.bars = append(b.bars, c)
	if h := b.params.History; h > 0 && len(b.bars) > h {
		b.bars = append(b.bars[:0], b.bars[len(b.bars)-h:]...)
	}
	return nil
}

func (b *Builder) Len() int {
	return len(b.bars)
}

// Last returns the newest closed bar.
func (b *Builder) Last() (market.Candle, bool) {
	if len(b.bars) == 0 {
		return market.Candle{}, false
	}
	return b.bars[len(b.bars)-1], true
}

// Snapshot builds the view for the given quote. Short history yields short
// series, never an error; the scorers fail closed on them.
func (b *Builder) Snapshot(q market.Quote) (market.Snapshot, error) {
	snap := market.Snapshot{
		Symbol:  b.symbol,
		Time:    q.Time,
		Bid:     q.Bid,
		Ask:     q.Ask,
		Primary: BuildFrame(b.primary, b.bars, b.params),
	}
	for _, h := range b.higher {
		hb, err := market.Resample(b.bars, b.primary, h)
		if err != nil {
			return market.Snapshot{}, fmt.Errorf("snapshot: %w", err)
		}
		snap.Higher = append(snap.Higher, BuildFrame(h, hb, b.params))
	}
	return snap, nil
}

// BuildFrame computes every indicator over oldest-first bars and returns
// the newest-first frame truncated to p.Depth.
func BuildFrame(tf market.Timeframe, bars []market.Candle, p Params) market.Frame {
	f := market.Frame{Timeframe: tf}
	if len(bars) == 0 {
		return f
	}
	closes := market.Closes(bars)

	f.Bars = newest(bars, p.Depth)
	f.EMAFast = newest(indicators.EMAValues(closes, p.EMAFast), p.Depth)
	f.EMASlow = newest(indicators.EMAValues(closes, p.EMASlow), p.Depth)
	f.RSI = newest(indicators.Run(indicators.NewRSI(p.RSI), bars), p.Depth)
	f.ATR = newest(indicators.Run(indicators.NewATR(p.ATR), bars), p.Depth)
	f.ADX = newest(indicators.Run(indicators.NewADX(p.ADX), bars), p.Depth)

	line, sig, hist := indicators.MACDSeries(bars, p.MACDFast, p.MACDSlow, p.MACDSignal)
	f.MACD = newest(line, p.Depth)
	f.MACDSignal = newest(sig, p.Depth)
	f.MACDHist = newest(hist, p.Depth)

	up, mid, lo := indicators.BollingerSeries(bars, p.BBPeriod, p.BBDev)
	f.BBUpper = newest(up, p.Depth)
	f.BBMid = newest(mid, p.Depth)
	f.BBLower = newest(lo, p.Depth)
	return f
}

func newest[T any](in []T, depth int) []T {
	if depth > 0 && len(in) > depth {
		in = in[len(in)-depth:]
	}
	return market.Reverse(in)
}
