// Package signal scores market snapshots: entry scores per direction,
// reversal scores against an open position, and the volatility-adjusted
// thresholds both are compared with.
package signal

import (
	"math"

	"github.com/rustyeddy/fxengine/market"
)

// EntryWeights is the share of the entry score each component can earn.
type EntryWeights struct {
	Trend     float64 `yaml:"trend" json:"trend"`
	MACD      float64 `yaml:"macd" json:"macd"`
	RSI       float64 `yaml:"rsi" json:"rsi"`
	Bollinger float64 `yaml:"bollinger" json:"bollinger"`
}

func DefaultEntryWeights() EntryWeights {
	return EntryWeights{Trend: 0.35, MACD: 0.25, RSI: 0.15, Bollinger: 0.25}
}

type EntryConfig struct {
	Weights EntryWeights  `yaml:"weights" json:"weights"`
	RSI     RSIThresholds `yaml:"rsi" json:"rsi"`

	// MACDOrderShare is the fraction of the MACD weight earned by line/signal
	// ordering alone, without a fresh cross.
	MACDOrderShare float64 `yaml:"macd_order_share" json:"macd_order_share"`

	// ZThreshold is the Bollinger z beyond which mean-reversion credit starts.
	ZThreshold float64 `yaml:"z_threshold" json:"z_threshold"`

	// StopDistance is the configured stop in price units. ATR below
	// LowVolFraction of it damps the score by LowVolDamping. 0 disables.
	StopDistance   float64 `yaml:"-" json:"-"`
	LowVolFraction float64 `yaml:"low_vol_fraction" json:"low_vol_fraction"`
	LowVolDamping  float64 `yaml:"low_vol_damping" json:"low_vol_damping"`

	// ADXMin zeroes the score while ADX is below it. 0 disables.
	ADXMin float64 `yaml:"adx_min" json:"adx_min"`
}

func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		Weights:        DefaultEntryWeights(),
		RSI:            RSIThresholds{Long: 50, Short: 50},
		MACDOrderShare: 0.7,
		ZThreshold:     0.5,
		LowVolFraction: 0.5,
		LowVolDamping:  0.3,
		ADXMin:         20,
	}
}

// EntryScorer computes the composite entry score for a direction.
type EntryScorer struct {
	Config EntryConfig
}

func NewEntryScorer(cfg EntryConfig) *EntryScorer {
	return &EntryScorer{Config: cfg}
}

// Score uses the configured RSI thresholds.
func (s *EntryScorer) Score(snap market.Snapshot, dir market.Direction) float64 {
	return s.ScoreWith(snap, dir, s.Config.RSI)
}

// ScoreWith scores dir in [0,1] using rsi as the RSI admission levels.
// Missing primary data yields 0.
func (s *EntryScorer) ScoreWith(snap market.Snapshot, dir market.Direction, rsi RSIThresholds) float64 {
	if dir != market.Long && dir != market.Short {
		return 0
	}
	f := snap.Primary
	if len(f.Bars) == 0 || !market.Has(1, f.EMAFast, f.EMASlow, f.RSI, f.ATR, f.BBUpper, f.BBMid, f.BBLower) ||
		!market.Has(2, f.MACD, f.MACDSignal) {
		return 0
	}

	cfg := s.Config
	w := cfg.Weights

	if adx, ok := market.At(f.ADX, 0); ok && cfg.ADXMin > 0 && adx < cfg.ADXMin {
		return 0
	}

	score := w.Trend * trendAgreement(snap, dir)
	score += w.MACD * macdCredit(f, dir, cfg.MACDOrderShare)
	if rsiAgrees(f.RSI[0], dir, rsi) {
		score += w.RSI
	}
	score += w.Bollinger * bollingerCredit(f, dir, cfg.ZThreshold)

	if cfg.StopDistance > 0 && cfg.LowVolFraction > 0 && f.ATR[0] < cfg.LowVolFraction*cfg.StopDistance {
		score *= cfg.LowVolDamping
	}
	return unit(score)
}

// trendAgreement is the fraction of timeframes whose EMA ordering agrees
// with dir. Higher frames without EMA data are not counted.
func trendAgreement(snap market.Snapshot, dir market.Direction) float64 {
	frames := append([]market.Frame{snap.Primary}, snap.Higher...)
	n, agree := 0, 0
	for _, f := range frames {
		fast, ok1 := market.At(f.EMAFast, 0)
		slow, ok2 := market.At(f.EMASlow, 0)
		if !ok1 || !ok2 {
			continue
		}
		n++
		if (fast-slow)*dir.Sign() > 0 {
			agree++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(agree) / float64(n)
}

func macdCredit(f market.Frame, dir market.Direction, orderShare float64) float64 {
	now := (f.MACD[0] - f.MACDSignal[0]) * dir.Sign()
	prev := (f.MACD[1] - f.MACDSignal[1]) * dir.Sign()
	switch {
	case now > 0 && prev <= 0:
		return 1
	case now > 0:
		return orderShare
	}
	return 0
}

func rsiAgrees(rsi float64, dir market.Direction, thr RSIThresholds) bool {
	if dir == market.Long {
		return rsi > thr.Long
	}
	return rsi < thr.Short
}

// bollingerCredit grades z = (close - mid) / half band width. Longs earn
// credit below -zThreshold, shorts above +zThreshold, reaching 1 at the band.
func bollingerCredit(f market.Frame, dir market.Direction, zThreshold float64) float64 {
	half := 0.5 * (f.BBUpper[0] - f.BBLower[0])
	if half <= 0 {
		return 0
	}
	z := (f.Bars[0].Close - f.BBMid[0]) / half
	z = -z * dir.Sign()
	if math.IsNaN(z) || z <= zThreshold {
		return 0
	}
	if zThreshold >= 1 {
		return 1
	}
	return clamp((z-zThreshold)/(1-zThreshold), 0, 1)
}

// unit clamps to [0,1] and maps NaN to 0.
func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, 0, 1)
}
