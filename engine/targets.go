package engine

import (
	"math"

	"github.com/rustyeddy/fxengine/market"
)

type DynamicTPConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// UpdateBars is how many primary bars pass between scans.
	UpdateBars int `yaml:"update_bars" json:"update_bars"`
	Lookback   int `yaml:"lookback" json:"lookback"`
	// SwingStrength is the number of bars each side a swing must dominate.
	SwingStrength        int     `yaml:"swing_strength" json:"swing_strength"`
	TouchTolerancePoints float64 `yaml:"touch_tolerance_points" json:"touch_tolerance_points"`
	MinDistancePoints    float64 `yaml:"min_tp_distance_points" json:"min_tp_distance_points"`
	MaxDistancePoints    float64 `yaml:"max_tp_distance_points" json:"max_tp_distance_points"`
}

func DefaultDynamicTPConfig() DynamicTPConfig {
	return DynamicTPConfig{
		Enabled:              true,
		UpdateBars:           5,
		Lookback:             50,
		SwingStrength:        2,
		TouchTolerancePoints: 30,
		MinDistancePoints:    100,
		MaxDistancePoints:    500,
	}
}

var (
	fibRetracements = []float64{0.236, 0.382, 0.5, 0.618, 0.786}
	fibExtensions   = []float64{1.272, 1.618}
)

// window returns up to n newest bars in oldest-first order.
func window(bars []market.Candle, n int) []market.Candle {
	if n > len(bars) {
		n = len(bars)
	}
	return market.Reverse(bars[:n])
}

// srLevels finds swing highs and lows touched at least twice within tol.
func srLevels(bars []market.Candle, strength int, tol float64) []float64 {
	if strength < 1 {
		strength = 1
	}
	var swings []float64
	for i := strength; i < len(bars)-strength; i++ {
		hi, lo := true, true
		for j := i - strength; j <= i+strength; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				hi = false
			}
			if bars[j].Low <= bars[i].Low {
				lo = false
			}
		}
		if hi {
			swings = append(swings, bars[i].High)
		}
		if lo {
			swings = append(swings, bars[i].Low)
		}
	}

	var out []float64
	for _, level := range swings {
		touches := 0
		for _, b := range bars {
			if math.Abs(b.High-level) <= tol || math.Abs(b.Low-level) <= tol {
				touches++
			}
		}
		if touches < 2 {
			continue
		}
		dup := false
		for _, o := range out {
			if math.Abs(o-level) <= tol {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, level)
		}
	}
	return out
}

// pivotLevels is the classic floor pivot set from one reference bar.
func pivotLevels(ref market.Candle) []float64 {
	p := (ref.High + ref.Low + ref.Close) / 3
	r := ref.High - ref.Low
	return []float64{p, 2*p - ref.Low, 2*p - ref.High, p + r, p - r}
}

// fibLevels are retracements of the window range plus extensions in dir.
func fibLevels(bars []market.Candle, dir market.Direction) []float64 {
	if len(bars) == 0 {
		return nil
	}
	hi, lo := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	rng := hi - lo
	if rng <= 0 {
		return nil
	}
	var out []float64
	for _, r := range fibRetracements {
		out = append(out, lo+rng*r)
	}
	for _, r := range fibExtensions {
		if dir == market.Long {
			out = append(out, lo+rng*r)
		} else {
			out = append(out, hi-rng*r)
		}
	}
	return out
}

// pivotReference is the last closed higher-frame bar, or the primary
// window folded into one bar.
func pivotReference(snap market.Snapshot, bars []market.Candle) (market.Candle, bool) {
	if f, ok := snap.HigherFrame(0); ok {
		if b, ok := f.Bar(0); ok {
			return b, true
		}
	}
	if len(bars) == 0 {
		return market.Candle{}, false
	}
	ref := bars[len(bars)-1]
	for _, b := range bars {
		ref.High = math.Max(ref.High, b.High)
		ref.Low = math.Min(ref.Low, b.Low)
	}
	return ref, true
}

// targetLevels collects every S/R, pivot and Fibonacci candidate.
func targetLevels(snap market.Snapshot, dir market.Direction, cfg DynamicTPConfig, point float64) []float64 {
	bars := window(snap.Primary.Bars, cfg.Lookback)
	levels := srLevels(bars, cfg.SwingStrength, cfg.TouchTolerancePoints*point)
	if ref, ok := pivotReference(snap, bars); ok {
		levels = append(levels, pivotLevels(ref)...)
	}
	return append(levels, fibLevels(bars, dir)...)
}

// pickTarget returns the candidate closest to entry that is in profit and
// lies between minDist and maxDist beyond price.
func pickTarget(levels []float64, dir market.Direction, entry, price, minDist, maxDist float64) (float64, bool) {
	sign := dir.Sign()
	best, found := 0.0, false
	for _, l := range levels {
		if (l-entry)*sign <= 0 {
			continue
		}
		d := (l - price) * sign
		if d < minDist || (maxDist > 0 && d > maxDist) {
			continue
		}
		if !found || (l-entry)*sign < (best-entry)*sign {
			best, found = l, true
		}
	}
	return best, found
}
