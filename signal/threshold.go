package signal

// RSIThresholds are the RSI admission levels for entries: a long needs RSI
// above Long, a short needs RSI below Short.
type RSIThresholds struct {
	Long  float64 `yaml:"long" json:"long"`
	Short float64 `yaml:"short" json:"short"`
}

// ThresholdAdapter shifts the RSI admission levels with volatility. ATR above
// its trailing average relaxes both sides, ATR below it tightens them.
type ThresholdAdapter struct {
	Base   RSIThresholds `yaml:"base" json:"base"`
	Period int           `yaml:"period" json:"period"`
	// Rate is RSI points per unit of normalised ATR deviation.
	Rate  float64 `yaml:"rate" json:"rate"`
	Floor float64 `yaml:"floor" json:"floor"`
	Ceil  float64 `yaml:"ceil" json:"ceil"`
}

func DefaultThresholdAdapter() ThresholdAdapter {
	return ThresholdAdapter{
		Base:   RSIThresholds{Long: 50, Short: 50},
		Period: 14,
		Rate:   10,
		Floor:  30,
		Ceil:   70,
	}
}

// Deviation returns (atr_now - atr_avg) / atr_avg where atr_avg is the mean
// of the Period values before atr[0]. ok is false on short or degenerate input.
func (a ThresholdAdapter) Deviation(atr []float64) (d float64, ok bool) {
	if a.Period <= 0 || len(atr) < a.Period+1 {
		return 0, false
	}
	sum := 0.0
	for _, v := range atr[1 : a.Period+1] {
		sum += v
	}
	avg := sum / float64(a.Period)
	if avg <= 0 || atr[0] <= 0 {
		return 0, false
	}
	return (atr[0] - avg) / avg, true
}

// Adapt returns the adjusted thresholds, or Base unchanged when there is not
// enough ATR history.
func (a ThresholdAdapter) Adapt(atr []float64) RSIThresholds {
	d, ok := a.Deviation(atr)
	if !ok {
		return a.Base
	}
	return RSIThresholds{
		Long:  clamp(a.Base.Long-d*a.Rate, a.Floor, a.Ceil),
		Short: clamp(a.Base.Short+d*a.Rate, a.Floor, a.Ceil),
	}
}

// ReversalThreshold maps the 1..10 sensitivity setting onto a score
// threshold and raises it when ATR runs hot.
type ReversalThreshold struct {
	Base        float64 `yaml:"base" json:"base"`
	Step        float64 `yaml:"step" json:"step"`
	Sensitivity int     `yaml:"sensitivity" json:"sensitivity"`

	ATRPeriod    int     `yaml:"atr_period" json:"atr_period"`
	HighVolRatio float64 `yaml:"high_vol_ratio" json:"high_vol_ratio"`
	InflateMin   float64 `yaml:"inflate_min" json:"inflate_min"`
	InflateMax   float64 `yaml:"inflate_max" json:"inflate_max"`
}

func DefaultReversalThreshold() ReversalThreshold {
	return ReversalThreshold{
		Base:         0.40,
		Step:         0.04,
		Sensitivity:  5,
		ATRPeriod:    10,
		HighVolRatio: 0.20,
		InflateMin:   1.08,
		InflateMax:   1.15,
	}
}

// Value is Base + Sensitivity×Step before any volatility inflation.
func (r ReversalThreshold) Value() float64 {
	s := r.Sensitivity
	if s < 1 {
		s = 1
	}
	if s > 10 {
		s = 10
	}
	return r.Base + float64(s)*r.Step
}

// Threshold returns Value inflated by a factor in [InflateMin, InflateMax]
// when atr[0] exceeds its ATRPeriod average by more than HighVolRatio. The
// factor grows linearly until the excess doubles HighVolRatio.
func (r ReversalThreshold) Threshold(atr []float64) float64 {
	thr := r.Value()
	dev, ok := ThresholdAdapter{Period: r.ATRPeriod}.Deviation(atr)
	if !ok || r.HighVolRatio <= 0 || dev <= r.HighVolRatio {
		return thr
	}
	t := clamp((dev-r.HighVolRatio)/r.HighVolRatio, 0, 1)
	return thr * (r.InflateMin + t*(r.InflateMax-r.InflateMin))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
