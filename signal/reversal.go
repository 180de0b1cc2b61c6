package signal

import (
	"sort"

	"github.com/rustyeddy/fxengine/market"
)

// Category groups reversal conditions so one noisy indicator cannot
// trigger an exit on its own.
type Category string

const (
	CatRSI         Category = "rsi"
	CatMACD        Category = "macd"
	CatEMA         Category = "ema"
	CatCandle      Category = "candle"
	CatBollinger   Category = "bollinger"
	CatPriceAction Category = "price_action"
)

// Reversal condition names.
const (
	CondRSIExtremeTurn = "rsi_extreme_turn"
	CondRSIDivergence  = "rsi_divergence"
	CondMACDHistFlip   = "macd_hist_flip"
	CondMACDCross      = "macd_cross"
	CondEMACross       = "ema_cross"
	CondEngulfing      = "engulfing"
	CondDojiExtreme    = "doji_extreme"
	CondBandBounce     = "band_bounce"
	CondStructureBreak = "structure_break"
)

var conditionCategory = map[string]Category{
	CondRSIExtremeTurn: CatRSI,
	CondRSIDivergence:  CatRSI,
	CondMACDHistFlip:   CatMACD,
	CondMACDCross:      CatMACD,
	CondEMACross:       CatEMA,
	CondEngulfing:      CatCandle,
	CondDojiExtreme:    CatCandle,
	CondBandBounce:     CatBollinger,
	CondStructureBreak: CatPriceAction,
}

// CategoryOf returns the category of a condition name.
func CategoryOf(cond string) Category {
	return conditionCategory[cond]
}

// DefaultReversalWeights is the tuned weight table. It is configuration;
// any entry may be overridden or set to 0 to disable a condition.
func DefaultReversalWeights() map[string]float64 {
	return map[string]float64{
		CondRSIExtremeTurn: 0.25,
		CondRSIDivergence:  0.20,
		CondMACDHistFlip:   0.20,
		CondMACDCross:      0.20,
		CondEMACross:       0.25,
		CondEngulfing:      0.30,
		CondDojiExtreme:    0.15,
		CondBandBounce:     0.15,
		CondStructureBreak: 0.15,
	}
}

type ReversalConfig struct {
	Weights       map[string]float64 `yaml:"weights" json:"weights"`
	MinCategories int                `yaml:"min_categories" json:"min_categories"`

	// MTFDamping multiplies the score when the higher timeframe does not
	// confirm; the damped score must then clear threshold × MTFMargin.
	MTFDamping float64 `yaml:"mtf_damping" json:"mtf_damping"`
	MTFMargin  float64 `yaml:"mtf_margin" json:"mtf_margin"`

	Overbought float64 `yaml:"overbought" json:"overbought"`
	Oversold   float64 `yaml:"oversold" json:"oversold"`

	DivergenceLookback int     `yaml:"divergence_lookback" json:"divergence_lookback"`
	ExtremeLookback    int     `yaml:"extreme_lookback" json:"extreme_lookback"`
	StructureLookback  int     `yaml:"structure_lookback" json:"structure_lookback"`
	EngulfRatio        float64 `yaml:"engulf_ratio" json:"engulf_ratio"`
	DojiRatio          float64 `yaml:"doji_ratio" json:"doji_ratio"`
}

func DefaultReversalConfig() ReversalConfig {
	return ReversalConfig{
		Weights:            DefaultReversalWeights(),
		MinCategories:      2,
		MTFDamping:         0.7,
		MTFMargin:          1.2,
		Overbought:         70,
		Oversold:           30,
		DivergenceLookback: 10,
		ExtremeLookback:    10,
		StructureLookback:  5,
		EngulfRatio:        1.2,
		DojiRatio:          0.1,
	}
}

// Reversal is the scored evidence against an open position.
type Reversal struct {
	// Raw is the clamped weight sum of the conditions that fired.
	Raw float64
	// Score is Raw after the category gate and MTF damping; 0 when the
	// category gate fails.
	Score      float64
	Conditions []string
	Categories int
	Valid      bool

	MTFConfirmed bool
	Threshold    float64
	Triggered    bool
}

// ReversalScorer evaluates reversal conditions against a position direction.
type ReversalScorer struct {
	Config ReversalConfig
}

func NewReversalScorer(cfg ReversalConfig) *ReversalScorer {
	if cfg.Weights == nil {
		cfg.Weights = DefaultReversalWeights()
	}
	return &ReversalScorer{Config: cfg}
}

// Score evaluates every condition against posDir on the primary frame,
// applies the category gate, and checks the first higher frame.
func (s *ReversalScorer) Score(snap market.Snapshot, posDir market.Direction) Reversal {
	var r Reversal
	if posDir != market.Long && posDir != market.Short {
		return r
	}

	cats := map[Category]bool{}
	for _, cond := range s.conditions(snap.Primary, posDir) {
		w := s.Config.Weights[cond]
		if w <= 0 {
			continue
		}
		r.Raw += w
		r.Conditions = append(r.Conditions, cond)
		cats[CategoryOf(cond)] = true
	}
	r.Raw = unit(r.Raw)
	r.Categories = len(cats)
	sort.Strings(r.Conditions)

	r.Valid = r.Raw > 0 && r.Categories >= s.Config.MinCategories
	r.MTFConfirmed = s.higherConfirms(snap, posDir)
	if !r.Valid {
		return r
	}
	r.Score = r.Raw
	if !r.MTFConfirmed {
		r.Score = unit(r.Raw * s.Config.MTFDamping)
	}
	return r
}

// Decide fills Threshold and Triggered. Without higher timeframe
// confirmation the bar rises to threshold × MTFMargin.
func (s *ReversalScorer) Decide(r Reversal, threshold float64) Reversal {
	r.Threshold = threshold
	if !r.MTFConfirmed {
		r.Threshold = threshold * s.Config.MTFMargin
	}
	r.Triggered = r.Valid && r.Score >= r.Threshold
	return r
}

// conditions lists the names of the conditions that fire against posDir.
// Each check needs its own history and silently skips when it is short.
func (s *ReversalScorer) conditions(f market.Frame, posDir market.Direction) []string {
	cfg := s.Config
	// against is the direction of the move that hurts the position
	against := posDir.Opposite()
	var out []string

	if rsiExtremeTurn(f.RSI, posDir, cfg.Overbought, cfg.Oversold) {
		out = append(out, CondRSIExtremeTurn)
	}
	if rsiDivergence(f, posDir, cfg.DivergenceLookback) {
		out = append(out, CondRSIDivergence)
	}
	if crossed(f.MACDHist, nil, against) {
		out = append(out, CondMACDHistFlip)
	}
	if crossed(f.MACD, f.MACDSignal, against) {
		out = append(out, CondMACDCross)
	}
	if crossed(f.EMAFast, f.EMASlow, against) {
		out = append(out, CondEMACross)
	}
	if engulfing(f.Bars, against, cfg.EngulfRatio) {
		out = append(out, CondEngulfing)
	}
	if dojiAtExtreme(f.Bars, posDir, cfg.DojiRatio, cfg.ExtremeLookback) {
		out = append(out, CondDojiExtreme)
	}
	if bandBounce(f, posDir) {
		out = append(out, CondBandBounce)
	}
	if structureBreak(f.Bars, posDir, cfg.StructureLookback) {
		out = append(out, CondStructureBreak)
	}
	return out
}

// higherConfirms checks Higher[0] for an RSI extreme or an EMA ordering
// against posDir. A missing frame or short data confirms.
func (s *ReversalScorer) higherConfirms(snap market.Snapshot, posDir market.Direction) bool {
	h, ok := snap.HigherFrame(0)
	if !ok {
		return true
	}
	rsi, okR := market.At(h.RSI, 0)
	fast, okF := market.At(h.EMAFast, 0)
	slow, okS := market.At(h.EMASlow, 0)
	if !okR && !(okF && okS) {
		return true
	}
	if okR {
		if posDir == market.Long && rsi >= s.Config.Overbought {
			return true
		}
		if posDir == market.Short && rsi <= s.Config.Oversold {
			return true
		}
		if rsiExtremeTurn(h.RSI, posDir, s.Config.Overbought, s.Config.Oversold) {
			return true
		}
	}
	if okF && okS && (fast-slow)*posDir.Sign() < 0 {
		return true
	}
	return false
}

// rsiExtremeTurn: RSI was beyond the extreme on the previous bar and is back
// inside now.
func rsiExtremeTurn(rsi []float64, posDir market.Direction, overbought, oversold float64) bool {
	if len(rsi) < 2 {
		return false
	}
	if posDir == market.Long {
		return rsi[1] >= overbought && rsi[0] < overbought
	}
	return rsi[1] <= oversold && rsi[0] > oversold
}

// rsiDivergence: price makes a new extreme in the position's favour over
// lookback bars while RSI does not.
func rsiDivergence(f market.Frame, posDir market.Direction, lookback int) bool {
	if lookback < 2 || len(f.Bars) < lookback+1 || len(f.RSI) < lookback+1 {
		return false
	}
	if posDir == market.Long {
		hiPrice, hiRSI := f.Bars[1].High, f.RSI[1]
		for i := 2; i <= lookback; i++ {
			hiPrice = max(hiPrice, f.Bars[i].High)
			hiRSI = max(hiRSI, f.RSI[i])
		}
		return f.Bars[0].High >= hiPrice && f.RSI[0] < hiRSI
	}
	loPrice, loRSI := f.Bars[1].Low, f.RSI[1]
	for i := 2; i <= lookback; i++ {
		loPrice = min(loPrice, f.Bars[i].Low)
		loRSI = min(loRSI, f.RSI[i])
	}
	return f.Bars[0].Low <= loPrice && f.RSI[0] > loRSI
}

// crossed reports a cross of a over b (or over zero when b is nil) into dir
// on the latest bar.
func crossed(a, b []float64, dir market.Direction) bool {
	if len(a) < 2 || (b != nil && len(b) < 2) {
		return false
	}
	now, prev := a[0], a[1]
	if b != nil {
		now -= b[0]
		prev -= b[1]
	}
	now *= dir.Sign()
	prev *= dir.Sign()
	return now > 0 && prev <= 0
}

// engulfing: the latest bar moves in dir, the previous bar moved the other
// way, the latest body is ratio times larger and covers the previous body.
func engulfing(bars []market.Candle, dir market.Direction, ratio float64) bool {
	if len(bars) < 2 {
		return false
	}
	cur, prev := bars[0], bars[1]
	if prev.Body() == 0 || cur.Body() <= ratio*prev.Body() {
		return false
	}
	if dir == market.Short {
		return cur.Bearish() && prev.Bullish() && cur.Open >= prev.Close && cur.Close <= prev.Open
	}
	return cur.Bullish() && prev.Bearish() && cur.Open <= prev.Close && cur.Close >= prev.Open
}

// dojiAtExtreme: an indecision bar printing a new lookback high (against a
// long) or low (against a short).
func dojiAtExtreme(bars []market.Candle, posDir market.Direction, ratio float64, lookback int) bool {
	if lookback < 1 || len(bars) < lookback+1 {
		return false
	}
	cur := bars[0]
	if cur.Range() <= 0 || cur.Body()/cur.Range() >= ratio {
		return false
	}
	for _, b := range bars[1 : lookback+1] {
		if posDir == market.Long && b.High > cur.High {
			return false
		}
		if posDir == market.Short && b.Low < cur.Low {
			return false
		}
	}
	return true
}

// bandBounce: the previous bar touched the band on the position's side and
// the latest bar closed back inside and lower (long) or higher (short).
func bandBounce(f market.Frame, posDir market.Direction) bool {
	if len(f.Bars) < 2 || !market.Has(2, f.BBUpper, f.BBLower) {
		return false
	}
	cur, prev := f.Bars[0], f.Bars[1]
	if posDir == market.Long {
		return prev.High >= f.BBUpper[1] && cur.Close < f.BBUpper[0] && cur.Close < prev.Close
	}
	return prev.Low <= f.BBLower[1] && cur.Close > f.BBLower[0] && cur.Close > prev.Close
}

// structureBreak: the latest close breaks the lookback swing low (long) or
// swing high (short).
func structureBreak(bars []market.Candle, posDir market.Direction, lookback int) bool {
	if lookback < 1 || len(bars) < lookback+1 {
		return false
	}
	cur := bars[0]
	for _, b := range bars[1 : lookback+1] {
		if posDir == market.Long && cur.Close >= b.Low {
			return false
		}
		if posDir == market.Short && cur.Close <= b.High {
			return false
		}
	}
	return true
}
