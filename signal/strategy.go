package signal

import (
	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
)

// Scores holds the independent entry scores for both directions.
type Scores struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
	// RSI is the admission pair the scores were computed with.
	RSI RSIThresholds `json:"rsi"`
}

// For returns the score of dir.
func (s Scores) For(dir market.Direction) float64 {
	if dir == market.Short {
		return s.Short
	}
	if dir == market.Long {
		return s.Long
	}
	return 0
}

// Strategy is the plug-in point for the decision engine. Variants differ by
// configuration or by supplying another Strategy, not by forking the engine.
type Strategy interface {
	Scores(snap market.Snapshot) Scores
	ShouldExit(pos broker.Position, snap market.Snapshot) Reversal
}

// Composite wires the entry scorer, the reversal scorer and both threshold
// models into a Strategy.
type Composite struct {
	Entry       *EntryScorer
	Reversal    *ReversalScorer
	Adapter     ThresholdAdapter
	Threshold   ReversalThreshold
	AdaptiveRSI bool
}

var _ Strategy = (*Composite)(nil)

func NewComposite(entry EntryConfig, rev ReversalConfig, adapter ThresholdAdapter, thr ReversalThreshold, adaptive bool) *Composite {
	return &Composite{
		Entry:       NewEntryScorer(entry),
		Reversal:    NewReversalScorer(rev),
		Adapter:     adapter,
		Threshold:   thr,
		AdaptiveRSI: adaptive,
	}
}

func (c *Composite) Scores(snap market.Snapshot) Scores {
	rsi := c.Entry.Config.RSI
	if c.AdaptiveRSI {
		a := c.Adapter
		a.Base = rsi
		rsi = a.Adapt(snap.Primary.ATR)
	}
	return Scores{
		Long:  c.Entry.ScoreWith(snap, market.Long, rsi),
		Short: c.Entry.ScoreWith(snap, market.Short, rsi),
		RSI:   rsi,
	}
}

func (c *Composite) ShouldExit(pos broker.Position, snap market.Snapshot) Reversal {
	r := c.Reversal.Score(snap, pos.Direction)
	return c.Reversal.Decide(r, c.Threshold.Threshold(snap.Primary.ATR))
}
