package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
)

// TradingHours is a UTC hour window [Start, End). Equal bounds mean all day;
// Start > End wraps past midnight.
type TradingHours struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

func (h TradingHours) Contains(t time.Time) bool {
	if h.Start == h.End {
		return true
	}
	hour := t.UTC().Hour()
	if h.Start < h.End {
		return hour >= h.Start && hour < h.End
	}
	return hour >= h.Start || hour < h.End
}

type ScaleInConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ProfitATRMultiple is how far every open position in the direction must
	// be in profit, in ATRs, before another is added. 0 adds at any price.
	ProfitATRMultiple float64 `yaml:"profit_atr_multiple" json:"profit_atr_multiple"`
}

type EntryConfig struct {
	Threshold        float64 `yaml:"entry_score_threshold" json:"entry_score_threshold"`
	QualityMargin    float64 `yaml:"quality_margin" json:"quality_margin"`
	ConfirmationBars int     `yaml:"signal_confirmation_bars" json:"signal_confirmation_bars"`

	SLATRMultiple float64 `yaml:"sl_atr_multiple" json:"sl_atr_multiple"`
	TPATRMultiple float64 `yaml:"tp_atr_multiple" json:"tp_atr_multiple"`

	HTFBias         bool         `yaml:"htf_bias" json:"htf_bias"`
	MaxSpreadPips   float64      `yaml:"max_spread_pips" json:"max_spread_pips"`
	MaxSlippagePips float64      `yaml:"max_slippage_pips" json:"max_slippage_pips"`
	Hours           TradingHours `yaml:"trading_hours" json:"trading_hours"`
	AllowHedge      bool         `yaml:"allow_hedge" json:"allow_hedge"`

	ScaleIn ScaleInConfig `yaml:"scale_in" json:"scale_in"`
}

func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		Threshold:        0.6,
		QualityMargin:    0.05,
		ConfirmationBars: 2,
		SLATRMultiple:    1.5,
		TPATRMultiple:    3.0,
		HTFBias:          true,
		MaxSlippagePips:  3,
		ScaleIn:          ScaleInConfig{ProfitATRMultiple: 1.0},
	}
}

func (c EntryConfig) Validate() error {
	switch {
	case c.Threshold <= 0 || c.Threshold > 1:
		return fmt.Errorf("engine: entry_score_threshold %v outside (0, 1]", c.Threshold)
	case c.QualityMargin < 0:
		return fmt.Errorf("engine: quality_margin must be >= 0")
	case c.ConfirmationBars < 1:
		return fmt.Errorf("engine: signal_confirmation_bars must be >= 1")
	case c.SLATRMultiple <= 0:
		return fmt.Errorf("engine: sl_atr_multiple must be > 0")
	case c.TPATRMultiple < 0 || c.MaxSpreadPips < 0 || c.MaxSlippagePips < 0:
		return fmt.Errorf("engine: tp multiple, spread and slippage must be >= 0")
	case c.Hours.Start < 0 || c.Hours.Start > 23 || c.Hours.End < 0 || c.Hours.End > 23:
		return fmt.Errorf("engine: trading hours must be within 0..23")
	}
	return nil
}

// EntryManager turns confirmed entry scores into orders. Each direction has
// a counter of consecutive qualifying bars.
type EntryManager struct {
	cfg   EntryConfig
	strat signal.Strategy
	gw    broker.OrderGateway
	obs   Observer
	log   zerolog.Logger

	// weekend blocks new entries while weekend protection is active.
	weekend WeekendConfig

	counters [2]int
}

func NewEntryManager(cfg EntryConfig, strat signal.Strategy, gw broker.OrderGateway, logger zerolog.Logger) *EntryManager {
	return &EntryManager{
		cfg:   cfg,
		strat: strat,
		gw:    gw,
		obs:   nopObserver{},
		log:   logger.With().Str("component", "entry").Logger(),
	}
}

// Counter is the current confirmation count for dir.
func (m *EntryManager) Counter(dir market.Direction) int {
	return m.counters[dir.Index()]
}

func (m *EntryManager) resetCounters() {
	m.counters = [2]int{}
}

// confirm folds one bar of scores into the counters and returns the
// direction whose run just reached the confirmation count, if any.
func (m *EntryManager) confirm(s signal.Scores) (market.Direction, float64) {
	thr := m.cfg.Threshold
	long, short := s.Long >= thr, s.Short >= thr

	winner := market.Flat
	switch {
	case long && short:
		if s.Long > s.Short {
			winner = market.Long
		} else if s.Short > s.Long {
			winner = market.Short
		}
	case long:
		winner = market.Long
	case short:
		winner = market.Short
	}

	if winner == market.Flat {
		m.resetCounters()
		return market.Flat, 0
	}
	m.counters[winner.Index()]++
	m.counters[winner.Opposite().Index()] = 0

	if m.counters[winner.Index()] < m.cfg.ConfirmationBars {
		return market.Flat, 0
	}
	return winner, s.For(winner)
}

// Evaluate runs once per new bar. It returns the ticket of a position it
// opened, or 0, and whether that position was a scale-in.
func (m *EntryManager) Evaluate(ctx context.Context, ec *EngineContext, snap market.Snapshot, positions []broker.Position, acct broker.Account) (uint64, bool, error) {
	now := ec.now(snap)
	log := m.log.With().Time("at", now).Logger()

	veto := ec.Session.EntryVeto(now)
	if !m.cfg.Hours.Contains(now) {
		veto.Block(risk.CodeOutsideHours, "hour %d outside [%d, %d)", now.Hour(), m.cfg.Hours.Start, m.cfg.Hours.End)
	}
	if m.weekend.Active(now) {
		veto.Block(risk.CodeWeekend, "weekend protection from Friday %02d:00 UTC", m.weekend.FromHour)
	}
	if pip := ec.Meta.PipSize(); m.cfg.MaxSpreadPips > 0 && pip > 0 {
		if spread := snap.Spread() / pip; spread > m.cfg.MaxSpreadPips {
			veto.Block(risk.CodeSpread, "spread %.1f pips > %.1f", spread, m.cfg.MaxSpreadPips)
		}
	}
	if !veto.Allowed {
		m.resetCounters()
		m.obs.EntryDecision(market.Flat, veto)
		log.Info().Str("event", EventEntryVeto).Strs("codes", veto.Codes()).Str("reason", veto.String()).Send()
		return 0, false, nil
	}

	scores := m.strat.Scores(snap)
	m.obs.EntryScored(scores)
	log.Debug().Str("event", EventEntryScore).
		Float64("long", scores.Long).Float64("short", scores.Short).
		Float64("rsi_long", scores.RSI.Long).Float64("rsi_short", scores.RSI.Short).
		Int("count_long", m.counters[0]).Int("count_short", m.counters[1]).Send()

	dir, score := m.confirm(scores)
	if dir == market.Flat {
		return 0, false, nil
	}
	if score < m.cfg.Threshold+m.cfg.QualityMargin {
		log.Debug().Str("event", EventEntryScore).Str("direction", dir.String()).Float64("score", score).
			Msg("confirmed but below quality margin")
		return 0, false, nil
	}
	log.Info().Str("event", EventEntrySignal).Str("direction", dir.String()).
		Float64("score", score).Int("bars", m.counters[dir.Index()]).Send()

	return m.open(ctx, ec, snap, dir, positions, acct, log)
}

func (m *EntryManager) open(ctx context.Context, ec *EngineContext, snap market.Snapshot, dir market.Direction, positions []broker.Position, acct broker.Account, log zerolog.Logger) (uint64, bool, error) {
	meta := ec.Meta
	atr, ok := market.At(snap.Primary.ATR, 0)
	if !ok || atr <= 0 {
		log.Warn().Str("event", EventSizingFailed).Str("direction", dir.String()).Msg("no ATR")
		return 0, false, nil
	}

	d := risk.Allow()
	if m.cfg.HTFBias && !higherAgrees(snap, dir) {
		d.Block(risk.CodeHTFBias, "higher timeframe disagrees with %s", dir)
	}

	add := false
	for _, p := range positions {
		switch p.Direction {
		case dir.Opposite():
			if !m.cfg.AllowHedge {
				d.Block(risk.CodeHedge, "opposite position #%d open", p.Ticket)
			}
		case dir:
			add = true
			if !m.cfg.ScaleIn.Enabled {
				d.Block(risk.CodeScaleIn, "position #%d already open in %s", p.Ticket, dir)
				continue
			}
			if k := m.cfg.ScaleIn.ProfitATRMultiple; k > 0 {
				need := atr * k
				if got := p.ProfitDistance(snap.ExitPrice(dir)); got < need {
					d.Block(risk.CodeScaleIn, "#%d profit %.5f < %.5f", p.Ticket, got, need)
				}
			}
		}
	}
	if !d.Allowed {
		m.obs.EntryDecision(dir, d)
		log.Info().Str("event", EventEntryVeto).Str("direction", dir.String()).
			Strs("codes", d.Codes()).Str("reason", d.String()).Send()
		return 0, false, nil
	}

	price := snap.EntryPrice(dir)
	sign := dir.Sign()
	minDist := meta.MinStopPrice() + snap.Spread()
	stopDist := math.Max(atr*m.cfg.SLATRMultiple, minDist)
	stop := price - sign*stopDist
	tp := 0.0
	if m.cfg.TPATRMultiple > 0 {
		tp = price + sign*math.Max(atr*m.cfg.TPATRMultiple, minDist)
	}

	riskPct := ec.Session.RiskPct(ec.Ledger.Limits.RiskPerTradePct)
	stopPoints := 0.0
	if meta.Point > 0 {
		stopPoints = stopDist / meta.Point
	}
	volume := risk.LotFromRiskPct(acct.Equity, riskPct, stopPoints, meta)
	if volume <= 0 {
		log.Warn().Str("event", EventSizingFailed).Str("direction", dir.String()).
			Float64("equity", acct.Equity).Float64("risk_pct", riskPct).Float64("stop_points", stopPoints).
			Float64("tick_value", meta.TickValue).Float64("tick_size", meta.TickSize).Float64("lot_step", meta.LotStep).
			Msg("lot size is zero")
		return 0, false, nil
	}

	q := market.Quote{Symbol: snap.Symbol, Time: snap.Time, Bid: snap.Bid, Ask: snap.Ask}
	planned := ec.Ledger.PlannedRiskPct(volume, stopDist, acct.Equity)
	d = ec.Ledger.Allows(positions, q, acct.Equity, planned, dir)
	m.obs.EntryDecision(dir, d)
	if !d.Allowed {
		log.Info().Str("event", EventEntryVeto).Str("direction", dir.String()).
			Strs("codes", d.Codes()).Str("reason", d.String()).
			Float64("planned_pct", d.PlannedRiskPct).Float64("aggregate_pct", d.AggregateRiskPct).Send()
		return 0, false, nil
	}

	req := broker.OpenRequest{
		Symbol:    ec.Symbol,
		Tag:       ec.Tag,
		Direction: dir,
		Volume:    volume,
		Price:     price,
		Stop:      stop,
		TP:        tp,
		Slippage:  m.cfg.MaxSlippagePips * meta.PipSize(),
		Comment:   fmt.Sprintf("%s %s", ec.Tag, dir),
	}
	ticket, err := m.gw.OpenPosition(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("event", EventEntryFailed).Str("direction", dir.String()).
			Float64("volume", volume).Int("code", int(broker.CodeOf(err))).Send()
		return 0, false, fmt.Errorf("engine: open %s: %w", dir, err)
	}

	m.counters[dir.Index()] = 0
	event := EventEntryOpened
	if add {
		event = EventScaleIn
	}
	log.Info().Str("event", event).Uint64("ticket", ticket).Str("direction", dir.String()).
		Float64("volume", volume).Float64("price", price).Float64("stop", stop).Float64("tp", tp).
		Float64("risk_pct", planned).Float64("aggregate_pct", d.AggregateRiskPct+planned).Send()
	return ticket, add, nil
}

// higherAgrees checks EMA ordering and RSI side on the first higher frame.
// Missing data does not block.
func higherAgrees(snap market.Snapshot, dir market.Direction) bool {
	f, ok := snap.HigherFrame(0)
	if !ok {
		return true
	}
	fast, ok1 := market.At(f.EMAFast, 0)
	slow, ok2 := market.At(f.EMASlow, 0)
	rsi, ok3 := market.At(f.RSI, 0)
	if !ok1 || !ok2 || !ok3 {
		return true
	}
	if dir == market.Long {
		return fast > slow && rsi > 50
	}
	return fast < slow && rsi < 50
}
