package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
)

type PartialTPConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ATRMultiple float64 `yaml:"atr_multiple" json:"atr_multiple"`
}

type BreakEvenConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ATRMultiple float64 `yaml:"atr_multiple" json:"atr_multiple"`
	// OffsetPoints locks in this much profit beyond entry.
	OffsetPoints float64 `yaml:"offset_points" json:"offset_points"`
}

type TrailingConfig struct {
	Enabled          bool    `yaml:"enabled" json:"enabled"`
	StartATRMultiple float64 `yaml:"start_atr_multiple" json:"start_atr_multiple"`
	SLATRMultiple    float64 `yaml:"sl_atr_multiple" json:"sl_atr_multiple"`
	StepPoints       float64 `yaml:"step_points" json:"step_points"`
}

// WeekendConfig protects positions from Friday FromHour UTC until the
// week closes.
type WeekendConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	FromHour     int     `yaml:"from_hour" json:"from_hour"`
	BufferPoints float64 `yaml:"buffer_points" json:"buffer_points"`
}

func (w WeekendConfig) Active(t time.Time) bool {
	if !w.Enabled {
		return false
	}
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	case time.Friday:
		return t.Hour() >= w.FromHour
	}
	return false
}

type ExitConfig struct {
	MinBarsBeforeReversal int             `yaml:"min_bars_before_reversal_check" json:"min_bars_before_reversal_check"`
	Partial               PartialTPConfig `yaml:"partial_tp" json:"partial_tp"`
	DynamicTP             DynamicTPConfig `yaml:"dynamic_tp" json:"dynamic_tp"`
	TimeStopMinutes       int             `yaml:"time_stop_minutes" json:"time_stop_minutes"`
	BreakEven             BreakEvenConfig `yaml:"break_even" json:"break_even"`
	Trailing              TrailingConfig  `yaml:"trailing" json:"trailing"`
	Weekend               WeekendConfig   `yaml:"weekend" json:"weekend"`
}

func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		MinBarsBeforeReversal: 3,
		Partial:               PartialTPConfig{Enabled: true, ATRMultiple: 1.0},
		DynamicTP:             DefaultDynamicTPConfig(),
		BreakEven:             BreakEvenConfig{Enabled: true, ATRMultiple: 1.0},
		Trailing:              TrailingConfig{Enabled: true, StartATRMultiple: 1.5, SLATRMultiple: 1.5, StepPoints: 20},
		Weekend:               WeekendConfig{FromHour: 20, BufferPoints: 20},
	}
}

func (c ExitConfig) Validate() error {
	switch {
	case c.MinBarsBeforeReversal < 0:
		return fmt.Errorf("engine: min_bars_before_reversal_check must be >= 0")
	case c.Partial.Enabled && c.Partial.ATRMultiple <= 0:
		return fmt.Errorf("engine: partial_tp.atr_multiple must be > 0")
	case c.DynamicTP.Enabled && c.DynamicTP.UpdateBars < 1:
		return fmt.Errorf("engine: dynamic_tp.update_bars must be >= 1")
	case c.DynamicTP.MaxDistancePoints > 0 && c.DynamicTP.MaxDistancePoints < c.DynamicTP.MinDistancePoints:
		return fmt.Errorf("engine: dynamic_tp max distance below min distance")
	case c.TimeStopMinutes < 0:
		return fmt.Errorf("engine: time_stop_minutes must be >= 0")
	case c.BreakEven.Enabled && c.BreakEven.ATRMultiple <= 0:
		return fmt.Errorf("engine: break_even.atr_multiple must be > 0")
	case c.Trailing.Enabled && (c.Trailing.StartATRMultiple <= 0 || c.Trailing.SLATRMultiple <= 0 || c.Trailing.StepPoints < 0):
		return fmt.Errorf("engine: invalid trailing settings")
	case c.Weekend.FromHour < 0 || c.Weekend.FromHour > 23:
		return fmt.Errorf("engine: weekend.from_hour must be within 0..23")
	}
	return nil
}

// SweepResult reports what one exit sweep closed.
type SweepResult struct {
	Closed   []uint64
	Reversal bool
}

// ExitManager walks the open positions in a fixed priority order and
// issues the close and modify orders their state calls for.
type ExitManager struct {
	cfg   ExitConfig
	strat signal.Strategy
	gw    broker.OrderGateway
	obs   Observer
	log   zerolog.Logger
}

func NewExitManager(cfg ExitConfig, strat signal.Strategy, gw broker.OrderGateway, logger zerolog.Logger) *ExitManager {
	return &ExitManager{
		cfg:   cfg,
		strat: strat,
		gw:    gw,
		obs:   nopObserver{},
		log:   logger.With().Str("component", "exit").Logger(),
	}
}

// Sweep evaluates every position. Reversal scoring and the dynamic TP scan
// run only when newBar is set; everything else runs on every tick.
// Snapshots carry closed bars only, so both inputs are constant between
// bar closes and a tick in between would repeat the last verdict. A
// failure on one position is logged and the sweep moves on.
func (m *ExitManager) Sweep(ctx context.Context, ec *EngineContext, snap market.Snapshot, positions []broker.Position, newBar bool) (SweepResult, error) {
	var (
		res    SweepResult
		errs   []error
		closed = make(map[uint64]bool)
		now    = ec.now(snap)
		bar    = barTime(snap)
	)
	atr, _ := market.At(snap.Primary.ATR, 0)

	markClosed := func(t uint64) {
		closed[t] = true
		res.Closed = append(res.Closed, t)
		ec.States.Remove(t)
	}

	for i := range positions {
		p := positions[i]
		if closed[p.Ticket] {
			continue
		}
		st, _ := ec.States.Ensure(p.Ticket)
		st.BarsSinceOpen = barsBetween(ec.Timeframe, p.OpenTime, now)
		log := m.log.With().Uint64("ticket", p.Ticket).Str("direction", p.Direction.String()).Time("at", now).Logger()

		price := snap.ExitPrice(p.Direction)
		sign := p.Direction.Sign()
		profit := p.ProfitDistance(price)
		minStop := ec.Meta.MinStopPrice()

		if m.cfg.Weekend.Active(now) {
			done, err := m.weekend(ctx, ec, &p, price, log)
			if err != nil {
				errs = append(errs, err)
			}
			if done {
				markClosed(p.Ticket)
			}
			continue
		}

		if newBar && st.BarsSinceOpen >= m.cfg.MinBarsBeforeReversal {
			r := m.strat.ShouldExit(p, snap)
			if r.Triggered {
				log.Warn().Str("event", EventReversalExit).
					Float64("raw", r.Raw).Float64("score", r.Score).Float64("threshold", r.Threshold).
					Strs("conditions", r.Conditions).Int("categories", r.Categories).
					Bool("mtf_confirmed", r.MTFConfirmed).Int("bars_open", st.BarsSinceOpen).Send()
				ids, err := m.CloseAll(ctx, ec, positions, closed, ActionReversal)
				for _, t := range ids {
					markClosed(t)
				}
				if err != nil {
					errs = append(errs, err)
				}
				ec.Session.EnterStandby(now)
				res.Reversal = true
				return res, errors.Join(errs...)
			}
		}

		if m.cfg.Partial.Enabled && !st.PartialTaken && atr > 0 && profit >= atr*m.cfg.Partial.ATRMultiple {
			closeVol, remain, ok := risk.SplitHalf(p.Volume, ec.Meta)
			switch {
			case !ok:
				log.Debug().Str("event", EventPartialSkipped).Float64("volume", p.Volume).
					Float64("min_lot", ec.Meta.MinLot).Msg("half split would leave an invalid volume")
			default:
				if err := m.gw.ClosePartial(ctx, p.Ticket, closeVol); err != nil {
					errs = append(errs, m.failed(log, "close_partial", p.Ticket, err))
				} else {
					st.PartialTaken = true
					p.Volume = remain
					m.obs.ExitAction(ActionPartial)
					log.Info().Str("event", EventPartialTP).Float64("closed", closeVol).
						Float64("remain", remain).Float64("profit_distance", profit).Send()
				}
			}
		}

		if newBar && m.cfg.DynamicTP.Enabled &&
			(st.LastTPUpdateBar.IsZero() || barsBetween(ec.Timeframe, st.LastTPUpdateBar, bar) >= m.cfg.DynamicTP.UpdateBars) {
			st.LastTPUpdateBar = bar
			if err := m.refreshTP(ctx, ec, snap, &p, price, log); err != nil {
				errs = append(errs, err)
			}
		}

		if limit := m.cfg.TimeStopMinutes; limit > 0 && !p.OpenTime.IsZero() && now.Sub(p.OpenTime) >= time.Duration(limit)*time.Minute {
			if err := m.close(ctx, p.Ticket); err != nil {
				errs = append(errs, m.failed(log, "close", p.Ticket, err))
			} else {
				markClosed(p.Ticket)
				m.obs.ExitAction(ActionTimeStop)
				log.Info().Str("event", EventTimeStop).Dur("age", now.Sub(p.OpenTime)).Int("limit_minutes", limit).Send()
			}
			continue
		}

		if be := m.cfg.BreakEven; be.Enabled && atr > 0 && profit >= atr*be.ATRMultiple {
			level := p.Entry + sign*be.OffsetPoints*ec.Meta.Point
			if (p.Stop == 0 || (level-p.Stop)*sign > 0) && (price-level)*sign >= minStop {
				if err := m.gw.ModifyPosition(ctx, p.Ticket, level, p.TP); err != nil {
					errs = append(errs, m.failed(log, "modify", p.Ticket, err))
				} else {
					log.Info().Str("event", EventBreakEven).Float64("from", p.Stop).Float64("to", level).Send()
					p.Stop = level
					m.obs.ExitAction(ActionBreakEven)
				}
			}
		}

		if tr := m.cfg.Trailing; tr.Enabled && atr > 0 && profit >= atr*tr.StartATRMultiple {
			dist := math.Max(atr*tr.SLATRMultiple, minStop)
			cand := price - sign*dist
			step := tr.StepPoints * ec.Meta.Point
			if p.Stop == 0 || ((cand-p.Stop)*sign > 0 && (cand-p.Stop)*sign >= step) {
				if err := m.gw.ModifyPosition(ctx, p.Ticket, cand, p.TP); err != nil {
					errs = append(errs, m.failed(log, "modify", p.Ticket, err))
				} else {
					log.Info().Str("event", EventTrailingStop).Float64("from", p.Stop).Float64("to", cand).Send()
					p.Stop = cand
					m.obs.ExitAction(ActionTrailing)
				}
			}
		}
	}
	return res, errors.Join(errs...)
}

// weekend closes a profitable position or pulls a losing one's stop as
// close to break-even as the broker allows. done reports a close.
func (m *ExitManager) weekend(ctx context.Context, ec *EngineContext, p *broker.Position, price float64, log zerolog.Logger) (done bool, err error) {
	sign := p.Direction.Sign()
	if p.ProfitDistance(price) > 0 {
		if err := m.close(ctx, p.Ticket); err != nil {
			return false, m.failed(log, "close", p.Ticket, err)
		}
		m.obs.ExitAction(ActionWeekend)
		log.Info().Str("event", EventWeekendProtect).Str("action", "close").Send()
		return true, nil
	}

	if p.Stop != 0 && (p.Stop-p.Entry)*sign >= 0 {
		return false, nil
	}
	minStop := ec.Meta.MinStopPrice()
	level := p.Entry - sign*m.cfg.Weekend.BufferPoints*ec.Meta.Point
	if (price-level)*sign < minStop {
		level = price - sign*minStop
	}
	if p.Stop != 0 && (level-p.Stop)*sign <= 0 {
		return false, nil
	}
	if err := m.gw.ModifyPosition(ctx, p.Ticket, level, p.TP); err != nil {
		return false, m.failed(log, "modify", p.Ticket, err)
	}
	m.obs.ExitAction(ActionWeekend)
	log.Info().Str("event", EventWeekendProtect).Str("action", "tighten").Float64("from", p.Stop).Float64("to", level).Send()
	p.Stop = level
	return false, nil
}

func (m *ExitManager) refreshTP(ctx context.Context, ec *EngineContext, snap market.Snapshot, p *broker.Position, price float64, log zerolog.Logger) error {
	cfg := m.cfg.DynamicTP
	point := ec.Meta.Point
	levels := targetLevels(snap, p.Direction, cfg, point)
	cand, ok := pickTarget(levels, p.Direction, p.Entry, price, cfg.MinDistancePoints*point, cfg.MaxDistancePoints*point)
	if !ok {
		return nil
	}
	if p.TP != 0 && (cand-p.TP)*p.Direction.Sign() <= 0 {
		return nil
	}
	if err := m.gw.ModifyPosition(ctx, p.Ticket, p.Stop, cand); err != nil {
		return m.failed(log, "modify", p.Ticket, err)
	}
	log.Info().Str("event", EventTPUpdate).Float64("from", p.TP).Float64("to", cand).Int("candidates", len(levels)).Send()
	p.TP = cand
	m.obs.ExitAction(ActionTPUpdate)
	return nil
}

// CloseAll closes every position not yet in skip and returns the tickets
// that are now gone.
func (m *ExitManager) CloseAll(ctx context.Context, ec *EngineContext, positions []broker.Position, skip map[uint64]bool, action string) ([]uint64, error) {
	var (
		out  []uint64
		errs []error
	)
	for _, p := range positions {
		if skip[p.Ticket] {
			continue
		}
		log := m.log.With().Uint64("ticket", p.Ticket).Logger()
		if err := m.close(ctx, p.Ticket); err != nil {
			errs = append(errs, m.failed(log, "close", p.Ticket, err))
			continue
		}
		out = append(out, p.Ticket)
		ec.States.Remove(p.Ticket)
		m.obs.ExitAction(action)
		log.Info().Str("event", EventForceClose).Str("action", action).Send()
	}
	return out, errors.Join(errs...)
}

// close treats an already closed position as success.
func (m *ExitManager) close(ctx context.Context, ticket uint64) error {
	err := m.gw.ClosePosition(ctx, ticket)
	if errors.Is(err, broker.ErrPositionNotFound) {
		return nil
	}
	return err
}

func (m *ExitManager) failed(log zerolog.Logger, op string, ticket uint64, err error) error {
	log.Error().Err(err).Str("event", EventExitFailed).Str("op", op).Int("code", int(broker.CodeOf(err))).Send()
	return fmt.Errorf("engine: %s #%d: %w", op, ticket, err)
}
