// Package engine is the bar-synchronous decision engine: it reconciles
// per-position state with the broker, applies the session guard, sweeps
// exits on every tick and evaluates entries once per new bar.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
)

type Config struct {
	Symbol    string           `yaml:"symbol" json:"symbol"`
	Tag       string           `yaml:"tag" json:"tag"`
	Timeframe market.Timeframe `yaml:"timeframe" json:"timeframe"`

	Entry EntryConfig `yaml:"entry" json:"entry"`
	Exit  ExitConfig  `yaml:"exit" json:"exit"`
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("engine: symbol is required")
	}
	if !c.Timeframe.Valid() {
		return fmt.Errorf("engine: invalid timeframe %q", c.Timeframe)
	}
	if err := c.Entry.Validate(); err != nil {
		return err
	}
	return c.Exit.Validate()
}

// Engine serialises every evaluation behind one mutex so a pass always sees
// a consistent position set.
type Engine struct {
	mu sync.Mutex

	ec    *EngineContext
	b     broker.Broker
	entry *EntryManager
	exit  *ExitManager
	obs   Observer
	log   zerolog.Logger
}

// New builds an engine for cfg on b, which should already be wrapped in a
// broker.RetryGateway when retries are wanted. It calls Reset.
func New(ctx context.Context, cfg Config, b broker.Broker, strat signal.Strategy, limits risk.Limits, guard *risk.Guard, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	meta, err := b.GetSymbolMeta(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("engine: symbol meta: %w", err)
	}

	logger = logger.With().Str("symbol", cfg.Symbol).Str("tag", cfg.Tag).Logger()
	ec := &EngineContext{
		Symbol:    cfg.Symbol,
		Tag:       cfg.Tag,
		Timeframe: cfg.Timeframe,
		Meta:      meta,
		Session:   guard,
		Ledger:    risk.NewLedger(limits, meta),
		States:    NewTradeStateStore(),
		Bars:      NewBarGate(cfg.Timeframe),
	}
	if err := ec.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		ec:    ec,
		b:     b,
		entry: NewEntryManager(cfg.Entry, strat, b, logger),
		exit:  NewExitManager(cfg.Exit, strat, b, logger),
		obs:   nopObserver{},
		log:   logger.With().Str("component", "engine").Logger(),
	}
	e.entry.weekend = cfg.Exit.Weekend
	if err := e.Reset(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// SetObserver routes decisions to o.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	e.obs = o
	e.entry.obs = o
	e.exit.obs = o
}

// SetClock sets the time source used when a snapshot has no time.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	e.ec.Clock = clock
	e.mu.Unlock()
}

// Context exposes the engine context for inspection.
func (e *Engine) Context() *EngineContext { return e.ec }

// Counter is the entry confirmation count for dir.
func (e *Engine) Counter(dir market.Direction) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entry.Counter(dir)
}

// TradeState returns a copy of the state for ticket.
func (e *Engine) TradeState(ticket uint64) (TradeState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.ec.States.Get(ticket)
	if !ok {
		return TradeState{}, false
	}
	return *st, true
}

func (e *Engine) Session() risk.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ec.Session.State()
}

// Reset is the explicit re-init: a new session anchored at the current
// account, cleared counters and bar gate, and trade states rebuilt from
// the live positions.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.b.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("engine: reset: %w", err)
	}
	// Without a quote there is no market time yet; the first tick anchors
	// the session instead.
	var now time.Time
	if q, err := e.b.GetQuote(ctx, e.ec.Symbol); err == nil && !q.Time.IsZero() {
		now = q.Time
		e.ec.Session.Reset(now, acct)
	} else {
		e.ec.Session.Clear()
	}
	e.ec.Bars.Reset()
	e.ec.States.Clear()
	e.entry.resetCounters()

	positions, err := e.b.GetOpenPositions(ctx, e.ec.Symbol, e.ec.Tag)
	if err != nil {
		return fmt.Errorf("engine: reset: %w", err)
	}
	created, _ := e.ec.States.Reconcile(positions)
	e.log.Info().Str("event", EventEngineReset).Time("at", now).
		Float64("balance", acct.Balance).Int("positions", len(positions)).Int("states", len(created)).Send()
	return nil
}

// OnTick is the single evaluation entry point.
func (e *Engine) OnTick(ctx context.Context, snap market.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec := e.ec
	now := ec.now(snap)
	log := e.log.With().Time("at", now).Logger()

	positions, err := e.b.GetOpenPositions(ctx, ec.Symbol, ec.Tag)
	if err != nil {
		return fmt.Errorf("engine: positions: %w", err)
	}
	acct, err := e.b.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("engine: account: %w", err)
	}
	e.reconcile(positions, log)

	deals, err := e.b.GetDeals(ctx, ec.Symbol, ec.Tag, ec.Session.State().SessionStart)
	if err != nil {
		return fmt.Errorf("engine: deals: %w", err)
	}
	verdict := ec.Session.Observe(now, acct, deals)
	e.obs.Session(ec.Session.State())
	if verdict.ForceClose {
		log.Warn().Str("event", EventForceClose).Str("reason", verdict.Reason).Int("positions", len(positions)).Send()
		_, err := e.exit.CloseAll(ctx, ec, positions, nil, ActionForce)
		return err
	}

	newBar := ec.Bars.Observe(barTime(snap))

	var errs []error
	res, err := e.exit.Sweep(ctx, ec, snap, positions, newBar)
	if err != nil {
		errs = append(errs, err)
	}

	if newBar && !res.Reversal {
		if len(res.Closed) > 0 {
			if positions, err = e.b.GetOpenPositions(ctx, ec.Symbol, ec.Tag); err != nil {
				return errors.Join(append(errs, fmt.Errorf("engine: positions: %w", err))...)
			}
			if acct, err = e.b.GetAccount(ctx); err != nil {
				return errors.Join(append(errs, fmt.Errorf("engine: account: %w", err))...)
			}
		}
		ticket, add, err := e.entry.Evaluate(ctx, ec, snap, positions, acct)
		if err != nil {
			errs = append(errs, err)
		}
		if ticket != 0 {
			st, _ := ec.States.Ensure(ticket)
			st.Add = add
		}
	}

	if acct.Equity > 0 {
		positions, err := e.b.GetOpenPositions(ctx, ec.Symbol, ec.Tag)
		if err == nil {
			q := market.Quote{Symbol: snap.Symbol, Time: snap.Time, Bid: snap.Bid, Ask: snap.Ask}
			pct, _ := ec.Ledger.AggregateOpenRiskPct(positions, q, acct.Equity)
			e.obs.Exposure(pct, len(positions))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) reconcile(positions []broker.Position, log zerolog.Logger) {
	created, removed := e.ec.States.Reconcile(positions)
	if len(created) > 0 || len(removed) > 0 {
		log.Info().Str("event", EventStateReconcile).
			Interface("created", created).Interface("removed", removed).Int("live", len(positions)).Send()
	}
	for _, t := range created {
		for _, p := range positions {
			if p.Ticket == t && p.Stop == 0 {
				log.Warn().Str("event", EventUnprotected).Uint64("ticket", t).Msg("position has no stop loss")
			}
		}
	}
}
