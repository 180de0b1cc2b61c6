package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/config"
	"github.com/rustyeddy/fxengine/engine"
	"github.com/rustyeddy/fxengine/internal/id"
	"github.com/rustyeddy/fxengine/journal"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
	"github.com/rustyeddy/fxengine/sim"
	"github.com/rustyeddy/fxengine/snapshot"
)

// Options controls how bars are replayed.
type Options struct {
	// SpreadPips is added to every bar price to form the ask.
	SpreadPips float64
	// CloseEnd closes whatever is still open after the last bar.
	CloseEnd bool
}

// Runner replays a bar feed through the sim broker and the decision engine.
// Each bar is split into open, the two extremes and close; every one of
// those is a tick. The engine sees a snapshot of the bars closed so far.
type Runner struct {
	Config   *config.Config
	Feed     BarFeed
	Strategy signal.Strategy // nil uses Config.Strategy()
	Journal  journal.Journal // nil discards
	Observer engine.Observer
	Hook     broker.RetryHook
	Logger   zerolog.Logger
	RunID    string // empty generates a ULID from the first bar time
	Options  Options
}

type Result struct {
	RunID   string
	Bars    int
	Balance float64
	Equity  float64
	Summary Summary
	Deals   []broker.Deal
	Session risk.SessionState
}

type tick struct {
	at    time.Time
	price float64
}

// intrabar orders a bar's prices the way price most likely travelled:
// a bullish bar dips before it rallies, a bearish one the reverse.
func intrabar(c market.Candle, tf market.Timeframe) []tick {
	step := tf.Duration() / 4
	first, second := c.Low, c.High
	if c.Bearish() {
		first, second = c.High, c.Low
	}
	return []tick{
		{c.Time, c.Open},
		{c.Time.Add(step), first},
		{c.Time.Add(2 * step), second},
		{c.Time.Add(3 * step), c.Close},
	}
}

func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Config == nil {
		return Result{}, fmt.Errorf("backtest: Config is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	cfg := r.Config
	meta := cfg.Meta()
	ecfg := cfg.EngineConfig()
	log := r.Logger.With().Str("component", "backtest").Logger()

	strat := r.Strategy
	if strat == nil {
		strat = cfg.Strategy()
	}
	j := r.Journal
	if j == nil {
		j = journal.Discard{}
	}

	s := sim.NewEngine(cfg.AccountState(), j, r.Logger)
	s.AddSymbol(meta)
	gw := broker.NewRetryGateway(s, cfg.Retry, r.Logger)
	if r.Hook != nil {
		gw.SetHook(r.Hook)
	}
	builder, err := snapshot.NewBuilder(ecfg.Symbol, ecfg.Timeframe, cfg.Engine.HigherTimeframes, cfg.Indicators)
	if err != nil {
		return Result{}, err
	}
	guard := risk.NewGuard(cfg.Session, r.Logger)
	spread := r.Options.SpreadPips * meta.PipSize()

	var (
		eng  *engine.Engine
		base market.Snapshot
		res  = Result{RunID: r.RunID}
		last market.Quote
	)
	base.Symbol = ecfg.Symbol
	base.Primary.Timeframe = ecfg.Timeframe

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c, ok, err := r.Feed.Next()
		if err != nil {
			return res, fmt.Errorf("backtest: feed: %w", err)
		}
		if !ok {
			break
		}
		if res.RunID == "" {
			res.RunID = id.At(c.Time)
		}
		res.Bars++

		for _, tk := range intrabar(c, ecfg.Timeframe) {
			q := market.Quote{Symbol: ecfg.Symbol, Time: tk.at, Bid: tk.price, Ask: tk.price + spread}
			if err := s.UpdateQuote(q); err != nil {
				return res, fmt.Errorf("backtest: quote: %w", err)
			}
			last = q

			// The session anchors at the first quote.
			if eng == nil {
				if eng, err = engine.New(ctx, ecfg, gw, strat, cfg.Risk, guard, r.Logger); err != nil {
					return res, err
				}
				if r.Observer != nil {
					eng.SetObserver(r.Observer)
				}
			}

			snap := base
			snap.Time, snap.Bid, snap.Ask = q.Time, q.Bid, q.Ask
			if err := eng.OnTick(ctx, snap); err != nil {
				log.Warn().Err(err).Time("at", q.Time).Msg("tick finished with errors")
			}
		}

		if err := builder.Add(c); err != nil {
			log.Warn().Err(err).Msg("bar skipped")
			continue
		}
		if base, err = builder.Snapshot(last); err != nil {
			return res, err
		}
	}

	if eng == nil {
		return res, fmt.Errorf("backtest: feed had no bars")
	}

	if r.Options.CloseEnd {
		positions, err := s.GetOpenPositions(ctx, ecfg.Symbol, ecfg.Tag)
		if err != nil {
			return res, err
		}
		for _, p := range positions {
			if err := gw.ClosePosition(ctx, p.Ticket); err != nil {
				log.Error().Err(err).Uint64("ticket", p.Ticket).Msg("close at end")
			}
		}
	}

	acct := s.Account()
	res.Balance = acct.Balance
	res.Equity = acct.Equity
	res.Deals = s.Deals()
	res.Summary = Summarize(res.Deals, cfg.Account.Balance)
	res.Session = eng.Session()

	log.Info().Str("event", "backtest_done").Str("run_id", res.RunID).Int("bars", res.Bars).
		Int("trades", res.Summary.Trades).Float64("net_pl", res.Summary.NetPL).
		Float64("balance", res.Balance).Bool("dormant", res.Session.Dormant).Send()
	return res, nil
}

// BacktestRun converts the result into a journal row.
func (res Result) BacktestRun(cfg *config.Config, dataset string, raw []byte) journal.BacktestRun {
	s := res.Summary
	run := journal.BacktestRun{
		RunID:        res.RunID,
		Created:      time.Now().UTC(),
		Symbol:       cfg.Engine.Symbol,
		Timeframe:    string(cfg.Engine.Timeframe),
		Dataset:      dataset,
		Config:       raw,
		Start:        s.Start,
		End:          s.End,
		Trades:       s.Trades,
		Wins:         s.Wins,
		Losses:       s.Losses,
		StartBalance: s.StartBalance,
		EndBalance:   res.Balance,
		NetPL:        s.NetPL,
		ReturnPct:    s.ReturnPct,
		WinRate:      s.WinRate,
		ProfitFactor: s.ProfitFactor,
		Expectancy:   s.Expectancy,
		AvgWin:       s.AvgWin,
		AvgLoss:      s.AvgLoss,
		MaxDDPct:     s.MaxDrawdownPct,
		Sharpe:       s.Sharpe,
		OrgPath:      cfg.Journal.OrgPath,
	}
	if res.Session.Dormant {
		run.Notes = append(run.Notes, "session halted: "+res.Session.DormantReason)
	}
	return run
}
