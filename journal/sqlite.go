package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Journal and EventSink backed by a single database file.
// Every row is stamped with the current run id.
type SQLite struct {
	db *sql.DB

	mu    sync.Mutex
	runID string
}

var (
	_ Journal   = (*SQLite)(nil)
	_ EventSink = (*SQLite)(nil)
)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// SetRun stamps subsequent rows with runID.
func (j *SQLite) SetRun(runID string) {
	j.mu.Lock()
	j.runID = runID
	j.mu.Unlock()
}

func (j *SQLite) run(explicit string) string {
	if explicit != "" {
		return explicit
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(deal_id, run_id, ticket, symbol, tag, direction, volume, entry_price, exit_price, open_time, close_time, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.DealID, j.run(t.RunID), int64(t.Ticket), t.Symbol, t.Tag, t.Direction, t.Volume,
		t.EntryPrice, t.ExitPrice, t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPL, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("journal: record trade %s: %w", t.DealID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (run_id, time, balance, equity)
		VALUES (?, ?, ?, ?)`,
		j.run(e.RunID), e.Time.UTC(), e.Balance, e.Equity,
	)
	if err != nil {
		return fmt.Errorf("journal: record equity: %w", err)
	}
	return nil
}

func (j *SQLite) RecordEvent(e EventRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO events (run_id, time, level, event, component, ticket, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.run(e.RunID), e.Time.UTC(), e.Level, e.Event, e.Component, int64(e.Ticket), e.Payload,
	)
	if err != nil {
		return fmt.Errorf("journal: record event %s: %w", e.Event, err)
	}
	return nil
}

func (j *SQLite) RecordBacktest(ctx context.Context, btr BacktestRun) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, symbol, timeframe, dataset, config, start_time, end_time,
		 trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		 win_rate, profit_factor, expectancy, max_dd_pct, sharpe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		btr.RunID, btr.Created.UTC(), btr.Symbol, btr.Timeframe, btr.Dataset, string(btr.Config),
		btr.Start.UTC(), btr.End.UTC(), btr.Trades, btr.Wins, btr.Losses,
		btr.StartBalance, btr.EndBalance, btr.NetPL, btr.ReturnPct,
		btr.WinRate, finite(btr.ProfitFactor), btr.Expectancy, btr.MaxDDPct, finite(btr.Sharpe),
	)
	if err != nil {
		return fmt.Errorf("journal: record backtest %s: %w", btr.RunID, err)
	}
	return nil
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var (
		btr BacktestRun
		cfg string
	)
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, symbol, timeframe, dataset, config, start_time, end_time,
		       trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		       win_rate, profit_factor, expectancy, max_dd_pct, sharpe
		FROM backtest_runs WHERE run_id = ?`, runID)
	err := row.Scan(&btr.RunID, &btr.Created, &btr.Symbol, &btr.Timeframe, &btr.Dataset, &cfg,
		&btr.Start, &btr.End, &btr.Trades, &btr.Wins, &btr.Losses,
		&btr.StartBalance, &btr.EndBalance, &btr.NetPL, &btr.ReturnPct,
		&btr.WinRate, &btr.ProfitFactor, &btr.Expectancy, &btr.MaxDDPct, &btr.Sharpe)
	if err == sql.ErrNoRows {
		return BacktestRun{}, fmt.Errorf("journal: backtest run %q not found", runID)
	}
	if err != nil {
		return BacktestRun{}, err
	}
	btr.Config = []byte(cfg)
	return btr, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// finite maps NaN and ±Inf to 0 for storage.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
