package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const tradeColumns = `deal_id, run_id, ticket, symbol, tag, direction, volume, entry_price, exit_price, open_time, close_time, realized_pl, reason`

func scanTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()
	var out []TradeRecord
	for rows.Next() {
		var (
			rec    TradeRecord
			ticket int64
		)
		if err := rows.Scan(
			&rec.DealID,
			&rec.RunID,
			&ticket,
			&rec.Symbol,
			&rec.Tag,
			&rec.Direction,
			&rec.Volume,
			&rec.EntryPrice,
			&rec.ExitPrice,
			&rec.OpenTime,
			&rec.CloseTime,
			&rec.RealizedPL,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		rec.Ticket = uint64(ticket)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by deal id.
func (j *SQLite) GetTrade(dealID string) (TradeRecord, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+` FROM trades WHERE deal_id = ?`, dealID)
	if err != nil {
		return TradeRecord{}, err
	}
	recs, err := scanTrades(rows)
	if err != nil {
		return TradeRecord{}, err
	}
	if len(recs) == 0 {
		return TradeRecord{}, fmt.Errorf("trade %q not found", dealID)
	}
	return recs[0], nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE run_id = ? ORDER BY close_time ASC`, runID)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, balance, equity
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var rec EquitySnapshot
		if err := rows.Scan(&rec.RunID, &rec.Time, &rec.Balance, &rec.Equity); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns the events of a run with the given name, or every
// event of the run when name is empty.
func (j *SQLite) ListEvents(ctx context.Context, runID, name string) ([]EventRecord, error) {
	q := `SELECT run_id, time, level, event, component, ticket, payload FROM events WHERE run_id = ?`
	args := []any{runID}
	if name != "" {
		q += ` AND event = ?`
		args = append(args, name)
	}
	rows, err := j.db.QueryContext(ctx, q+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec    EventRecord
			ticket int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Time, &rec.Level, &rec.Event, &rec.Component, &ticket, &rec.Payload); err != nil {
			return nil, err
		}
		rec.Ticket = uint64(ticket)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
