// Package journal persists closed trades, equity snapshots, decision
// events and backtest runs.
package journal

import "time"

// TradeRecord is one closing deal: a full close or one slice of a partial.
type TradeRecord struct {
	RunID      string
	DealID     string
	Ticket     uint64
	Symbol     string
	Tag        string
	Direction  string
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
}

type EquitySnapshot struct {
	RunID   string
	Time    time.Time
	Balance float64
	Equity  float64
}

// EventRecord is one structured decision event. Payload is the full JSON
// line as logged.
type EventRecord struct {
	RunID     string
	Time      time.Time
	Level     string
	Event     string
	Component string
	Ticket    uint64
	Payload   string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// EventSink stores decision events.
type EventSink interface {
	RecordEvent(EventRecord) error
}

// Discard drops everything. Useful where a journal is required but not wanted.
type Discard struct{}

func (Discard) RecordTrade(TradeRecord) error     { return nil }
func (Discard) RecordEquity(EquitySnapshot) error { return nil }
func (Discard) RecordEvent(EventRecord) error     { return nil }
func (Discard) Close() error                      { return nil }
