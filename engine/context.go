package engine

import (
	"fmt"
	"time"

	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
)

// EngineContext is everything one (symbol, timeframe) instance shares
// across its components. There is no package level state.
type EngineContext struct {
	Symbol    string
	Tag       string
	Timeframe market.Timeframe
	Meta      market.SymbolMeta

	// Clock supplies the time when a snapshot carries none.
	Clock func() time.Time

	Session *risk.Guard
	Ledger  *risk.Ledger
	States  *TradeStateStore
	Bars    *BarGate
}

func (ec *EngineContext) now(snap market.Snapshot) time.Time {
	if !snap.Time.IsZero() {
		return snap.Time.UTC()
	}
	if ec.Clock != nil {
		return ec.Clock().UTC()
	}
	return time.Now().UTC()
}

func (ec *EngineContext) validate() error {
	switch {
	case ec.Symbol == "":
		return fmt.Errorf("engine: symbol is required")
	case !ec.Timeframe.Valid():
		return fmt.Errorf("engine: invalid timeframe %q", ec.Timeframe)
	case ec.Session == nil:
		return fmt.Errorf("engine: session guard is required")
	}
	return nil
}
