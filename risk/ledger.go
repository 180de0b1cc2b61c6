package risk

import (
	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
)

// Limits are the exposure caps every open and scale-in must pass.
type Limits struct {
	RiskPerTradePct         float64 `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	MaxAggregateExposurePct float64 `yaml:"max_aggregate_exposure_pct" json:"max_aggregate_exposure_pct"`
	MaxConcurrentTrades     int     `yaml:"max_concurrent_trades" json:"max_concurrent_trades"`
	// MaxAddsPerDirection caps scale-ins on top of the first position in a
	// direction. 0 allows no adds.
	MaxAddsPerDirection int `yaml:"max_adds_per_direction" json:"max_adds_per_direction"`
}

func DefaultLimits() Limits {
	return Limits{
		RiskPerTradePct:         1.0,
		MaxAggregateExposurePct: 3.0,
		MaxConcurrentTrades:     3,
		MaxAddsPerDirection:     2,
	}
}

// Ledger answers exposure questions over the engine's own open positions.
// It holds no state of its own; the broker's position list is the truth.
type Ledger struct {
	Limits Limits
	Meta   market.SymbolMeta
}

func NewLedger(l Limits, meta market.SymbolMeta) *Ledger {
	return &Ledger{Limits: l, Meta: meta}
}

// PositionRisk is the money lost if p is stopped out from the current quote.
func (l *Ledger) PositionRisk(p broker.Position, q market.Quote) float64 {
	return MoneyAtRisk(p.StopDistance(q.Close(p.Direction)), p.Volume, l.Meta)
}

// AggregateOpenRiskPct sums PositionRisk over positions as a percentage of
// equity. Positions without a stop are left out of the sum and returned as
// unprotected tickets.
func (l *Ledger) AggregateOpenRiskPct(positions []broker.Position, q market.Quote, equity float64) (pct float64, unprotected []uint64) {
	total := 0.0
	for _, p := range positions {
		if p.Stop == 0 {
			unprotected = append(unprotected, p.Ticket)
			continue
		}
		total += l.PositionRisk(p, q)
	}
	if equity <= 0 {
		return 0, unprotected
	}
	return total / equity * 100, unprotected
}

// PlannedRiskPct is the percent of equity a new position would risk.
func (l *Ledger) PlannedRiskPct(volume, stopDistance, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return MoneyAtRisk(stopDistance, volume, l.Meta) / equity * 100
}

// Allows decides whether a new position in dir risking plannedPct percent
// of equity may be opened next to positions.
func (l *Ledger) Allows(positions []broker.Position, q market.Quote, equity, plannedPct float64, dir market.Direction) Decision {
	d := allow()
	d.PlannedRiskPct = plannedPct

	if equity <= 0 {
		d.addf(CodeNoEquity, "equity %.2f", equity)
		return d
	}

	if limit := l.Limits.MaxConcurrentTrades; limit > 0 && len(positions) >= limit {
		d.addf(CodeTooManyOpenTrades, "open trades %d >= max %d", len(positions), limit)
	}

	agg, unprotected := l.AggregateOpenRiskPct(positions, q, equity)
	d.AggregateRiskPct = agg
	if len(unprotected) > 0 {
		d.addf(CodeUnprotectedPosition, "%d open position(s) without stop: %v", len(unprotected), unprotected)
	}
	if limit := l.Limits.MaxAggregateExposurePct; limit > 0 && agg+plannedPct > limit {
		d.addf(CodeExposureCap, "aggregate %.2f%% + planned %.2f%% > cap %.2f%%", agg, plannedPct, limit)
	}

	same := 0
	for _, p := range positions {
		if p.Direction == dir {
			same++
		}
	}
	if same > 0 && same > l.Limits.MaxAddsPerDirection {
		d.addf(CodeAddCap, "%s add #%d exceeds max %d", dir, same, l.Limits.MaxAddsPerDirection)
	}
	return d
}
