package risk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/fxengine/broker"
)

// ProfitPolicy says what happens once the profit target is reached.
type ProfitPolicy string

const (
	ProfitHalt   ProfitPolicy = "halt"
	ProfitReduce ProfitPolicy = "reduce"
)

// Event names the Guard writes in the "event" field of its log lines.
const (
	EventSessionStart  = "session_start"
	EventSessionReduce = "session_reduce"
	EventSessionHalt   = "session_halt"
	EventStandby       = "standby"
)

// SessionLimits configure the circuit breakers.
type SessionLimits struct {
	CircuitBreakerDrawdownPct float64      `yaml:"circuit_breaker_drawdown_pct" json:"circuit_breaker_drawdown_pct"`
	DailyLossCapPct           float64      `yaml:"daily_loss_cap_pct" json:"daily_loss_cap_pct"`
	WeeklyLossCapPct          float64      `yaml:"weekly_loss_cap_pct" json:"weekly_loss_cap_pct"`
	ProfitTargetMultiple      float64      `yaml:"profit_target_multiple" json:"profit_target_multiple"`
	ProfitPolicy              ProfitPolicy `yaml:"profit_policy" json:"profit_policy"`
	ReducedRiskPct            float64      `yaml:"reduced_risk_pct" json:"reduced_risk_pct"`
	MaxConsecutiveLosses      int          `yaml:"max_consecutive_losses" json:"max_consecutive_losses"`
	StandbyMinutes            int          `yaml:"standby_minutes" json:"standby_minutes"`
}

func DefaultSessionLimits() SessionLimits {
	return SessionLimits{
		CircuitBreakerDrawdownPct: 10,
		DailyLossCapPct:           3,
		WeeklyLossCapPct:          6,
		ProfitTargetMultiple:      0.5,
		ProfitPolicy:              ProfitHalt,
		ReducedRiskPct:            0.25,
		MaxConsecutiveLosses:      3,
		StandbyMinutes:            30,
	}
}

func (l SessionLimits) Validate() error {
	switch l.ProfitPolicy {
	case ProfitHalt, ProfitReduce:
	default:
		return fmt.Errorf("risk: unknown profit_policy %q", l.ProfitPolicy)
	}
	if l.CircuitBreakerDrawdownPct < 0 || l.CircuitBreakerDrawdownPct >= 100 {
		return fmt.Errorf("risk: circuit_breaker_drawdown_pct must be in [0, 100)")
	}
	if l.DailyLossCapPct < 0 || l.WeeklyLossCapPct < 0 {
		return fmt.Errorf("risk: loss caps must be >= 0")
	}
	if l.ProfitPolicy == ProfitReduce && l.ReducedRiskPct <= 0 {
		return fmt.Errorf("risk: reduce policy needs reduced_risk_pct > 0")
	}
	if l.MaxConsecutiveLosses < 0 || l.StandbyMinutes < 0 {
		return fmt.Errorf("risk: max_consecutive_losses and standby_minutes must be >= 0")
	}
	return nil
}

// SessionState is the process-wide session record. MaxEquitySeen only grows
// and Dormant only clears through Guard.Reset.
type SessionState struct {
	Started      bool      `json:"started"`
	SessionStart time.Time `json:"session_start"`
	StartBalance float64   `json:"start_balance"`

	MaxEquitySeen float64 `json:"max_equity_seen"`
	DrawdownPct   float64 `json:"drawdown_pct"`

	DayStart           time.Time `json:"day_start"`
	DailyBalanceStart  float64   `json:"daily_balance_start"`
	WeekStart          time.Time `json:"week_start"`
	WeeklyBalanceStart float64   `json:"weekly_balance_start"`

	RealizedPnL       float64 `json:"realized_pnl"`
	DailyPnL          float64 `json:"daily_pnl"`
	WeeklyPnL         float64 `json:"weekly_pnl"`
	ConsecutiveLosses int     `json:"consecutive_losses"`

	StandbyUntil  time.Time `json:"standby_until"`
	Dormant       bool      `json:"dormant"`
	DormantReason string    `json:"dormant_reason,omitempty"`
	Reduced       bool      `json:"reduced"`
}

// Verdict is the outcome of one Observe call.
type Verdict struct {
	// ForceClose asks the caller to close every engine position now.
	ForceClose bool
	Reason     string
}

// Guard is the SessionGuard: drawdown breaker, profit target, loss caps,
// consecutive-loss block and the post-reversal standby window.
type Guard struct {
	limits SessionLimits
	state  SessionState
	log    zerolog.Logger
}

func NewGuard(limits SessionLimits, logger zerolog.Logger) *Guard {
	return &Guard{
		limits: limits,
		log:    logger.With().Str("component", "session").Logger(),
	}
}

func (g *Guard) Limits() SessionLimits { return g.limits }
func (g *Guard) State() SessionState   { return g.state }
func (g *Guard) Dormant() bool         { return g.state.Dormant }

// Reset is the explicit external re-init: a fresh session anchored at now.
func (g *Guard) Reset(now time.Time, acct broker.Account) {
	now = now.UTC()
	g.state = SessionState{
		Started:            true,
		SessionStart:       now,
		StartBalance:       acct.Balance,
		MaxEquitySeen:      acct.Equity,
		DayStart:           dayStart(now),
		DailyBalanceStart:  acct.Balance,
		WeekStart:          weekStart(now),
		WeeklyBalanceStart: acct.Balance,
	}
	g.log.Info().Str("event", EventSessionStart).Time("at", now).Float64("balance", acct.Balance).Float64("equity", acct.Equity).Send()
}

// Clear drops the session; the next Observe starts a new one.
func (g *Guard) Clear() {
	g.state = SessionState{}
}

// Observe folds the current account and the realised deals since
// SessionStart into the session state and trips breakers.
func (g *Guard) Observe(now time.Time, acct broker.Account, deals []broker.Deal) Verdict {
	now = now.UTC()
	if !g.state.Started {
		g.Reset(now, acct)
	}
	s := &g.state

	if ds := dayStart(now); ds.After(s.DayStart) {
		s.DayStart = ds
		s.DailyBalanceStart = acct.Balance
	}
	if ws := weekStart(now); ws.After(s.WeekStart) {
		s.WeekStart = ws
		s.WeeklyBalanceStart = acct.Balance
	}

	if acct.Equity > s.MaxEquitySeen {
		s.MaxEquitySeen = acct.Equity
	}
	s.DrawdownPct = 0
	if s.MaxEquitySeen > 0 {
		s.DrawdownPct = (s.MaxEquitySeen - acct.Equity) / s.MaxEquitySeen * 100
	}

	s.RealizedPnL, s.DailyPnL, s.WeeklyPnL, s.ConsecutiveLosses = 0, 0, 0, 0
	for _, d := range deals {
		if d.Time.Before(s.SessionStart) {
			continue
		}
		net := d.Net()
		s.RealizedPnL += net
		if !d.Time.Before(s.WeekStart) {
			s.WeeklyPnL += net
		}
		if !d.Time.Before(s.DayStart) {
			s.DailyPnL += net
			if net < 0 {
				s.ConsecutiveLosses++
			} else {
				s.ConsecutiveLosses = 0
			}
		}
	}

	if s.Dormant {
		return Verdict{}
	}

	if limit := g.limits.CircuitBreakerDrawdownPct; limit > 0 && s.DrawdownPct >= limit {
		return g.halt(fmt.Sprintf("drawdown %.2f%% >= %.2f%%", s.DrawdownPct, limit))
	}

	if mult := g.limits.ProfitTargetMultiple; mult > 0 && s.StartBalance > 0 && s.RealizedPnL >= mult*s.StartBalance {
		if g.limits.ProfitPolicy == ProfitReduce {
			if !s.Reduced {
				s.Reduced = true
				g.log.Info().Str("event", EventSessionReduce).Float64("realized", s.RealizedPnL).
					Float64("risk_pct", g.limits.ReducedRiskPct).Send()
			}
			return Verdict{}
		}
		return g.halt(fmt.Sprintf("profit target %.2f reached", mult*s.StartBalance))
	}
	return Verdict{}
}

func (g *Guard) halt(reason string) Verdict {
	g.state.Dormant = true
	g.state.DormantReason = reason
	g.log.Warn().Str("event", EventSessionHalt).Str("reason", reason).
		Float64("drawdown_pct", g.state.DrawdownPct).Float64("realized", g.state.RealizedPnL).Send()
	return Verdict{ForceClose: true, Reason: reason}
}

// EnterStandby blocks new entries for StandbyMinutes from now.
func (g *Guard) EnterStandby(now time.Time) {
	if g.limits.StandbyMinutes <= 0 {
		return
	}
	until := now.UTC().Add(time.Duration(g.limits.StandbyMinutes) * time.Minute)
	if until.After(g.state.StandbyUntil) {
		g.state.StandbyUntil = until
	}
	g.log.Info().Str("event", EventStandby).Time("until", g.state.StandbyUntil).Send()
}

func (g *Guard) InStandby(now time.Time) bool {
	return now.Before(g.state.StandbyUntil)
}

// RiskPct is the per-trade risk to use right now.
func (g *Guard) RiskPct(base float64) float64 {
	if g.state.Reduced && g.limits.ReducedRiskPct > 0 && g.limits.ReducedRiskPct < base {
		return g.limits.ReducedRiskPct
	}
	return base
}

// EntryVeto lists every session rule that blocks a new entry at now.
// Existing positions are not affected.
func (g *Guard) EntryVeto(now time.Time) Decision {
	d := allow()
	s := g.state
	if s.Dormant {
		d.addf(CodeDormant, "dormant: %s", s.DormantReason)
	}
	if g.InStandby(now) {
		d.addf(CodeStandby, "standby until %s", s.StandbyUntil.Format(time.RFC3339))
	}
	if limit := g.limits.DailyLossCapPct; limit > 0 && s.DailyBalanceStart > 0 && -s.DailyPnL/s.DailyBalanceStart*100 >= limit {
		d.addf(CodeDailyLossLimit, "day realized %.2f breaches %.2f%% of %.2f", s.DailyPnL, limit, s.DailyBalanceStart)
	}
	if limit := g.limits.WeeklyLossCapPct; limit > 0 && s.WeeklyBalanceStart > 0 && -s.WeeklyPnL/s.WeeklyBalanceStart*100 >= limit {
		d.addf(CodeWeeklyLossLimit, "week realized %.2f breaches %.2f%% of %.2f", s.WeeklyPnL, limit, s.WeeklyBalanceStart)
	}
	if limit := g.limits.MaxConsecutiveLosses; limit > 0 && s.ConsecutiveLosses >= limit {
		d.addf(CodeConsecutiveLosses, "%d consecutive losing deals today", s.ConsecutiveLosses)
	}
	return d
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekStart is Monday 00:00 UTC of t's week.
func weekStart(t time.Time) time.Time {
	ds := dayStart(t)
	offset := (int(ds.Weekday()) + 6) % 7
	return ds.AddDate(0, 0, -offset)
}
