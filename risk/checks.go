package risk

import (
	"fmt"
	"strings"
)

// Violation codes. Risk limits are control flow, not errors: a vetoed trade
// comes back as a Decision carrying one or more of these.
const (
	CodeTooManyOpenTrades   = "TOO_MANY_OPEN_TRADES"
	CodeExposureCap         = "EXPOSURE_CAP"
	CodeAddCap              = "ADD_CAP"
	CodeUnprotectedPosition = "UNPROTECTED_POSITION"
	CodeNoEquity            = "NO_EQUITY"
	CodeDormant             = "DORMANT"
	CodeStandby             = "STANDBY"
	CodeDailyLossLimit      = "DAILY_LOSS_LIMIT"
	CodeWeeklyLossLimit     = "WEEKLY_LOSS_LIMIT"
	CodeConsecutiveLosses   = "CONSECUTIVE_LOSSES"

	// Entry filters applied by the engine.
	CodeSpread       = "SPREAD"
	CodeOutsideHours = "OUTSIDE_HOURS"
	CodeWeekend      = "WEEKEND"
	CodeHTFBias      = "HTF_BIAS"
	CodeHedge        = "HEDGE"
	CodeScaleIn      = "SCALE_IN"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRiskPct   float64
	AggregateRiskPct float64
}

func allow() Decision {
	return Decision{Allowed: true}
}

// Allow returns an empty, allowed decision for callers outside the package
// to collect their own vetoes into.
func Allow() Decision {
	return allow()
}

// Block records a veto raised outside this package.
func (d *Decision) Block(code, format string, args ...any) {
	d.addf(code, format, args...)
}

// Merge appends the violations of other.
func (d *Decision) Merge(other Decision) {
	for _, v := range other.Violations {
		d.add(v.Code, v.Msg)
	}
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

func (d *Decision) addf(code, format string, args ...any) {
	d.add(code, fmt.Sprintf(format, args...))
}

// Has reports whether the decision carries a violation with code.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Codes lists the violation codes in order.
func (d Decision) Codes() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Code
	}
	return out
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	parts := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		parts[i] = v.Code + ": " + v.Msg
	}
	return strings.Join(parts, "; ")
}
