package backtest

import (
	"math"
	"time"

	"github.com/rustyeddy/fxengine/broker"
)

// Summary is the performance report of one run. Every closing deal counts
// as a trade, partial closes included.
type Summary struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	StartBalance float64 `json:"start_balance"`
	EndBalance   float64 `json:"end_balance"`
	NetPL        float64 `json:"net_pl"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ReturnPct    float64 `json:"return_pct"`

	// WinRate is a percentage.
	WinRate float64 `json:"win_rate"`
	// ProfitFactor is +Inf when there are wins and no losses.
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`

	// MaxDrawdown is the deepest fall of cumulative P/L from its peak, in
	// account currency; MaxDrawdownPct measures the same fall against the
	// balance at the peak.
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	// Sharpe is mean/stddev of per-trade P/L scaled by sqrt(252).
	Sharpe float64 `json:"sharpe"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summarize computes the report from the closing deals in time order.
func Summarize(deals []broker.Deal, startBalance float64) Summary {
	s := Summary{StartBalance: startBalance, EndBalance: startBalance}
	if len(deals) == 0 {
		return s
	}

	pnl := make([]float64, len(deals))
	for i, d := range deals {
		p := d.Net()
		pnl[i] = p
		s.NetPL += p
		switch {
		case p > 0:
			s.Wins++
			s.GrossProfit += p
		case p < 0:
			s.Losses++
			s.GrossLoss += -p
		}
	}
	s.Trades = len(deals)
	s.EndBalance = startBalance + s.NetPL
	if startBalance > 0 {
		s.ReturnPct = s.NetPL / startBalance * 100
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades) * 100

	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	}
	if s.Wins > 0 {
		s.AvgWin = s.GrossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = s.GrossLoss / float64(s.Losses)
	}
	s.Expectancy = s.WinRate/100*s.AvgWin - (100-s.WinRate)/100*s.AvgLoss

	if len(pnl) > 1 {
		mean, sd := meanStd(pnl)
		if sd > 0 {
			s.Sharpe = mean / sd * math.Sqrt(252)
		}
	}

	cum, peak := 0.0, 0.0
	for _, p := range pnl {
		cum += p
		peak = math.Max(peak, cum)
		if dd := peak - cum; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
			if base := startBalance + peak; base > 0 {
				s.MaxDrawdownPct = dd / base * 100
			}
		}
	}

	s.Start = deals[0].Time
	s.End = deals[len(deals)-1].Time
	return s
}

// meanStd returns the mean and the population standard deviation.
func meanStd(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		sd += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sd / float64(len(xs)))
}
