// Package metrics exposes the engine's decisions, order flow, exposure and
// session state as Prometheus series:
//
//	fxengine_entry_scores{direction}            histogram of entry scores
//	fxengine_entry_decisions_total{direction,outcome}
//	fxengine_exit_actions_total{action}
//	fxengine_orders_total{op,result}            final outcome per order op
//	fxengine_order_retries_total{op,code}
//	fxengine_exposure_pct                       aggregate open risk, % of equity
//	fxengine_open_positions
//	fxengine_session_drawdown_pct
//	fxengine_session_realized
//	fxengine_session_consecutive_losses
//	fxengine_session_dormant                    1 once the session is halted
//
// A Collector is both a broker.RetryHook and an engine.Observer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
)

const namespace = "fxengine"

type Collector struct {
	scores    *prometheus.HistogramVec
	decisions *prometheus.CounterVec
	exits     *prometheus.CounterVec
	orders    *prometheus.CounterVec
	retries   *prometheus.CounterVec

	exposure     prometheus.Gauge
	open         prometheus.Gauge
	drawdown     prometheus.Gauge
	realized     prometheus.Gauge
	consecLosses prometheus.Gauge
	dormant      prometheus.Gauge
}

// New creates the collector and registers every series with reg. Passing
// prometheus.DefaultRegisterer serves them from promhttp.Handler().
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entry_scores",
			Help:      "Entry scores computed on each new bar.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"direction"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_decisions_total",
			Help:      "Entry decisions split by outcome (allowed or the veto code).",
		}, []string{"direction", "outcome"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exit_actions_total",
			Help:      "Exit actions taken on open positions.",
		}, []string{"action"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order operations by final result.",
		}, []string{"op", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_retries_total",
			Help:      "Order retries after a transient rejection.",
		}, []string{"op", "code"}),
		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exposure_pct",
			Help:      "Aggregate open risk as a percentage of equity.",
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open positions owned by the engine.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_drawdown_pct",
			Help:      "Drawdown from the session equity peak.",
		}),
		realized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_realized",
			Help:      "Realised P/L since the session started, account currency.",
		}),
		consecLosses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_consecutive_losses",
			Help:      "Consecutive losing deals today.",
		}),
		dormant: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_dormant",
			Help:      "1 once the session guard halted trading.",
		}),
	}
	reg.MustRegister(c.scores, c.decisions, c.exits, c.orders, c.retries,
		c.exposure, c.open, c.drawdown, c.realized, c.consecLosses, c.dormant)
	return c
}

func (c *Collector) EntryScored(s signal.Scores) {
	c.scores.WithLabelValues(market.Long.String()).Observe(s.Long)
	c.scores.WithLabelValues(market.Short.String()).Observe(s.Short)
}

// EntryDecision counts an allowed decision once and a vetoed one once per
// violation code.
func (c *Collector) EntryDecision(dir market.Direction, d risk.Decision) {
	if d.Allowed {
		c.decisions.WithLabelValues(dir.String(), "allowed").Inc()
		return
	}
	for _, code := range d.Codes() {
		c.decisions.WithLabelValues(dir.String(), code).Inc()
	}
}

func (c *Collector) ExitAction(action string) {
	c.exits.WithLabelValues(action).Inc()
}

func (c *Collector) Exposure(pct float64, open int) {
	c.exposure.Set(pct)
	c.open.Set(float64(open))
}

func (c *Collector) Session(s risk.SessionState) {
	c.drawdown.Set(s.DrawdownPct)
	c.realized.Set(s.RealizedPnL)
	c.consecLosses.Set(float64(s.ConsecutiveLosses))
	if s.Dormant {
		c.dormant.Set(1)
	} else {
		c.dormant.Set(0)
	}
}

func (c *Collector) OrderRetried(op string, code broker.Retcode) {
	c.retries.WithLabelValues(op, code.String()).Inc()
}

func (c *Collector) OrderResult(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if code := broker.CodeOf(err); code != 0 {
			result = code.String()
		}
	}
	c.orders.WithLabelValues(op, result).Inc()
}
