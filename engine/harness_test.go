package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
	"github.com/rustyeddy/fxengine/sim"
)

// Wednesday, so weekend protection stays out of the way.
var t0 = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

const tf = market.M15

type scripted struct {
	scores []signal.Scores
	calls  int
	exit   bool
}

func (s *scripted) Scores(market.Snapshot) signal.Scores {
	if len(s.scores) == 0 {
		return signal.Scores{}
	}
	i := s.calls
	if i >= len(s.scores) {
		i = len(s.scores) - 1
	}
	s.calls++
	return s.scores[i]
}

func (s *scripted) ShouldExit(broker.Position, market.Snapshot) signal.Reversal {
	if !s.exit {
		return signal.Reversal{}
	}
	return signal.Reversal{Raw: 0.9, Score: 0.9, Categories: 2, Valid: true, MTFConfirmed: true, Threshold: 0.6, Triggered: true}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func long(v float64) signal.Scores { return signal.Scores{Long: v} }

type harness struct {
	eng    *Engine
	sim    *sim.Engine
	guard  *risk.Guard
	logs   *bytes.Buffer
	limits risk.Limits
}

type options struct {
	cfg     Config
	limits  risk.Limits
	session risk.SessionLimits
	meta    market.SymbolMeta
}

func defaultOptions() options {
	cfg := Config{
		Symbol:    "EURUSD",
		Tag:       "test",
		Timeframe: tf,
		Entry:     DefaultEntryConfig(),
		Exit:      DefaultExitConfig(),
	}
	cfg.Entry.HTFBias = false
	cfg.Exit.DynamicTP.Enabled = false
	return options{
		cfg:     cfg,
		limits:  risk.DefaultLimits(),
		session: risk.DefaultSessionLimits(),
		meta:    market.Symbols["EURUSD"],
	}
}

func newHarness(t *testing.T, strat signal.Strategy, mutate func(*options)) *harness {
	t.Helper()
	o := defaultOptions()
	if mutate != nil {
		mutate(&o)
	}

	logs := &bytes.Buffer{}
	logger := zerolog.New(logs).Level(zerolog.DebugLevel)

	s := sim.NewEngine(broker.Account{Currency: "USD", Balance: 10000}, nil, zerolog.Nop())
	s.AddSymbol(o.meta)
	require.NoError(t, s.UpdateQuote(market.Quote{Symbol: "EURUSD", Time: t0, Bid: 1.1000, Ask: 1.1001}))

	guard := risk.NewGuard(o.session, logger)
	eng, err := New(context.Background(), o.cfg, s, strat, o.limits, guard, logger)
	require.NoError(t, err)
	return &harness{eng: eng, sim: s, guard: guard, logs: logs, limits: o.limits}
}

// frame is a primary frame whose newest closed bar opened at open.
func frame(open time.Time, close float64) market.Frame {
	return market.Frame{
		Timeframe: tf,
		Bars: []market.Candle{
			{Open: close, High: close + 0.0005, Low: close - 0.0005, Close: close, Time: open},
		},
		ATR: []float64{0.0010, 0.0010},
	}
}

// snapAt is the first tick after bar n (counted from t0) closed.
func snapAt(n int, bid float64) market.Snapshot {
	return snapAfter(t0.Add(time.Duration(n)*tf.Duration()), bid)
}

// snapAfter is the first tick after the bar opened at open closed.
func snapAfter(open time.Time, bid float64) market.Snapshot {
	return market.Snapshot{
		Symbol:  "EURUSD",
		Time:    open.Add(tf.Duration()),
		Bid:     bid,
		Ask:     bid + 0.0001,
		Primary: frame(open, bid),
	}
}

// tick pushes snap's quote to the broker, then evaluates.
func (h *harness) tick(t *testing.T, snap market.Snapshot) error {
	t.Helper()
	require.NoError(t, h.sim.UpdateQuote(market.Quote{Symbol: snap.Symbol, Time: snap.Time, Bid: snap.Bid, Ask: snap.Ask}))
	return h.eng.OnTick(context.Background(), snap)
}

func (h *harness) positions(t *testing.T) []broker.Position {
	t.Helper()
	ps, err := h.sim.GetOpenPositions(context.Background(), "EURUSD", "test")
	require.NoError(t, err)
	return ps
}

func (h *harness) open(t *testing.T, dir market.Direction, volume, stop float64) uint64 {
	t.Helper()
	ticket, err := h.sim.OpenPosition(context.Background(), broker.OpenRequest{
		Symbol: "EURUSD", Tag: "test", Direction: dir, Volume: volume, Stop: stop,
	})
	require.NoError(t, err)
	return ticket
}

// events returns every log line whose event field is name.
func (h *harness) events(t *testing.T, name string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(h.logs.Bytes()))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		if m["event"] == name {
			out = append(out, m)
		}
	}
	return out
}

func countReason(deals []broker.Deal, reason string) int {
	n := 0
	for _, d := range deals {
		if d.Reason == reason {
			n++
		}
	}
	return n
}
