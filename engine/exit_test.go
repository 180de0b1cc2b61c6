package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
)

func TestPartialTPFiresOnce(t *testing.T) {
	h := newHarness(t, &scripted{}, nil)
	ticket := h.open(t, market.Long, 0.10, 1.0980)

	snap := snapAt(0, 1.1015)
	require.NoError(t, h.tick(t, snap))

	snap.Time = snap.Time.Add(time.Minute)
	require.NoError(t, h.tick(t, snap))
	require.NoError(t, h.tick(t, snapAt(1, 1.1015)))

	assert.Equal(t, 1, countReason(h.sim.Deals(), broker.ReasonPartial))
	ps := h.positions(t)
	require.Len(t, ps, 1)
	assert.InDelta(t, 0.05, ps[0].Volume, 1e-9)

	st, ok := h.eng.TradeState(ticket)
	require.True(t, ok)
	assert.True(t, st.PartialTaken)
	assert.Len(t, h.events(t, EventPartialTP), 1)
}

func TestPartialTPSkippedOnMinLot(t *testing.T) {
	h := newHarness(t, &scripted{}, nil)
	ticket := h.open(t, market.Long, 0.01, 1.0980)

	require.NoError(t, h.tick(t, snapAt(0, 1.1015)))

	assert.Zero(t, countReason(h.sim.Deals(), broker.ReasonPartial))
	st, ok := h.eng.TradeState(ticket)
	require.True(t, ok)
	assert.False(t, st.PartialTaken)
}

func TestBreakEvenThenTrailing(t *testing.T) {
	h := newHarness(t, &scripted{}, func(o *options) {
		o.cfg.Exit.Partial.Enabled = false
	})
	h.open(t, market.Long, 0.10, 1.0980)

	require.NoError(t, h.tick(t, snapAt(0, 1.1012)))
	assert.InDelta(t, 1.1001, h.positions(t)[0].Stop, 1e-9)

	require.NoError(t, h.tick(t, snapAt(1, 1.1030)))
	assert.InDelta(t, 1.1015, h.positions(t)[0].Stop, 1e-9)

	// an improvement below the step is ignored
	require.NoError(t, h.tick(t, snapAt(2, 1.1031)))
	assert.InDelta(t, 1.1015, h.positions(t)[0].Stop, 1e-9)

	// a pullback never loosens the stop
	require.NoError(t, h.tick(t, snapAt(3, 1.1020)))
	assert.InDelta(t, 1.1015, h.positions(t)[0].Stop, 1e-9)

	assert.Len(t, h.events(t, EventBreakEven), 1)
	assert.Len(t, h.events(t, EventTrailingStop), 1)
}

func TestTimeStop(t *testing.T) {
	h := newHarness(t, &scripted{}, func(o *options) {
		o.cfg.Exit.TimeStopMinutes = 60
	})
	h.open(t, market.Long, 0.10, 1.0980)

	require.NoError(t, h.tick(t, snapAt(0, 1.1000)))
	assert.Len(t, h.positions(t), 1)

	require.NoError(t, h.tick(t, snapAt(4, 1.1000)))
	assert.Empty(t, h.positions(t))
	assert.Len(t, h.events(t, EventTimeStop), 1)
}

func TestReversalClosesAllAndStandsBy(t *testing.T) {
	strat := &scripted{exit: true, scores: []signal.Scores{long(0.9)}}
	h := newHarness(t, strat, func(o *options) {
		o.cfg.Entry.ConfirmationBars = 1
	})
	h.open(t, market.Long, 0.10, 1.0980)
	h.open(t, market.Long, 0.10, 1.0980)

	// too young for a reversal check
	require.NoError(t, h.tick(t, snapAt(0, 1.1000)))
	require.NoError(t, h.tick(t, snapAt(1, 1.1000)))
	assert.Len(t, h.positions(t), 2)

	require.NoError(t, h.tick(t, snapAt(2, 1.1000)))
	assert.Empty(t, h.positions(t))
	assert.Len(t, h.events(t, EventReversalExit), 1)

	state := h.eng.Session()
	assert.True(t, state.StandbyUntil.Equal(snapAt(2, 0).Time.Add(30*time.Minute)))
	assert.Zero(t, h.eng.Context().States.Len())

	require.NoError(t, h.tick(t, snapAt(3, 1.1000)))
	assert.Empty(t, h.positions(t))
	vetoes := h.events(t, EventEntryVeto)
	require.NotEmpty(t, vetoes)
	assert.Contains(t, vetoes[len(vetoes)-1]["codes"], risk.CodeStandby)
}

func TestReversalWaitsForBarClose(t *testing.T) {
	strat := &scripted{}
	h := newHarness(t, strat, nil)
	h.open(t, market.Long, 0.10, 1.0980)

	for n := 0; n < 3; n++ {
		require.NoError(t, h.tick(t, snapAt(n, 1.1000)))
	}
	require.Len(t, h.positions(t), 1)

	// the reversal turns on between bar closes; ticks inside the bar ignore it
	strat.exit = true
	mid := snapAt(2, 1.1000)
	for i := 1; i <= 3; i++ {
		mid.Time = mid.Time.Add(3 * time.Minute)
		require.NoError(t, h.tick(t, mid))
	}
	assert.Len(t, h.positions(t), 1)
	assert.Empty(t, h.events(t, EventReversalExit))

	require.NoError(t, h.tick(t, snapAt(3, 1.1000)))
	assert.Empty(t, h.positions(t))
	assert.Len(t, h.events(t, EventReversalExit), 1)
}

func TestDrawdownHaltIsSticky(t *testing.T) {
	strat := &scripted{scores: []signal.Scores{long(0.95)}}
	h := newHarness(t, strat, func(o *options) {
		o.cfg.Entry.ConfirmationBars = 1
	})
	h.open(t, market.Long, 1.0, 0)

	require.NoError(t, h.tick(t, snapAt(0, 1.0890)))
	assert.Empty(t, h.positions(t))
	assert.True(t, h.eng.Session().Dormant)
	assert.Len(t, h.events(t, EventUnprotected), 1)

	for n := 1; n < 6; n++ {
		require.NoError(t, h.tick(t, snapAt(n, 1.0890+float64(n)*0.001)))
		assert.Empty(t, h.positions(t))
	}
	assert.True(t, h.eng.Session().Dormant)
	vetoes := h.events(t, EventEntryVeto)
	require.Len(t, vetoes, 5)
	for _, v := range vetoes {
		assert.Contains(t, v["codes"], risk.CodeDormant)
	}

	require.NoError(t, h.eng.Reset(context.Background()))
	assert.False(t, h.eng.Session().Dormant)
}

func TestWeekendProtection(t *testing.T) {
	h := newHarness(t, &scripted{}, func(o *options) {
		o.cfg.Exit.Weekend.Enabled = true
	})
	winner := h.open(t, market.Long, 0.10, 0)
	require.NoError(t, h.sim.UpdateQuote(market.Quote{Symbol: "EURUSD", Time: t0, Bid: 1.1040, Ask: 1.1041}))
	loser := h.open(t, market.Long, 0.10, 0)

	friday := time.Date(2024, 6, 7, 21, 0, 0, 0, time.UTC)
	require.NoError(t, h.tick(t, snapAfter(friday, 1.1020)))

	ps := h.positions(t)
	require.Len(t, ps, 1)
	assert.Equal(t, loser, ps[0].Ticket)
	assert.InDelta(t, 1.1019, ps[0].Stop, 1e-9)

	deals := h.sim.Deals()
	require.Len(t, deals, 1)
	assert.Equal(t, winner, deals[0].Ticket)
	assert.Len(t, h.events(t, EventWeekendProtect), 2)
}

func TestNoEntriesInsideWeekendWindow(t *testing.T) {
	strat := &scripted{scores: []signal.Scores{long(0.9)}}
	h := newHarness(t, strat, func(o *options) {
		o.cfg.Entry.ConfirmationBars = 1
		o.cfg.Exit.Weekend.Enabled = true
	})

	friday := time.Date(2024, 6, 7, 21, 0, 0, 0, time.UTC)
	for n := 0; n < 3; n++ {
		require.NoError(t, h.tick(t, snapAfter(friday.Add(time.Duration(n)*tf.Duration()), 1.1000)))
		assert.Empty(t, h.positions(t))
	}
	assert.Empty(t, h.sim.Deals())
	assert.Empty(t, h.events(t, EventEntryOpened))

	vetoes := h.events(t, EventEntryVeto)
	require.Len(t, vetoes, 3)
	for _, v := range vetoes {
		assert.Contains(t, v["codes"], risk.CodeWeekend)
	}

	// Monday trades again.
	monday := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, h.tick(t, snapAfter(monday, 1.1000)))
	assert.Len(t, h.positions(t), 1)
}

func TestWeekendActive(t *testing.T) {
	w := WeekendConfig{Enabled: true, FromHour: 20}
	assert.False(t, w.Active(time.Date(2024, 6, 7, 19, 59, 0, 0, time.UTC)))
	assert.True(t, w.Active(time.Date(2024, 6, 7, 20, 0, 0, 0, time.UTC)))
	assert.True(t, w.Active(time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)))
	assert.False(t, w.Active(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.False(t, WeekendConfig{FromHour: 20}.Active(time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)))
}

func TestDynamicTPStampsBarWithoutCandidate(t *testing.T) {
	h := newHarness(t, &scripted{}, func(o *options) {
		o.cfg.Exit.DynamicTP.Enabled = true
		o.cfg.Exit.DynamicTP.MinDistancePoints = 300
		o.cfg.Exit.Partial.Enabled = false
	})
	ticket := h.open(t, market.Long, 0.10, 1.0980)

	snap := snapAt(0, 1.1000)
	require.NoError(t, h.tick(t, snap))

	st, ok := h.eng.TradeState(ticket)
	require.True(t, ok)
	assert.True(t, st.LastTPUpdateBar.Equal(snap.Primary.Bars[0].Time))
	assert.Zero(t, h.positions(t)[0].TP)
}

func TestDynamicTPAppliesOnlyBetterTargets(t *testing.T) {
	// One bar 1.0995-1.1005 closing at 1.1000: the nearest in-profit
	// candidate beyond 6 pips is the 1.272 extension at 1.100772.
	const target = 1.100772

	tests := []struct {
		name    string
		tp      float64
		want    float64
		updates int
	}{
		{"no tp", 0, target, 1},
		{"nearer tp is replaced", 1.1004, target, 1},
		{"farther tp is kept", 1.1030, 1.1030, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &scripted{}, func(o *options) {
				o.cfg.Exit.DynamicTP.Enabled = true
				o.cfg.Exit.DynamicTP.MinDistancePoints = 60
				o.cfg.Exit.Partial.Enabled = false
			})
			_, err := h.sim.OpenPosition(context.Background(), broker.OpenRequest{
				Symbol: "EURUSD", Tag: "test", Direction: market.Long, Volume: 0.10, Stop: 1.0980, TP: tt.tp,
			})
			require.NoError(t, err)

			require.NoError(t, h.tick(t, snapAt(0, 1.1000)))

			ps := h.positions(t)
			require.Len(t, ps, 1)
			assert.InDelta(t, tt.want, ps[0].TP, 1e-6)
			assert.Len(t, h.events(t, EventTPUpdate), tt.updates)
		})
	}
}
