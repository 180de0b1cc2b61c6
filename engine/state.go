package engine

import (
	"sort"
	"time"

	"github.com/rustyeddy/fxengine/broker"
)

// TradeState is the engine-owned companion of one open position.
type TradeState struct {
	Ticket       uint64 `json:"ticket"`
	PartialTaken bool   `json:"partial_taken"`
	// LastTPUpdateBar is the bar open time of the last dynamic TP scan.
	LastTPUpdateBar time.Time `json:"last_tp_update_bar"`
	BarsSinceOpen   int       `json:"bars_since_open"`
	// Add is true for a scale-in position.
	Add bool `json:"add"`
}

// TradeStateStore maps live tickets to their TradeState.
type TradeStateStore struct {
	states map[uint64]*TradeState
}

func NewTradeStateStore() *TradeStateStore {
	return &TradeStateStore{states: make(map[uint64]*TradeState)}
}

func (s *TradeStateStore) Get(ticket uint64) (*TradeState, bool) {
	st, ok := s.states[ticket]
	return st, ok
}

// Ensure returns the state for ticket, creating a fresh one when missing.
func (s *TradeStateStore) Ensure(ticket uint64) (st *TradeState, created bool) {
	if st, ok := s.states[ticket]; ok {
		return st, false
	}
	st = &TradeState{Ticket: ticket}
	s.states[ticket] = st
	return st, true
}

func (s *TradeStateStore) Remove(ticket uint64) {
	delete(s.states, ticket)
}

func (s *TradeStateStore) Len() int { return len(s.states) }

// Tickets lists the tracked tickets in ascending order.
func (s *TradeStateStore) Tickets() []uint64 {
	out := make([]uint64, 0, len(s.states))
	for t := range s.states {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear drops every state, as after a restart.
func (s *TradeStateStore) Clear() {
	s.states = make(map[uint64]*TradeState)
}

// Reconcile makes the store match the live position set: one state per
// live ticket, none for tickets that are gone.
func (s *TradeStateStore) Reconcile(positions []broker.Position) (created, removed []uint64) {
	live := make(map[uint64]struct{}, len(positions))
	for _, p := range positions {
		live[p.Ticket] = struct{}{}
		if _, ok := s.Ensure(p.Ticket); ok {
			created = append(created, p.Ticket)
		}
	}
	for _, t := range s.Tickets() {
		if _, ok := live[t]; !ok {
			delete(s.states, t)
			removed = append(removed, t)
		}
	}
	sort.Slice(created, func(i, j int) bool { return created[i] < created[j] })
	return created, removed
}
