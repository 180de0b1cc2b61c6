// Package sim is an in-memory broker. It fills at the quoted bid/ask,
// triggers stops and targets on every quote, and journals every closing
// deal with the equity that follows it.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/internal/id"
	"github.com/rustyeddy/fxengine/journal"
	"github.com/rustyeddy/fxengine/market"
)

var (
	ErrNoQuote       = errors.New("sim: no quote")
	ErrUnknownSymbol = errors.New("sim: unknown symbol")
)

// ClosedListener is told about every deal that closed (part of) a position.
// It is called after the engine lock is released.
type ClosedListener interface {
	OnPositionClosed(d broker.Deal)
}

type Engine struct {
	mu         sync.Mutex
	acct       broker.Account
	meta       map[string]market.SymbolMeta
	quotes     map[string]market.Quote
	positions  map[uint64]*broker.Position
	deals      []broker.Deal
	nextTicket uint64
	faults     map[string][]broker.Retcode

	journal  journal.Journal
	listener ClosedListener
	log      zerolog.Logger
}

var _ broker.Broker = (*Engine)(nil)

func NewEngine(acct broker.Account, j journal.Journal, logger zerolog.Logger) *Engine {
	if j == nil {
		j = journal.Discard{}
	}
	acct.Equity = acct.Balance
	return &Engine{
		acct:      acct,
		meta:      make(map[string]market.SymbolMeta),
		quotes:    make(map[string]market.Quote),
		positions: make(map[uint64]*broker.Position),
		faults:    make(map[string][]broker.Retcode),
		journal:   j,
		log:       logger.With().Str("component", "sim").Logger(),
	}
}

// AddSymbol registers contract metadata. Metadata is stored as given so
// callers can exercise degenerate contracts.
func (e *Engine) AddSymbol(meta market.SymbolMeta) {
	e.mu.Lock()
	e.meta[meta.Name] = meta
	e.mu.Unlock()
}

func (e *Engine) SetClosedListener(l ClosedListener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// FailNext makes the next len(codes) calls of op fail with the given codes
// before anything is executed. op is one of open, modify, close, close_partial.
func (e *Engine) FailNext(op string, codes ...broker.Retcode) {
	e.mu.Lock()
	e.faults[op] = append(e.faults[op], codes...)
	e.mu.Unlock()
}

func (e *Engine) faultLocked(op string, ticket uint64) error {
	q := e.faults[op]
	if len(q) == 0 {
		return nil
	}
	code := q[0]
	e.faults[op] = q[1:]
	return &broker.OrderError{Op: op, Ticket: ticket, Code: code, Msg: "injected"}
}

// Deals returns every deal so far, oldest first.
func (e *Engine) Deals() []broker.Deal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]broker.Deal(nil), e.deals...)
}

// Account returns the account without a context, for reporting.
func (e *Engine) Account() broker.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	if err := ctx.Err(); err != nil {
		return broker.Account{}, err
	}
	return e.Account(), nil
}

func (e *Engine) GetSymbolMeta(ctx context.Context, symbol string) (market.SymbolMeta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.meta[symbol]
	if !ok {
		return market.SymbolMeta{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return m, nil
}

func (e *Engine) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quotes[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return q, nil
}

func (e *Engine) GetOpenPositions(ctx context.Context, symbol, tag string) ([]broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Symbol == symbol && p.Tag == tag {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (e *Engine) GetDeals(ctx context.Context, symbol, tag string, since time.Time) ([]broker.Deal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Deal
	for _, d := range e.deals {
		if d.Symbol == symbol && d.Tag == tag && !d.Time.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

// UpdateQuote stores q, closes positions whose stop or target it reaches,
// revalues the account and journals equity. Journal failures are returned
// after every triggered position is closed and the listener has been told.
func (e *Engine) UpdateQuote(q market.Quote) error {
	e.mu.Lock()

	e.quotes[q.Symbol] = q

	var (
		closed []broker.Deal
		errs   []error
	)
	for _, t := range e.ticketsLocked() {
		p := e.positions[t]
		if p.Symbol != q.Symbol {
			continue
		}
		price, reason, hit := triggered(*p, q)
		if !hit {
			continue
		}
		d, err := e.closeLocked(p, p.Volume, price, q.Time, reason)
		if err != nil {
			errs = append(errs, fmt.Errorf("sim: journal deal #%d: %w", d.Ticket, err))
		}
		closed = append(closed, d)
	}

	e.revalueLocked()
	if err := e.recordEquityLocked(q.Time); err != nil {
		errs = append(errs, fmt.Errorf("sim: journal equity: %w", err))
	}
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, d := range closed {
			listener.OnPositionClosed(d)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) ticketsLocked() []uint64 {
	out := make([]uint64, 0, len(e.positions))
	for t := range e.positions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) revalueLocked() {
	equity := e.acct.Balance
	for _, p := range e.positions {
		q, ok := e.quotes[p.Symbol]
		if !ok {
			continue
		}
		equity += profit(*p, p.Volume, q.Close(p.Direction), e.meta[p.Symbol])
	}
	e.acct.Equity = equity
}

func (e *Engine) recordEquityLocked(at time.Time) error {
	return e.journal.RecordEquity(journal.EquitySnapshot{
		Time:    at,
		Balance: e.acct.Balance,
		Equity:  e.acct.Equity,
	})
}

// closeLocked realises volume of p at price and removes p once flat.
func (e *Engine) closeLocked(p *broker.Position, volume, price float64, at time.Time, reason string) (broker.Deal, error) {
	meta := e.meta[p.Symbol]
	pl := profit(*p, volume, price, meta)

	d := broker.Deal{
		ID:        id.At(at),
		Ticket:    p.Ticket,
		Symbol:    p.Symbol,
		Tag:       p.Tag,
		Direction: p.Direction,
		Volume:    volume,
		Entry:     p.Entry,
		Price:     price,
		Profit:    pl,
		Reason:    reason,
		OpenTime:  p.OpenTime,
		Time:      at,
	}

	e.acct.Balance += pl
	e.deals = append(e.deals, d)

	p.Volume = roundVolume(p.Volume-volume, meta)
	if p.Volume <= 0 {
		delete(e.positions, p.Ticket)
	}

	e.log.Debug().
		Str("event", "deal").
		Uint64("ticket", d.Ticket).
		Str("reason", reason).
		Float64("volume", volume).
		Float64("price", price).
		Float64("profit", pl).
		Msg("position closed")

	err := e.journal.RecordTrade(journal.TradeRecord{
		DealID:     d.ID,
		Ticket:     d.Ticket,
		Symbol:     d.Symbol,
		Tag:        d.Tag,
		Direction:  d.Direction.String(),
		Volume:     d.Volume,
		EntryPrice: d.Entry,
		ExitPrice:  d.Price,
		OpenTime:   d.OpenTime,
		CloseTime:  d.Time,
		RealizedPL: d.Profit,
		Reason:     d.Reason,
	})
	return d, err
}
