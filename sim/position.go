package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/market"
)

func reject(op string, ticket uint64, code broker.Retcode, format string, args ...any) error {
	return &broker.OrderError{Op: op, Ticket: ticket, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *Engine) OpenPosition(ctx context.Context, req broker.OpenRequest) (uint64, error) {
	const op = "open"
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.faultLocked(op, 0); err != nil {
		return 0, err
	}

	meta, ok := e.meta[req.Symbol]
	if !ok {
		return 0, reject(op, 0, broker.RetInvalid, "unknown symbol %s", req.Symbol)
	}
	q, ok := e.quotes[req.Symbol]
	if !ok {
		return 0, reject(op, 0, broker.RetPriceOff, "no quote for %s", req.Symbol)
	}
	if req.Direction != market.Long && req.Direction != market.Short {
		return 0, reject(op, 0, broker.RetInvalid, "direction %s", req.Direction)
	}
	if req.Volume < meta.MinLot || req.Volume > meta.MaxLot || !onStep(req.Volume, meta) {
		return 0, reject(op, 0, broker.RetInvalidVolume, "volume %v outside [%v, %v] step %v",
			req.Volume, meta.MinLot, meta.MaxLot, meta.LotStep)
	}
	if e.acct.Equity <= 0 {
		return 0, reject(op, 0, broker.RetNoMoney, "equity %.2f", e.acct.Equity)
	}

	fill := q.Ask
	if req.Direction == market.Short {
		fill = q.Bid
	}
	if req.Price > 0 && math.Abs(fill-req.Price) > req.Slippage+1e-12 {
		return 0, reject(op, 0, broker.RetRequote, "fill %v, requested %v ± %v", fill, req.Price, req.Slippage)
	}

	mark := q.Close(req.Direction)
	if err := checkStops(op, 0, req.Direction, mark, req.Stop, req.TP, meta); err != nil {
		return 0, err
	}

	e.nextTicket++
	p := &broker.Position{
		Ticket:    e.nextTicket,
		Symbol:    req.Symbol,
		Tag:       req.Tag,
		Direction: req.Direction,
		Entry:     fill,
		Stop:      req.Stop,
		TP:        req.TP,
		Volume:    req.Volume,
		OpenTime:  q.Time,
	}
	e.positions[p.Ticket] = p
	e.revalueLocked()

	e.log.Debug().
		Str("event", "fill").
		Uint64("ticket", p.Ticket).
		Str("direction", p.Direction.String()).
		Float64("volume", p.Volume).
		Float64("price", fill).
		Msg("position opened")

	return p.Ticket, nil
}

func (e *Engine) ModifyPosition(ctx context.Context, ticket uint64, stop, tp float64) error {
	const op = "modify"
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.faultLocked(op, ticket); err != nil {
		return err
	}
	p, ok := e.positions[ticket]
	if !ok {
		return reject(op, ticket, broker.RetPositionClosed, "no open position")
	}
	q, ok := e.quotes[p.Symbol]
	if !ok {
		return reject(op, ticket, broker.RetPriceOff, "no quote for %s", p.Symbol)
	}
	if err := checkStops(op, ticket, p.Direction, q.Close(p.Direction), stop, tp, e.meta[p.Symbol]); err != nil {
		return err
	}

	p.Stop = stop
	p.TP = tp
	return nil
}

func (e *Engine) ClosePosition(ctx context.Context, ticket uint64) error {
	return e.close(ctx, "close", ticket, 0)
}

// ClosePartial closes volume lots. The remainder must stay at or above the
// minimum lot.
func (e *Engine) ClosePartial(ctx context.Context, ticket uint64, volume float64) error {
	return e.close(ctx, "close_partial", ticket, volume)
}

func (e *Engine) close(ctx context.Context, op string, ticket uint64, volume float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()

	if err := e.faultLocked(op, ticket); err != nil {
		e.mu.Unlock()
		return err
	}
	p, ok := e.positions[ticket]
	if !ok {
		e.mu.Unlock()
		return reject(op, ticket, broker.RetPositionClosed, "no open position")
	}
	q, ok := e.quotes[p.Symbol]
	if !ok {
		e.mu.Unlock()
		return reject(op, ticket, broker.RetPriceOff, "no quote for %s", p.Symbol)
	}

	reason := broker.ReasonClose
	if volume > 0 {
		meta := e.meta[p.Symbol]
		remain := roundVolume(p.Volume-volume, meta)
		if !onStep(volume, meta) || volume < meta.MinLot || remain < meta.MinLot {
			e.mu.Unlock()
			return reject(op, ticket, broker.RetInvalidVolume, "cannot close %v of %v", volume, p.Volume)
		}
		reason = broker.ReasonPartial
	} else {
		volume = p.Volume
	}

	d, err := e.closeLocked(p, volume, q.Close(p.Direction), q.Time, reason)
	e.revalueLocked()
	if err == nil {
		err = e.recordEquityLocked(q.Time)
	}
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnPositionClosed(d)
	}
	return err
}

// checkStops enforces side and minimum distance for non-zero levels,
// measured from mark, the price the position would close at.
func checkStops(op string, ticket uint64, dir market.Direction, mark, stop, tp float64, meta market.SymbolMeta) error {
	minDist := meta.MinStopPrice()
	sign := dir.Sign()
	if stop != 0 {
		if d := (mark - stop) * sign; d <= 0 || d < minDist-1e-9 {
			return reject(op, ticket, broker.RetInvalidStops, "sl %v too close to %v (min %v)", stop, mark, minDist)
		}
	}
	if tp != 0 {
		if d := (tp - mark) * sign; d <= 0 || d < minDist-1e-9 {
			return reject(op, ticket, broker.RetInvalidStops, "tp %v too close to %v (min %v)", tp, mark, minDist)
		}
	}
	return nil
}
