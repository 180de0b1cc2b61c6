// Package broker defines the boundary between the decision engine and the
// venue that holds positions and executes orders.
package broker

import (
	"context"
	"time"

	"github.com/rustyeddy/fxengine/market"
)

// MarketData is the read side of a broker.
type MarketData interface {
	// GetOpenPositions returns the live positions for symbol carrying tag.
	GetOpenPositions(ctx context.Context, symbol, tag string) ([]Position, error)
	GetAccount(ctx context.Context) (Account, error)
	GetSymbolMeta(ctx context.Context, symbol string) (market.SymbolMeta, error)
	GetQuote(ctx context.Context, symbol string) (market.Quote, error)
	// GetDeals returns closing deals for symbol/tag at or after since, oldest first.
	GetDeals(ctx context.Context, symbol, tag string, since time.Time) ([]Deal, error)
}

// OrderGateway is the write side. Every failure should be an *OrderError so
// callers can tell transient from permanent rejections.
type OrderGateway interface {
	OpenPosition(ctx context.Context, req OpenRequest) (uint64, error)
	ModifyPosition(ctx context.Context, ticket uint64, stop, tp float64) error
	ClosePosition(ctx context.Context, ticket uint64) error
	ClosePartial(ctx context.Context, ticket uint64, volume float64) error
}

type Broker interface {
	MarketData
	OrderGateway
}

type Account struct {
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
}

// Position is the broker's view of an open ticket.
type Position struct {
	Ticket    uint64           `json:"ticket"`
	Symbol    string           `json:"symbol"`
	Tag       string           `json:"tag"`
	Direction market.Direction `json:"direction"`
	Entry     float64          `json:"entry"`
	Stop      float64          `json:"stop"`
	TP        float64          `json:"tp"`
	Volume    float64          `json:"volume"`
	OpenTime  time.Time        `json:"open_time"`
}

// ProfitDistance is the move from entry to price in the position's favour.
// Negative when the position is under water.
func (p Position) ProfitDistance(price float64) float64 {
	return (price - p.Entry) * p.Direction.Sign()
}

// StopDistance is the price distance from price back to the stop, or 0 when
// no stop is set or the stop is already beyond price.
func (p Position) StopDistance(price float64) float64 {
	if p.Stop == 0 {
		return 0
	}
	d := (price - p.Stop) * p.Direction.Sign()
	if d < 0 {
		return 0
	}
	return d
}

// Deal is a realised fill that closed (part of) a position.
type Deal struct {
	ID         string           `json:"id"`
	Ticket     uint64           `json:"ticket"`
	Symbol     string           `json:"symbol"`
	Tag        string           `json:"tag"`
	Direction  market.Direction `json:"direction"`
	Volume     float64          `json:"volume"`
	Entry      float64          `json:"entry"`
	Price      float64          `json:"price"`
	Profit     float64          `json:"profit"`
	Swap       float64          `json:"swap"`
	Commission float64          `json:"commission"`
	Reason     string           `json:"reason"`
	OpenTime   time.Time        `json:"open_time"`
	Time       time.Time        `json:"time"`
}

// Net is profit plus swap plus commission.
func (d Deal) Net() float64 {
	return d.Profit + d.Swap + d.Commission
}

type OpenRequest struct {
	Symbol    string
	Tag       string
	Direction market.Direction
	Volume    float64
	Price     float64
	Stop      float64
	TP        float64
	// Slippage is the accepted deviation from Price, in price units.
	Slippage float64
	Comment  string
}

// Deal close reasons.
const (
	ReasonClose   = "close"
	ReasonPartial = "partial"
	ReasonSL      = "sl"
	ReasonTP      = "tp"
)
