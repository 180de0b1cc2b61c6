package market

import "time"

// Quote is a top-of-book price for one symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Close returns the price a position in direction d would close at.
func (q Quote) Close(d Direction) float64 {
	if d == Short {
		return q.Ask
	}
	return q.Bid
}
