package market

import "fmt"

// SymbolMeta is the broker metadata needed for sizing and stop validation.
// Point is the smallest quoted increment; TickValue is the account currency
// value of one TickSize move for one lot.
type SymbolMeta struct {
	Name            string  `json:"name" yaml:"name"`
	Digits          int     `json:"digits" yaml:"digits"`
	Point           float64 `json:"point" yaml:"point"`
	TickSize        float64 `json:"tick_size" yaml:"tick_size"`
	TickValue       float64 `json:"tick_value" yaml:"tick_value"`
	MinLot          float64 `json:"min_lot" yaml:"min_lot"`
	MaxLot          float64 `json:"max_lot" yaml:"max_lot"`
	LotStep         float64 `json:"lot_step" yaml:"lot_step"`
	MinStopDistance float64 `json:"min_stop_distance" yaml:"min_stop_distance"` // in points
}

// PipSize is ten points on 3/5 digit quotes and one point otherwise.
func (m SymbolMeta) PipSize() float64 {
	if m.Digits == 3 || m.Digits == 5 {
		return m.Point * 10
	}
	return m.Point
}

// ValuePerPrice is the account currency value of a 1.0 price move for one lot.
func (m SymbolMeta) ValuePerPrice() float64 {
	if m.TickSize <= 0 {
		return 0
	}
	return m.TickValue / m.TickSize
}

// MinStopPrice returns the broker minimum stop distance in price units.
func (m SymbolMeta) MinStopPrice() float64 {
	return m.MinStopDistance * m.Point
}

// Validate reports metadata that cannot be used for sizing.
func (m SymbolMeta) Validate() error {
	switch {
	case m.Point <= 0:
		return fmt.Errorf("symbol %s: point must be positive", m.Name)
	case m.TickSize <= 0:
		return fmt.Errorf("symbol %s: tick_size must be positive", m.Name)
	case m.TickValue <= 0:
		return fmt.Errorf("symbol %s: tick_value must be positive", m.Name)
	case m.LotStep <= 0:
		return fmt.Errorf("symbol %s: lot_step must be positive", m.Name)
	case m.MinLot <= 0 || m.MaxLot < m.MinLot:
		return fmt.Errorf("symbol %s: invalid lot bounds [%v, %v]", m.Name, m.MinLot, m.MaxLot)
	}
	return nil
}

// Symbols holds defaults for the instruments the engine has been run on.
var Symbols = map[string]SymbolMeta{
	"EURUSD": {
		Name:            "EURUSD",
		Digits:          5,
		Point:           0.00001,
		TickSize:        0.00001,
		TickValue:       1.0,
		MinLot:          0.01,
		MaxLot:          100,
		LotStep:         0.01,
		MinStopDistance: 10,
	},
	"XAUUSD": {
		Name:            "XAUUSD",
		Digits:          2,
		Point:           0.01,
		TickSize:        0.01,
		TickValue:       1.0,
		MinLot:          0.01,
		MaxLot:          50,
		LotStep:         0.01,
		MinStopDistance: 50,
	},
	"USDJPY": {
		Name:            "USDJPY",
		Digits:          3,
		Point:           0.001,
		TickSize:        0.001,
		TickValue:       0.67,
		MinLot:          0.01,
		MaxLot:          100,
		LotStep:         0.01,
		MinStopDistance: 10,
	},
}
