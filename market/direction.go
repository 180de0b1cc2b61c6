package market

// Direction of a position or signal: +1 long, -1 short.
type Direction int8

const (
	Flat  Direction = 0
	Long  Direction = +1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Sign returns +1 for long and -1 for short, as a float for price math.
func (d Direction) Sign() float64 {
	return float64(d)
}

func (d Direction) Opposite() Direction {
	return -d
}

// Index maps a direction onto a two slot array (long=0, short=1).
func (d Direction) Index() int {
	if d == Short {
		return 1
	}
	return 0
}

// Directions lists the tradable directions in a stable order.
var Directions = [2]Direction{Long, Short}
