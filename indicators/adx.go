package indicators

import (
	"fmt"

	"github.com/rustyeddy/fxengine/market"
)

// ADX implements Wilder's Average Directional Index (trend strength).
// Usage:
//
//	adx := indicators.NewADX(14)
//	adx.Update(candle)
//	if adx.Ready() && adx.Value() >= 20 { ... }
type ADX struct {
	Period int

	prev     market.Candle
	havePrev bool

	// running sums during the first Period bars, Wilder-smoothed afterwards
	tr  float64
	pdm float64
	mdm float64
	dmN int

	adx   float64
	dxSum float64
	dxN   int
	ready bool
}

func NewADX(period int) *ADX {
	return &ADX{Period: period}
}

func (a *ADX) Name() string {
	return fmt.Sprintf("ADX(%d)", a.Period)
}

// Warmup is the seed candle plus Period bars for the smoothed TR/+DM/-DM,
// then Period-1 more bars until Period DX values seed the ADX.
func (a *ADX) Warmup() int {
	return 2 * a.Period
}

func (a *ADX) Reset() {
	*a = ADX{Period: a.Period}
}

func (a *ADX) Value() float64 {
	if !a.ready {
		return 0
	}
	return a.adx
}

func (a *ADX) Ready() bool {
	return a.ready
}

// PlusDI and MinusDI return the current directional indicators.
func (a *ADX) PlusDI() float64 {
	if a.tr == 0 {
		return 0
	}
	return 100 * a.pdm / a.tr
}

func (a *ADX) MinusDI() float64 {
	if a.tr == 0 {
		return 0
	}
	return 100 * a.mdm / a.tr
}

func (a *ADX) Update(c market.Candle) {
	if !a.havePrev {
		a.prev = c
		a.havePrev = true
		return
	}
	if a.Period <= 0 {
		return
	}

	up := c.High - a.prev.High
	down := a.prev.Low - c.Low
	pdm, mdm := 0.0, 0.0
	if up > down && up > 0 {
		pdm = up
	}
	if down > up && down > 0 {
		mdm = down
	}
	tr := trueRange(c, a.prev)
	a.prev = c

	p := float64(a.Period)
	if a.dmN < a.Period {
		a.tr += tr
		a.pdm += pdm
		a.mdm += mdm
		a.dmN++
		if a.dmN < a.Period {
			return
		}
	} else {
		a.tr = a.tr - a.tr/p + tr
		a.pdm = a.pdm - a.pdm/p + pdm
		a.mdm = a.mdm - a.mdm/p + mdm
	}

	dx := a.dx()
	if a.dxN < a.Period {
		a.dxSum += dx
		a.dxN++
		if a.dxN == a.Period {
			a.adx = a.dxSum / p
			a.ready = true
		}
		return
	}
	a.adx = (a.adx*(p-1) + dx) / p
}

func (a *ADX) dx() float64 {
	pdi, mdi := a.PlusDI(), a.MinusDI()
	if pdi+mdi == 0 {
		return 0
	}
	return 100 * abs(pdi-mdi) / (pdi + mdi)
}
