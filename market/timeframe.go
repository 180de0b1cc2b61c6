package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar period in the usual broker notation (M1, M5, H1, ...).
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

var timeframeSeconds = map[Timeframe]int64{
	M1:  60,
	M5:  300,
	M15: 900,
	M30: 1800,
	H1:  3600,
	H4:  14400,
	D1:  86400,
}

// ParseTimeframe accepts "M5", "m5", " H1 " and so on.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := timeframeSeconds[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe string: %s", s)
	}
	return tf, nil
}

// Duration returns the bar length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(timeframeSeconds[tf]) * time.Second
}

func (tf Timeframe) Valid() bool {
	_, ok := timeframeSeconds[tf]
	return ok
}

// BarOpen truncates t to the open time of the bar containing it.
func (tf Timeframe) BarOpen(t time.Time) time.Time {
	sec := timeframeSeconds[tf]
	if sec == 0 {
		return t
	}
	u := t.UTC().Unix()
	return time.Unix(u-u%sec, 0).UTC()
}

// Resample aggregates oldest-first candles into the larger timeframe.
// The last bucket is dropped unless it is complete, so every returned bar is closed.
func Resample(candles []Candle, from, to Timeframe) ([]Candle, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("resample: invalid timeframe %s -> %s", from, to)
	}
	if to.Duration() < from.Duration() || to.Duration()%from.Duration() != 0 {
		return nil, fmt.Errorf("resample: %s is not a multiple of %s", to, from)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	var out []Candle
	var cur Candle
	have := false
	for _, c := range candles {
		open := to.BarOpen(c.Time)
		if !have || !open.Equal(cur.Time) {
			if have {
				out = append(out, cur)
			}
			cur = Candle{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Time: open, Volume: c.Volume}
			have = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}

	last := candles[len(candles)-1]
	if !last.Time.Add(from.Duration()).Before(cur.Time.Add(to.Duration())) {
		out = append(out, cur)
	}
	return out, nil
}
