package backtest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/fxengine/market"
)

// BarFeed yields closed bars oldest first. Implementations should be
// deterministic and return (ok=false, err=nil) at EOF.
type BarFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// Dukascopy exports stamp bars in EST without daylight saving.
var estNoDST = time.FixedZone("EST", -5*60*60)

const dukascopyLayout = "20060102 150405"

// FeedStats counts what the feed skipped and the holes it saw.
type FeedStats struct {
	Bars           int
	Duplicates     int
	OutOfOrder     int
	BadRows        int
	Gaps           int
	WeekendGaps    int
	SuspiciousGaps int
	LongestGap     time.Duration
}

// CSVBarFeed reads bar CSV in either layout:
//
//	time,open,high,low,close[,volume]        time RFC3339, comma separated
//	20060102 150405;open;high;low;close;vol  Dukascopy export, EST
//
// The delimiter is sniffed from the first line. A header row is allowed,
// short or unparsable rows are counted and skipped, and duplicate or
// out-of-order bars are dropped (keep-first). Bars are filtered to
// [from, to) when those are set.
type CSVBarFeed struct {
	f    *os.File
	r    *csv.Reader
	tf   market.Timeframe
	from time.Time
	to   time.Time

	dukascopy bool
	sawFirst  bool
	prev      time.Time
	stats     FeedStats
}

func NewCSVBarFeed(path string, tf market.Timeframe, from, to time.Time) (*CSVBarFeed, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("backtest: invalid timeframe %q", tf)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	feed := &CSVBarFeed{f: f, r: r, tf: tf, from: from, to: to}
	if bytes.IndexByte(head, ';') >= 0 {
		r.Comma = ';'
		feed.dukascopy = true
	}
	return feed, nil
}

func (f *CSVBarFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

// Stats reports the counters so far.
func (f *CSVBarFeed) Stats() FeedStats { return f.stats }

func (f *CSVBarFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, ok := f.parseRow(row)
		if !ok {
			f.stats.BadRows++
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		if !f.prev.IsZero() {
			switch {
			case c.Time.Equal(f.prev):
				f.stats.Duplicates++
				continue
			case c.Time.Before(f.prev):
				f.stats.OutOfOrder++
				continue
			}
			f.noteGap(f.prev, c.Time)
		}
		f.prev = c.Time
		f.stats.Bars++
		return c, true, nil
	}
}

func (f *CSVBarFeed) parseRow(row []string) (market.Candle, bool) {
	if len(row) < 5 {
		return market.Candle{}, false
	}
	t, err := f.parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Candle{}, false
	}

	var px [4]float64
	for i := range px {
		if px[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64); err != nil {
			return market.Candle{}, false
		}
	}
	c := market.Candle{Time: f.tf.BarOpen(t), Open: px[0], High: px[1], Low: px[2], Close: px[3]}
	if len(row) > 5 {
		c.Volume, _ = strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
	}
	if c.High < c.Low || c.High < max(c.Open, c.Close) || c.Low > min(c.Open, c.Close) {
		return market.Candle{}, false
	}
	return c, true
}

func (f *CSVBarFeed) parseTime(s string) (time.Time, error) {
	if f.dukascopy {
		t, err := time.ParseInLocation(dukascopyLayout, s, estNoDST)
		return t.UTC(), err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t.UTC(), err
}

// noteGap classifies the hole between two consecutive bars. A day or more
// starting Friday through Sunday is the weekend; anything else of ten
// minutes or longer is suspicious.
func (f *CSVBarFeed) noteGap(prev, next time.Time) {
	missing := next.Sub(prev) - f.tf.Duration()
	if missing <= 0 {
		return
	}
	f.stats.Gaps++
	if missing > f.stats.LongestGap {
		f.stats.LongestGap = missing
	}
	start := prev.Add(f.tf.Duration())
	switch wd := start.Weekday(); {
	case missing >= 24*time.Hour && (wd == time.Friday || wd == time.Saturday || wd == time.Sunday):
		f.stats.WeekendGaps++
	case missing >= 10*time.Minute:
		f.stats.SuspiciousGaps++
	}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays bars held in memory.
type SliceFeed struct {
	Bars []market.Candle
	i    int
}

func (s *SliceFeed) Next() (market.Candle, bool, error) {
	if s.i >= len(s.Bars) {
		return market.Candle{}, false, nil
	}
	c := s.Bars[s.i]
	s.i++
	return c, true, nil
}

func (s *SliceFeed) Close() error { return nil }
