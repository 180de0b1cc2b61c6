package journal

import (
	"bytes"
	"encoding/json"
	"time"
)

// EventWriter is an io.Writer for zerolog output. Every JSON line that
// carries an "event" field is stored in the sink; other lines are dropped.
// Sink errors are swallowed so logging never fails a trading decision.
type EventWriter struct {
	Sink  EventSink
	RunID string
}

type eventLine struct {
	Time      string  `json:"time"`
	At        string  `json:"at"`
	Level     string  `json:"level"`
	Event     string  `json:"event"`
	Component string  `json:"component"`
	Ticket    *uint64 `json:"ticket"`
	RunID     string  `json:"run_id"`
}

func (w *EventWriter) Write(p []byte) (int, error) {
	line := bytes.TrimSpace(p)
	if len(line) == 0 || w.Sink == nil {
		return len(p), nil
	}

	var ev eventLine
	if err := json.Unmarshal(line, &ev); err != nil || ev.Event == "" {
		return len(p), nil
	}

	rec := EventRecord{
		RunID:     w.RunID,
		Level:     ev.Level,
		Event:     ev.Event,
		Component: ev.Component,
		Payload:   string(line),
	}
	if ev.RunID != "" {
		rec.RunID = ev.RunID
	}
	if ev.Ticket != nil {
		rec.Ticket = *ev.Ticket
	}
	// "at" is the market time of the decision; "time" is wall clock.
	stamp := ev.At
	if stamp == "" {
		stamp = ev.Time
	}
	if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
		rec.Time = t
	} else {
		rec.Time = time.Now().UTC()
	}

	_ = w.Sink.RecordEvent(rec)
	return len(p), nil
}
