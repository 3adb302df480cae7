package metrics

import (
	"errors"
	"testing"

	coremetrics "github.com/kilianp07/prognos/core/metrics"
)

type recordingSink struct {
	events []coremetrics.PredictionEvent
	err    error
}

func (s *recordingSink) RecordPrediction(ev coremetrics.PredictionEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func TestMultiSinkForwardsToAll(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)
	if err := m.RecordPrediction(coremetrics.PredictionEvent{Event: "EOD"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("forwarding: a=%d b=%d", len(a.events), len(b.events))
	}
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{err: boom}
	b := &recordingSink{}
	m := NewMultiSink(a, b)
	if err := m.RecordPrediction(coremetrics.PredictionEvent{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(b.events) != 0 {
		t.Fatalf("later sink reached after error")
	}
}
