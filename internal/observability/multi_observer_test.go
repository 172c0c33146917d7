package observability

import "testing"

type flushRecordingObserver struct {
	recordingObserver
	flushed bool
}

func (f *flushRecordingObserver) Flush() { f.flushed = true }

func TestMultiObserverFansOutEvents(t *testing.T) {
	a := newRecordingObserver()
	b := newRecordingObserver()
	m := NewMultiObserver(a, b)

	m.RecordEvent(Event{Name: "agent.start"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both observers to receive the event, got %d and %d", len(a.events), len(b.events))
	}
}

func TestMultiObserverFansOutCounters(t *testing.T) {
	a := newRecordingObserver()
	b := newRecordingObserver()
	m := NewMultiObserver(a, b)

	m.IncrementCounter("tool_calls", 2, nil)

	if a.counters["tool_calls"] != 2 || b.counters["tool_calls"] != 2 {
		t.Fatalf("expected both observers to receive the increment, got %v and %v", a.counters, b.counters)
	}
}

func TestMultiObserverIgnoresNilObserver(t *testing.T) {
	m := NewMultiObserver(nil)
	m.RecordEvent(Event{Name: "x"})
}

func TestMultiObserverAddAppendsObserver(t *testing.T) {
	a := newRecordingObserver()
	m := NewMultiObserver()
	m.Add(a)

	m.RecordEvent(Event{Name: "x"})

	if len(a.events) != 1 {
		t.Fatalf("expected observer added via Add to receive the event")
	}
}

func TestMultiObserverFlushesFlushableObservers(t *testing.T) {
	f := &flushRecordingObserver{recordingObserver: *newRecordingObserver()}
	m := NewMultiObserver(f)

	m.Flush()

	if !f.flushed {
		t.Fatalf("expected Flush to reach the nested observer")
	}
}
