package observability

import "sync"

// Flusher is implemented by observers that buffer events and need an
// explicit drain point (e.g. before process exit).
type Flusher interface {
	Flush()
}

// MultiObserver fans every event and counter out to a held list of
// observers, so multiple sinks (structured logs, a metrics registry, a
// test recorder) can all be installed as the single process-wide Observer
// at once.
type MultiObserver struct {
	mu        sync.Mutex
	observers []Observer
}

// NewMultiObserver builds a MultiObserver wrapping the given observers in
// order. Nil observers are dropped.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, o := range observers {
		m.Add(o)
	}
	return m
}

// Add appends an observer to the fan-out list. A nil observer is ignored.
func (m *MultiObserver) Add(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *MultiObserver) snapshot() []Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Observer, len(m.observers))
	copy(out, m.observers)
	return out
}

// RecordEvent forwards e to every held observer.
func (m *MultiObserver) RecordEvent(e Event) {
	for _, o := range m.snapshot() {
		o.RecordEvent(e)
	}
}

// IncrementCounter forwards the increment to every held observer.
func (m *MultiObserver) IncrementCounter(name string, value float64, labels map[string]string) {
	for _, o := range m.snapshot() {
		o.IncrementCounter(name, value, labels)
	}
}

// Flush calls Flush on every held observer that implements Flusher.
func (m *MultiObserver) Flush() {
	for _, o := range m.snapshot() {
		if f, ok := o.(Flusher); ok {
			f.Flush()
		}
	}
}
