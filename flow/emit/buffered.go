package emit

import "sync"

// BufferedEmitter collects events in memory. Useful for tests that
// assert on the emitted stream and for deferring delivery to a slow
// backend.
type BufferedEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferedEmitter creates an empty buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{}
}

// Emit appends the event to the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns a copy of everything emitted so far.
func (b *BufferedEmitter) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Drain returns the buffered events and clears the buffer.
func (b *BufferedEmitter) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// ByMsg filters buffered events by message kind.
func (b *BufferedEmitter) ByMsg(msg string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, ev := range b.events {
		if ev.Msg == msg {
			out = append(out, ev)
		}
	}
	return out
}
