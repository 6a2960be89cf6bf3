package stream

import "sync"

// ringBuffer keeps the most recent events for resume.
type ringBuffer struct {
	mu     sync.RWMutex
	events []ChangeEvent
	head   int
	size   int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultReplaySize
	}
	return &ringBuffer{events: make([]ChangeEvent, capacity)}
}

// push appends ev, overwriting the oldest event when full.
func (rb *ringBuffer) push(ev ChangeEvent) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := len(rb.events)
	rb.events[(rb.head+rb.size)%n] = ev
	if rb.size < n {
		rb.size++
	} else {
		rb.head = (rb.head + 1) % n
	}
}

// since returns the events with tokens above token. ok is false when
// events after token have already been overwritten.
func (rb *ringBuffer) since(token uint64) (events []ChangeEvent, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return nil, true
	}
	if oldest := rb.events[rb.head].Token; token+1 < oldest {
		return nil, false
	}
	for i := 0; i < rb.size; i++ {
		ev := rb.events[(rb.head+i)%len(rb.events)]
		if ev.Token > token {
			events = append(events, ev)
		}
	}
	return events, true
}

func (rb *ringBuffer) len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// minToken returns the oldest token held, or 0 when empty.
func (rb *ringBuffer) minToken() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return 0
	}
	return rb.events[rb.head].Token
}
