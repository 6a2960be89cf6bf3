package stream

import (
	"sync"
	"sync/atomic"
)

// SubscriberID identifies a subscription within a broker.
type SubscriberID uint64

// Subscriber receives the events matching its filter on C. Events that
// do not fit in the buffer are dropped and counted.
type Subscriber struct {
	ID     SubscriberID
	Filter WatchFilter
	C      <-chan ChangeEvent

	mu      sync.Mutex
	ch      chan ChangeEvent
	closed  bool
	dropped atomic.Uint64
}

func newSubscriber(id SubscriberID, f WatchFilter, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan ChangeEvent, bufferSize)
	return &Subscriber{ID: id, Filter: f, C: ch, ch: ch}
}

// send delivers ev without blocking. It reports false when ev was dropped.
func (s *Subscriber) send(ev ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Dropped returns the number of events lost to a full buffer.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}
