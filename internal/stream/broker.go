package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

const (
	// DefaultBufferSize is the channel capacity of a subscriber.
	DefaultBufferSize = 256
	// DefaultReplaySize is the number of events kept for resume.
	DefaultReplaySize = 4096
)

var (
	ErrTokenTooOld  = errors.New("stream: resume token too old")
	ErrBrokerClosed = errors.New("stream: broker is closed")
)

// Options configures a Broker.
type Options struct {
	// Evaluator matches subscriber filters against event entries.
	Evaluator  *filter.Evaluator
	BufferSize int
	ReplaySize int
}

// Broker fans committed changes out to subscribers.
type Broker struct {
	eval       *filter.Evaluator
	bufferSize int

	// mu orders Publish against SubscribeSince so that a resumed
	// subscriber neither misses nor repeats an event.
	mu          sync.Mutex
	subscribers *xsync.MapOf[SubscriberID, *Subscriber]
	replay      *ringBuffer
	nextID      atomic.Uint64
	token       atomic.Uint64
	closed      atomic.Bool
}

// NewBroker creates a broker.
func NewBroker(opts Options) *Broker {
	return &Broker{
		eval:        opts.Evaluator,
		bufferSize:  opts.BufferSize,
		subscribers: xsync.NewMapOf[SubscriberID, *Subscriber](),
		replay:      newRingBuffer(opts.ReplaySize),
	}
}

// Subscribe registers a subscriber for the events published from now on.
func (b *Broker) Subscribe(f WatchFilter) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribe(f)
}

// SubscribeSince registers a subscriber and first delivers the buffered
// events after token that match f.
func (b *Broker) SubscribeSince(f WatchFilter, token uint64) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	events, ok := b.replay.since(token)
	if !ok {
		return nil, ErrTokenTooOld
	}
	sub, err := b.subscribe(f)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if sub.Filter.Matches(&events[i], b.eval) {
			sub.send(events[i])
		}
	}
	return sub, nil
}

func (b *Broker) subscribe(f WatchFilter) (*Subscriber, error) {
	if b.closed.Load() {
		return nil, ErrBrokerClosed
	}
	f, err := f.normalize()
	if err != nil {
		return nil, err
	}
	sub := newSubscriber(SubscriberID(b.nextID.Add(1)), f, b.bufferSize)
	b.subscribers.Store(sub.ID, sub)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id SubscriberID) {
	if sub, ok := b.subscribers.LoadAndDelete(id); ok {
		sub.close()
	}
}

// Publish stamps ev with the next token and the current time, keeps it
// for resume and delivers it to every matching subscriber.
func (b *Broker) Publish(ev ChangeEvent) {
	if b.closed.Load() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ev.Token = b.token.Add(1)
	ev.Time = time.Now()
	b.replay.push(ev)
	b.subscribers.Range(func(_ SubscriberID, sub *Subscriber) bool {
		if sub.Filter.Matches(&ev, b.eval) {
			sub.send(ev)
		}
		return true
	})
}

// Token returns the token of the last published event.
func (b *Broker) Token() uint64 {
	return b.token.Load()
}

// Stats reports the broker state.
func (b *Broker) Stats() Stats {
	return Stats{
		Subscribers: b.subscribers.Size(),
		Token:       b.token.Load(),
		Buffered:    b.replay.len(),
		MinToken:    b.replay.minToken(),
	}
}

// Stats is a snapshot of broker counters.
type Stats struct {
	Subscribers int
	Token       uint64
	Buffered    int
	MinToken    uint64
}

// Close closes every subscriber. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.subscribers.Range(func(id SubscriberID, sub *Subscriber) bool {
		sub.close()
		b.subscribers.Delete(id)
		return true
	})
}
