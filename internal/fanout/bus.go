// Package fanout distributes samples to several consumers without letting
// a slow consumer stall the producer.
package fanout

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("fanout: bus is closed")
	ErrSubscriberExists   = errors.New("fanout: subscriber already exists")
	ErrSubscriberNotFound = errors.New("fanout: subscriber not found")
	ErrNilChannel         = errors.New("fanout: nil channel provided")
)

// DropPolicy defines what happens when a subscriber cannot keep up.
type DropPolicy int

const (
	// DropNew discards the value being published when the channel is full.
	DropNew DropPolicy = iota
	// DropOld keeps only the latest value; the previous one is replaced.
	DropOld
)

// String returns the policy name.
func (p DropPolicy) String() string {
	if p == DropOld {
		return "drop_old"
	}
	return "drop_new"
}

// SubscriberStats tracks distribution to one subscriber.
type SubscriberStats struct {
	Policy  DropPolicy
	Sent    uint64
	Dropped uint64
}

// DropRate returns Dropped / (Sent + Dropped), 0 when nothing was published.
func (s SubscriberStats) DropRate() float64 {
	total := s.Sent + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total)
}

// BusStats aggregates every subscriber.
type BusStats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}

// DropRate returns the aggregate drop rate (0.0 to 1.0).
func (s BusStats) DropRate() float64 {
	total := s.TotalSent + s.TotalDropped
	if total == 0 {
		return 0
	}
	return float64(s.TotalDropped) / float64(total)
}

type subscriber[T any] struct {
	policy  DropPolicy
	sent    atomic.Uint64
	dropped atomic.Uint64
	ch      chan<- T
	latest  *Latest[T]
}

// Bus publishes values of type T to named subscribers. Publish never blocks.
type Bus[T any] struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber[T]
	published atomic.Uint64
	closed    bool
}

// New returns an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]*subscriber[T])}
}

// Subscribe registers ch with the DropNew policy. The bus never closes ch.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return ErrNilChannel
	}
	return b.add(id, &subscriber[T]{policy: DropNew, ch: ch})
}

// SubscribeLatest registers a DropOld subscriber and returns its receiver.
func (b *Bus[T]) SubscribeLatest(id string) (*Latest[T], error) {
	l := newLatest[T]()
	if err := b.add(id, &subscriber[T]{policy: DropOld, latest: l}); err != nil {
		return nil, err
	}
	return l, nil
}

func (b *Bus[T]) add(id string, s *subscriber[T]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; ok {
		return ErrSubscriberExists
	}
	b.subs[id] = s
	return nil
}

// Publish delivers v to every subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, s := range b.subs {
		switch s.policy {
		case DropNew:
			select {
			case s.ch <- v:
				s.sent.Add(1)
			default:
				s.dropped.Add(1)
			}
		case DropOld:
			if s.latest.set(v) {
				s.dropped.Add(1)
			}
			s.sent.Add(1)
		}
	}
}

// Unsubscribe removes a subscriber. A DropOld receiver is closed.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	if s.latest != nil {
		s.latest.Close()
	}
	delete(b.subs, id)
	return nil
}

// Subscribers returns the subscriber ids, sorted.
func (b *Bus[T]) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the counters of every subscriber.
func (b *Bus[T]) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := BusStats{
		TotalPublished: b.published.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subs)),
	}
	for id, s := range b.subs {
		ss := SubscriberStats{Policy: s.policy, Sent: s.sent.Load(), Dropped: s.dropped.Load()}
		st.Subscribers[id] = ss
		st.TotalSent += ss.Sent
		st.TotalDropped += ss.Dropped
	}
	return st
}

// Close removes every subscriber and rejects further calls. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		if s.latest != nil {
			s.latest.Close()
		}
	}
	b.subs = nil
}

// Latest holds the most recent value published to a DropOld subscriber.
type Latest[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	fresh  bool
	closed bool
}

func newLatest[T any]() *Latest[T] {
	l := &Latest[T]{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// set stores v and reports whether an unread value was overwritten.
func (l *Latest[T]) set(v T) (overwritten bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	overwritten = l.fresh
	l.value = v
	l.fresh = true
	l.cond.Broadcast()
	return overwritten
}

// Receive blocks until an unread value is available. It returns false
// once the receiver is closed.
func (l *Latest[T]) Receive() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.fresh && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		var zero T
		return zero, false
	}
	l.fresh = false
	return l.value, true
}

// TryReceive returns the unread value, if any, without blocking.
func (l *Latest[T]) TryReceive() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.fresh || l.closed {
		var zero T
		return zero, false
	}
	l.fresh = false
	return l.value, true
}

// Close wakes up blocked receivers.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.cond.Broadcast()
}
