package gossip

import (
	"sync"
	"sync/atomic"

	"friendmap/internal/clock"
)

// Message is one replica's encoded state. Snapshot must not be modified
// after publishing; every subscriber shares the same bytes.
type Message struct {
	Origin   clock.ActorID
	Snapshot []byte
}

// Bus fans messages out to subscribers.
type Bus struct {
	mu         sync.Mutex
	capacity   int
	nextID     uint64
	subs       map[uint64]*Subscription
	publishers int
	closed     bool
}

// NewBus creates a bus where each subscriber buffers up to capacity messages.
// A capacity below 1 is raised to 1.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription),
	}
}

// Capacity returns the per-subscriber backlog size.
func (b *Bus) Capacity() int {
	return b.capacity
}

// Publisher returns a new publishing handle. The bus stays open until every
// handle is closed.
func (b *Bus) Publisher() *Publisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.publishers++
	}
	return &Publisher{bus: b}
}

// Subscribe registers a subscriber that sees messages published from now on.
// Subscribing to a closed bus returns an already closed subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription{ch: make(chan Message, b.capacity), bus: b}
	if b.closed {
		close(s.ch)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) publish(msg Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	for _, s := range b.subs {
		s.offer(msg)
	}
	return len(b.subs)
}

func (b *Bus) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.publishers--
	if b.publishers > 0 {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	close(s.ch)
}

// Publisher is a handle for sending on a bus.
type Publisher struct {
	bus    *Bus
	closed atomic.Bool
}

// Publish offers msg to every current subscriber and returns how many there
// were. It never blocks. Publishing on a closed handle or bus does nothing.
func (p *Publisher) Publish(msg Message) int {
	if p.closed.Load() {
		return 0
	}
	return p.bus.publish(msg)
}

// Close releases the handle. It is safe to call more than once.
func (p *Publisher) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.bus.release()
	}
}

// Subscription receives messages from a bus.
type Subscription struct {
	id     uint64
	ch     chan Message
	missed atomic.Uint64
	bus    *Bus
}

// C returns the receive channel. It is closed when the last publisher
// closes or the subscription is closed.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// TakeMissed returns how many messages were dropped for this subscriber
// since the last call, and resets the count.
func (s *Subscription) TakeMissed() uint64 {
	return s.missed.Swap(0)
}

// Close unsubscribes. Messages already buffered stay readable.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// offer enqueues msg, dropping the oldest buffered message if the backlog is
// full. Called with the bus lock held, so the receiver is the only other party.
func (s *Subscription) offer(msg Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}
	select {
	case <-s.ch:
		s.missed.Add(1)
	default:
	}
	select {
	case s.ch <- msg:
	default:
		s.missed.Add(1)
	}
}
