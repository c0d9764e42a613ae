// Package broadcast fans a session's ordered event stream out to many
// subscribers without letting a slow consumer stall the publisher.
package broadcast

import (
	"sync"
	"time"

	"quiz-arena/internal/domain"
)

// DefaultBuffer is the per-subscriber catch-up buffer size.
const DefaultBuffer = 32

// Channel is one session's logical event stream. Every published event gets
// a strictly increasing sequence number, and all subscribers observe events
// in that order.
type Channel struct {
	sessionID string
	now       func() time.Time

	mu     sync.Mutex
	seq    uint64
	closed bool
	subs   map[*Subscriber]struct{}
}

// Subscriber drains events from its buffered channel. If it falls further
// behind than the buffer, the pending backlog is replaced by a single resync
// marker telling it to fetch a fresh snapshot.
type Subscriber struct {
	ch     chan domain.Event
	closed bool
}

// Events returns the subscriber's ordered event stream.
func (s *Subscriber) Events() <-chan domain.Event {
	return s.ch
}

// NewChannel creates the stream for one session.
func NewChannel(sessionID string, now func() time.Time) *Channel {
	return &Channel{
		sessionID: sessionID,
		now:       now,
		subs:      make(map[*Subscriber]struct{}),
	}
}

// Seq returns the sequence number of the most recent event.
func (c *Channel) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Publish appends an event to the stream and delivers it to every
// subscriber without blocking.
func (c *Channel) Publish(typ domain.EventType, payload any) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.Event{}
	}

	c.seq++
	ev := domain.Event{
		Seq:       c.seq,
		SessionID: c.sessionID,
		Type:      typ,
		At:        c.now(),
		Payload:   payload,
	}
	for sub := range c.subs {
		c.deliverLocked(sub, ev)
	}
	return ev
}

// deliverLocked enqueues ev for one subscriber. On overflow the backlog is
// discarded and replaced with a resync marker: replaying unbounded history
// to a lagging consumer is never worth blocking the session for.
func (c *Channel) deliverLocked(sub *Subscriber, ev domain.Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	for {
		select {
		case <-sub.ch:
		default:
			sub.ch <- domain.Event{
				Seq:       ev.Seq,
				SessionID: c.sessionID,
				Type:      domain.EventResync,
				At:        ev.At,
			}
			return
		}
	}
}

// Subscribe registers a consumer. The first event it receives is a snapshot
// of the session's current state stamped with the current sequence number,
// so late joiners never observe a gap before live events.
func (c *Channel) Subscribe(buffer int, snap domain.Snapshot) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscriber{ch: make(chan domain.Event, buffer)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	snap.Seq = c.seq
	sub.ch <- domain.Event{
		Seq:       c.seq,
		SessionID: c.sessionID,
		Type:      domain.EventSnapshot,
		At:        c.now(),
		Payload:   snap,
	}
	c.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches a consumer and closes its stream. Safe to call twice.
func (c *Channel) Unsubscribe(sub *Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sub]; !ok {
		return
	}
	delete(c.subs, sub)
	if !sub.closed {
		close(sub.ch)
		sub.closed = true
	}
}

// Close ends the stream for every subscriber.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		delete(c.subs, sub)
		if !sub.closed {
			close(sub.ch)
			sub.closed = true
		}
	}
}
