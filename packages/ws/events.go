package ws

import (
	"sync"
	"time"
)

// EventType identifies a lifecycle notification
type EventType string

const (
	EventConnected       EventType = "connected"
	EventMessageReceived EventType = "message_received"
	EventError           EventType = "error"
	EventClosed          EventType = "closed"
	EventReconnecting    EventType = "reconnecting"
	EventReconnectFailed EventType = "reconnect_failed"
)

// Event is a lifecycle notification. Fields not relevant to Type are zero.
type Event struct {
	Type    EventType
	State   State
	Message *Message
	Err     error
	Code    int
	Reason  string
	Attempt int
	Time    time.Time
}

// eventQueue decouples emitters from the consumer: push never blocks, and a
// single goroutine delivers events to out in push order. The goroutine
// starts with the first subscriber.
type eventQueue struct {
	mu      sync.Mutex
	items   []Event
	limit   int
	dropped int
	closed  bool
	started bool

	notify chan struct{}
	done   chan struct{}
	out    chan Event
}

func newEventQueue(limit int) *eventQueue {
	q := &eventQueue{
		limit:  limit,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
	}
	return q
}

// subscribe starts delivery once and returns the output channel
func (q *eventQueue) subscribe() <-chan Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		q.started = true
		if !q.closed {
			go q.run()
		}
	}
	return q.out
}

// push appends e. When limit is reached the oldest undelivered event is
// dropped.
func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}
		e := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- e:
		case <-q.done:
			return
		}
	}
}

// close stops delivery. Events not yet received are discarded.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
	if !q.started {
		q.started = true
		close(q.out)
	}
}

func (q *eventQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
