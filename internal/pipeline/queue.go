package pipeline

import "sync"

// Direction distinguishes the two event kinds the loop dispatches.
type Direction int

const (
	// DirInbound carries wire bytes injected toward the handler.
	DirInbound Direction = iota + 1
	// DirOutbound carries application bytes for the handler to frame.
	DirOutbound
)

// Event is one unit of work for the loop: a byte payload, the direction it
// travels, and the Pending that settles when the handler has accepted it.
type Event struct {
	Dir     Direction
	Data    []byte
	Seq     int64
	Pending *Pending
}

// eventQueue is a thread-safe FIFO queue for events.
//
// Unbounded, so producers (the mediation adapter's write path, strategy
// flush timers) never block. Thread-safety covers external enqueuing while
// the loop goroutine dequeues.
//
// A buffered signal channel (size 1) lets the loop wait without spinning;
// multiple signals coalesce.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue adds an event to the back of the queue.
// Safe from any goroutine. Returns false if the queue is closed.
func (q *eventQueue) enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// tryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) tryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the payload and Pending can be collected before
	// the backing array is reallocated.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// wait returns a channel that signals when events may be available.
func (q *eventQueue) wait() <-chan struct{} {
	return q.signal
}

// len returns the current queue length.
func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// isClosed reports whether close has been called.
func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// close marks the queue closed and wakes any blocked waiter.
// Events already queued are still drained and dispatched by the loop.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
