package asn1stream

import (
	"sync"

	"github.com/gemalto/asn1stream/tlv"
)

// eventQueue hands events from the goroutine advancing a tokenizer to polling
// consumers.  A limit of 0 makes it unbounded.
type eventQueue struct {
	mu    sync.Mutex
	items []*tlv.Event
	limit int

	// notEmpty and notFull have a buffer of one; a pending signal means the
	// condition may have changed since the waiter last looked.
	notEmpty chan struct{}
	notFull  chan struct{}
}

func newEventQueue(limit int) *eventQueue {
	return &eventQueue{
		limit:    limit,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// put appends ev, blocking while the queue is full.  It returns false if stop
// is closed first.
func (q *eventQueue) put(stop <-chan struct{}, ev *tlv.Event) bool {
	for {
		q.mu.Lock()
		if q.limit <= 0 || len(q.items) < q.limit {
			q.items = append(q.items, ev)
			q.mu.Unlock()
			signal(q.notEmpty)
			return true
		}
		q.mu.Unlock()
		select {
		case <-q.notFull:
		case <-stop:
			return false
		}
	}
}

// poll removes and returns the oldest event, or nil.
func (q *eventQueue) poll() *tlv.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		signal(q.notEmpty)
	}
	signal(q.notFull)
	return ev
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ready is signaled when events may have been added.
func (q *eventQueue) ready() <-chan struct{} {
	return q.notEmpty
}

// wake signals waiters without adding an event, after a change of the reader state.
func (q *eventQueue) wake() {
	signal(q.notEmpty)
}
