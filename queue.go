package asn1stream

import (
	"io"
	"sync"

	"github.com/ansel1/merry"
)

// QueueStream is an in-memory byte pipe.  Producers queue chunks with Offer or
// Write without blocking, and Read blocks until bytes are queued or the stream is
// closed.  Len reports the queued bytes, so a Reader in pull mode can poll a
// QueueStream without blocking.
//
// A QueueStream is safe for concurrent use.
type QueueStream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	n      int
	closed bool
	err    error
}

func NewQueueStream() *QueueStream {
	q := &QueueStream{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Offer queues a copy of p.  It returns false if q is closed.
func (q *QueueStream) Offer(p []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(p) == 0 {
		return true
	}
	q.chunks = append(q.chunks, append([]byte(nil), p...))
	q.n += len(p)
	q.cond.Broadcast()
	return true
}

// Write queues a copy of p.  It fails with ErrClosed if q is closed.
func (q *QueueStream) Write(p []byte) (int, error) {
	if !q.Offer(p) {
		return 0, merry.Here(ErrClosed)
	}
	return len(p), nil
}

// Read blocks until at least one byte is queued, or q is closed.  After Close,
// Read drains the queued bytes, then returns io.EOF, or the error passed to
// CloseWithError.
func (q *QueueStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.n == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.n == 0 {
		return 0, q.err
	}
	var n int
	for n < len(p) && len(q.chunks) > 0 {
		c := copy(p[n:], q.chunks[0])
		n += c
		if c == len(q.chunks[0]) {
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
		} else {
			q.chunks[0] = q.chunks[0][c:]
		}
	}
	q.n -= n
	return n, nil
}

// Len returns the number of queued bytes.
func (q *QueueStream) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Available is an alias for Len.
func (q *QueueStream) Available() int {
	return q.Len()
}

func (q *QueueStream) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Ended reports whether q is closed and drained.
func (q *QueueStream) Ended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.n == 0
}

func (q *QueueStream) Close() error {
	return q.CloseWithError(nil)
}

// CloseWithError closes q.  Once the queued bytes are drained, Read returns err,
// or io.EOF if err is nil.  Closing a closed QueueStream is a no-op.
func (q *QueueStream) CloseWithError(err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	q.closed = true
	q.err = err
	q.cond.Broadcast()
	return nil
}
