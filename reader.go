package asn1stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream/tlv"
	"github.com/gemalto/flume"
	"go.uber.org/multierr"
)

type mode int

const (
	modePull mode = iota
	modePush
	modeBackground
)

func (m mode) String() string {
	switch m {
	case modePush:
		return "push"
	case modeBackground:
		return "background"
	}
	return "pull"
}

// Reader turns a stream of BER encoded values into tlv.Events.
//
// NewReader picks one of three delivery modes:
//
// 1. Push: reading from a PushSource, the Reader is advanced by the producer's
// writes, on the producer's goroutine.  Events go to Options.OnEvent before the
// write returns, or are queued for polling.
//
// 2. Background: with Options.OnEvent or Options.Background set, a goroutine reads
// the stream and advances the Reader.  Events go to OnEvent, or are queued for
// polling.
//
// 3. Pull: otherwise, the consumer advances the Reader with ReadEvent and
// ReadEventTimeout.
//
// Whatever the mode, the events of a stream end with exactly one EventEOF, unless
// the Reader is closed first or a structural error stops it.  The Err of an
// EventEOF is set if the stream ended in the middle of a value.  Readers in
// callback mode receive a final EventClose when closed.
type Reader struct {
	opts Options
	log  flume.Logger
	mode mode
	tk   *tlv.Tokenizer

	in    io.Reader
	chunk *tlv.ChunkSource
	src   *tlv.StreamSource

	// pump feeds src in pull mode when in can't report how much it holds
	pump     *QueueStream
	pumpDone chan struct{}

	// queue is nil in callback mode, and in pull mode
	queue *eventQueue

	// pullMu serializes the polls of a pull mode Reader, which advance the
	// tokenizer.
	pullMu  sync.Mutex
	pending []*tlv.Event

	stop chan struct{}
	done chan struct{}

	mu     sync.Mutex
	err    error
	ended  bool
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewReader returns a Reader decoding the stream r.  opts may be nil.
func NewReader(r io.Reader, opts *Options) (*Reader, error) {
	if r == nil {
		return nil, merry.New("nil reader")
	}
	o := opts.withDefaults()
	rd := &Reader{
		opts: o,
		in:   r,
		tk:   tlv.NewTokenizer(o.Decoder, o.StripSequence),
		stop: make(chan struct{}),
	}

	ps, isPush := r.(*PushSource)
	switch {
	case isPush:
		rd.mode = modePush
		rd.chunk = tlv.NewChunkSource(nil)
		if o.OnEvent == nil {
			rd.queue = newEventQueue(0)
		}
	case o.OnEvent != nil || o.Background:
		rd.mode = modeBackground
		rd.chunk = tlv.NewChunkSource(nil)
		if o.OnEvent == nil {
			rd.queue = newEventQueue(o.QueueSize)
		}
		rd.done = make(chan struct{})
	default:
		rd.mode = modePull
		if hasAvailability(r) {
			rd.src = tlv.NewStreamSource(r, false)
		} else {
			rd.pump = NewQueueStream()
			rd.pumpDone = make(chan struct{})
			rd.src = tlv.NewStreamSource(rd.pump, false)
		}
	}

	rd.log = o.Logger.With("mode", rd.mode.String())
	rd.log.Debug("reader created", "strip", o.StripSequence, "callback", o.OnEvent != nil)

	switch rd.mode {
	case modePush:
		if err := ps.attach(rd); err != nil {
			return nil, err
		}
	case modeBackground:
		go rd.run()
	case modePull:
		if rd.pump != nil {
			go rd.runPump()
		}
	}
	return rd, nil
}

// hasAvailability reports whether r tells how many bytes it holds.  Such readers
// are polled directly, so a blocking read on one can't be interrupted by Close.
func hasAvailability(r io.Reader) bool {
	switch r.(type) {
	case interface{ Len() int }, interface{ Buffered() int }, interface{ Available() int }:
		return true
	}
	return false
}

// ReadEvent returns the next event.  If nonBlocking is set, it returns (nil, nil)
// when no event can be produced from the bytes already available.  Otherwise it
// blocks until an event is available, or the stream ends.
//
// After the EventEOF has been returned, ReadEvent returns (nil, nil).  After a
// structural error, it returns the queued events, then the error.
func (r *Reader) ReadEvent(nonBlocking bool) (*tlv.Event, error) {
	if r.opts.OnEvent != nil {
		return nil, merry.Here(ErrCallbackMode)
	}
	if r.isClosed() {
		return nil, merry.Here(ErrClosed)
	}
	if r.mode == modePull {
		return r.pull(!nonBlocking)
	}
	if nonBlocking {
		return r.pollQueue()
	}
	return r.waitQueue(context.Background(), nil)
}

// ReadEventTimeout waits up to d for the next event.  It returns (nil, nil) when d
// elapses, and ErrWaitCancelled if ctx is done first.
//
// In pull mode the stream can't be waited on with a deadline, so ReadEventTimeout
// polls it every Options.PollInterval until d elapses.  Events may thus be
// observed up to one interval late.
func (r *Reader) ReadEventTimeout(ctx context.Context, d time.Duration) (*tlv.Event, error) {
	if r.opts.OnEvent != nil {
		return nil, merry.Here(ErrCallbackMode)
	}
	if d <= 0 {
		return r.ReadEvent(true)
	}
	if r.isClosed() {
		return nil, merry.Here(ErrClosed)
	}
	if r.mode == modePull {
		return r.pullTimeout(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	return r.waitQueue(ctx, timer.C)
}

// IsEndOfStream reports whether r has reached its end, either the end of the
// stream or a structural error, and every event has been consumed.
func (r *Reader) IsEndOfStream() bool {
	r.mu.Lock()
	terminal := r.ended || r.err != nil
	r.mu.Unlock()
	if !terminal {
		return false
	}
	n, err := r.Buffered()
	return err != nil || n == 0
}

// Buffered returns the number of events waiting to be polled.
func (r *Reader) Buffered() (int, error) {
	if r.opts.OnEvent != nil {
		return 0, merry.Here(ErrCallbackMode)
	}
	if r.mode == modePull {
		r.pullMu.Lock()
		defer r.pullMu.Unlock()
		return len(r.pending), nil
	}
	return r.queue.len(), nil
}

// Err returns the error which stopped r, if any.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops r.  A background goroutine is signaled, interrupted with a read
// deadline or by closing the stream, and waited for.  Then the stream is closed if
// it's an io.Closer, and a callback receives an EventClose.  A PushSource is not
// closed, but further writes to it fail with ErrClosed.  A stream which can be
// neither given a deadline nor closed can't be interrupted, and Close doesn't wait
// for a read in progress on it.
//
// Close is idempotent.  It must not be called from an OnEvent callback of a
// background Reader.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.stop)

		var err error
		var interrupted, closed bool
		switch r.mode {
		case modeBackground:
			interrupted, closed, err = r.interrupt()
			if interrupted {
				<-r.done
			}
		case modePull:
			if r.pump != nil {
				interrupted, closed, err = r.interrupt()
				_ = r.pump.Close()
				if interrupted {
					<-r.pumpDone
				}
			}
		case modePush:
			closed = true
		}
		if c, ok := r.in.(io.Closer); ok && !closed {
			err = multierr.Append(err, c.Close())
		}

		if r.queue != nil {
			r.queue.wake()
		}
		if r.opts.OnEvent != nil {
			r.opts.OnEvent(&tlv.Event{Type: tlv.EventClose})
		}
		r.log.Debug("reader closed")
		r.closeErr = err
	})
	return r.closeErr
}

// interrupt unblocks a goroutine reading from r.in.  It reports whether it could,
// and whether it closed r.in doing so.
func (r *Reader) interrupt() (interrupted, closed bool, err error) {
	if d, ok := r.in.(interface{ SetReadDeadline(time.Time) error }); ok {
		if d.SetReadDeadline(time.Now()) == nil {
			return true, false, nil
		}
	}
	if c, ok := r.in.(io.Closer); ok {
		return true, true, c.Close()
	}
	return false, false, nil
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reader) stopping() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// fail records the error which stops r.
func (r *Reader) fail(err error, report bool) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.log.Debug("stream error", "err", err)
	if r.queue != nil {
		r.queue.wake()
	}
	if report && r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

// eofEvent builds the end of stream event.  It must be called by the goroutine
// owning the tokenizer.
func (r *Reader) eofEvent() *tlv.Event {
	ev := &tlv.Event{Type: tlv.EventEOF}
	if !r.tk.Idle() {
		ev.Err = merry.Here(tlv.ErrUnexpectedEOD).Appendf("stream ended inside a value, %d levels deep", r.tk.Depth())
	}
	r.log.Debug("end of stream", "truncated", ev.Err != nil)
	return ev
}

func (r *Reader) logEvent(ev *tlv.Event) {
	if ev.Type == tlv.EventObject && ev.Err != nil {
		r.log.Debug("value decode failed", "err", ev.Err)
	}
}

// deliver hands events to the callback or the queue.  It returns false if r was
// closed before all were delivered.
func (r *Reader) deliver(evs []*tlv.Event) bool {
	for _, ev := range evs {
		if r.stopping() {
			return false
		}
		r.logEvent(ev)
		if r.opts.OnEvent != nil {
			r.opts.OnEvent(ev)
		} else if !r.queue.put(r.stop, ev) {
			return false
		}
		// ended is set after the EOF event is queued, so consumers seeing it
		// can find the event
		if ev.Type == tlv.EventEOF {
			r.mu.Lock()
			r.ended = true
			r.mu.Unlock()
		}
	}
	return true
}

// push advances r over a chunk written to its PushSource.
func (r *Reader) push(p []byte) error {
	if r.isClosed() {
		return merry.Here(ErrClosed)
	}
	if err := r.Err(); err != nil {
		return err
	}
	r.chunk.Reset(p)
	evs, err := r.tk.Advance(r.chunk)
	r.deliver(evs)
	if err != nil {
		r.fail(err, false)
		return err
	}
	return nil
}

// pushEnd ends the stream of a closed PushSource.
func (r *Reader) pushEnd() {
	if r.isClosed() || r.Err() != nil {
		return
	}
	r.deliver([]*tlv.Event{r.eofEvent()})
}

// run is the background goroutine.
func (r *Reader) run() {
	defer close(r.done)
	buf := make([]byte, r.opts.ReadBufferSize)
	for {
		n, err := r.in.Read(buf)
		if r.stopping() {
			return
		}
		if n > 0 {
			r.chunk.Reset(buf[:n])
			evs, aerr := r.tk.Advance(r.chunk)
			if !r.deliver(evs) {
				return
			}
			if aerr != nil {
				r.fail(aerr, true)
				return
			}
		}
		switch {
		case err == io.EOF:
			r.deliver([]*tlv.Event{r.eofEvent()})
			return
		case err != nil:
			r.fail(merry.Prepend(err, "reading stream"), true)
			return
		}
	}
}

// runPump copies r.in into r.pump, for pull mode readers over streams which can't
// be polled.
func (r *Reader) runPump() {
	defer close(r.pumpDone)
	buf := make([]byte, r.opts.ReadBufferSize)
	for {
		n, err := r.in.Read(buf)
		if n > 0 {
			r.pump.Offer(buf[:n])
		}
		switch {
		case err == io.EOF || r.stopping():
			_ = r.pump.Close()
			return
		case err != nil:
			_ = r.pump.CloseWithError(merry.Prepend(err, "reading stream"))
			return
		}
	}
}

func (r *Reader) pollQueue() (*tlv.Event, error) {
	if ev := r.queue.poll(); ev != nil {
		return ev, nil
	}
	return nil, r.Err()
}

// waitQueue waits for a queued event until deadline fires, ctx is done, or r
// reaches a terminal state.
func (r *Reader) waitQueue(ctx context.Context, deadline <-chan time.Time) (*tlv.Event, error) {
	for {
		// state is read before polling: terminal states are only entered after
		// the events preceding them are queued
		r.mu.Lock()
		err, ended, closed := r.err, r.ended, r.closed
		r.mu.Unlock()

		if ev := r.queue.poll(); ev != nil {
			return ev, nil
		}
		switch {
		case closed:
			return nil, merry.Here(ErrClosed)
		case err != nil:
			// pass the wakeup on to other waiters
			r.queue.wake()
			return nil, err
		case ended:
			r.queue.wake()
			return nil, nil
		}

		select {
		case <-r.queue.ready():
		case <-r.stop:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, merry.Here(ErrWaitCancelled).WithCause(ctx.Err())
		}
	}
}

// pull advances the tokenizer on the calling goroutine until it produces an event.
// Without block, it only consumes the bytes already available.
func (r *Reader) pull(block bool) (*tlv.Event, error) {
	r.pullMu.Lock()
	defer r.pullMu.Unlock()

	for {
		// a closed Reader reports ErrClosed, never the end of the stream
		if r.stopping() {
			return nil, merry.Here(ErrClosed)
		}
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending[0] = nil
			r.pending = r.pending[1:]
			return ev, nil
		}

		r.mu.Lock()
		err, ended := r.err, r.ended
		r.mu.Unlock()
		switch {
		case err != nil:
			return nil, err
		case ended:
			return nil, nil
		}

		evs, err := r.tk.Advance(r.src)
		for _, ev := range evs {
			r.logEvent(ev)
		}
		r.pending = append(r.pending, evs...)
		if err != nil {
			r.fail(err, false)
			continue
		}
		if len(r.pending) > 0 {
			continue
		}

		if r.src.Ended() {
			if r.stopping() {
				continue
			}
			// a stream closed with an error reports it on the next read
			if err := r.src.Wait(); err != nil && err != io.EOF {
				r.fail(merry.Wrap(err), false)
				continue
			}
			r.mu.Lock()
			r.ended = true
			r.mu.Unlock()
			return r.eofEvent(), nil
		}
		if !block {
			return nil, nil
		}
		if err := r.src.Wait(); err != nil && err != io.EOF {
			r.fail(merry.Wrap(err), false)
		}
	}
}

func (r *Reader) pullTimeout(ctx context.Context, d time.Duration) (*tlv.Event, error) {
	deadline := time.Now().Add(d)
	for {
		ev, err := r.ReadEvent(true)
		if ev != nil || err != nil {
			return ev, err
		}
		if r.IsEndOfStream() {
			return nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		sleep := r.opts.PollInterval
		if remaining < sleep {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-r.stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return nil, merry.Here(ErrWaitCancelled).WithCause(ctx.Err())
		}
	}
}
