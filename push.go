package asn1stream

import (
	"sync"

	"github.com/ansel1/merry"
)

// PushSource is a stream written by a producer, rather than read by the Reader.
// A Reader created on a PushSource advances on the producer's goroutine: each Write
// parses the written bytes and delivers the events they complete before it
// returns, and Close delivers the end of stream.
//
// Bytes written before a Reader is attached are queued, and replayed when it is.
// A PushSource feeds a single Reader, and its OnEvent callback must not write to
// the source.
type PushSource struct {
	mu     sync.Mutex
	r      *Reader
	queued [][]byte
	closed bool
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

// Write pushes p to the attached Reader.  It returns the structural errors raised
// while the Reader advances over p, and ErrClosed once the source or the Reader is
// closed.
func (s *PushSource) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, merry.Here(ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.r == nil {
		s.queued = append(s.queued, append([]byte(nil), p...))
		return len(p), nil
	}
	if err := s.r.push(p); err != nil {
		if merry.Is(err, ErrClosed) {
			s.closed = true
		}
		return 0, err
	}
	return len(p), nil
}

func (s *PushSource) WriteByte(b byte) error {
	_, err := s.Write([]byte{b})
	return err
}

// Read always fails with ErrPushOnly.  It makes a PushSource an io.Reader, so it
// can be handed to NewReader, which advances it from Write rather than reading it.
func (s *PushSource) Read([]byte) (int, error) {
	return 0, merry.Here(ErrPushOnly)
}

// Close ends the stream.  The attached Reader, or the one attached later, emits
// its EventEOF once the bytes before it are parsed.
func (s *PushSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return merry.Here(ErrClosed)
	}
	s.closed = true
	if s.r != nil {
		s.r.pushEnd()
	}
	return nil
}

// attach connects r to s and replays the queued bytes.
func (s *PushSource) attach(r *Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r != nil {
		return merry.Here(ErrAlreadyAttached)
	}
	if s.closed && len(s.queued) == 0 {
		return merry.Here(ErrClosed).Append("push source closed before any write")
	}
	s.r = r

	queued := s.queued
	s.queued = nil
	for _, p := range queued {
		// the Reader keeps the error, and reports it when polled
		if err := r.push(p); err != nil {
			return nil
		}
	}
	if s.closed {
		r.pushEnd()
	}
	return nil
}
