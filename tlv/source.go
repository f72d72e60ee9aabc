package tlv

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/ansel1/merry"
)

// ByteSource is the pull interface the Tokenizer reads from.
//
// Available reports how many bytes can be read without blocking.  CanSatisfy
// reports whether a read of n bytes should be attempted now: sources which may
// block report true, and then reads block until satisfied.  Reads which can't be
// satisfied fail with ErrUnexpectedEOD.  The function registered with OnConsume is
// called after every successful read with the number of bytes consumed.
type ByteSource interface {
	Available() int
	CanSatisfy(n int) bool
	ReadByte() (byte, error)
	ReadFull(p []byte) error
	OnConsume(fn func(n int))
}

// ChunkSource is a non-blocking ByteSource over an in-memory chunk of bytes, as
// handed over by a push-style producer.
type ChunkSource struct {
	b        []byte
	off      int
	consumed func(int)
}

func NewChunkSource(b []byte) *ChunkSource {
	return &ChunkSource{b: b}
}

// Reset makes c read from b, keeping the registered consume function.
func (c *ChunkSource) Reset(b []byte) {
	c.b = b
	c.off = 0
}

func (c *ChunkSource) Available() int {
	return len(c.b) - c.off
}

func (c *ChunkSource) CanSatisfy(n int) bool {
	return c.Available() >= n
}

func (c *ChunkSource) ReadByte() (byte, error) {
	if c.off >= len(c.b) {
		return 0, merry.Here(ErrUnexpectedEOD)
	}
	b := c.b[c.off]
	c.off++
	c.notify(1)
	return b, nil
}

func (c *ChunkSource) ReadFull(p []byte) error {
	if c.Available() < len(p) {
		return merry.Here(ErrUnexpectedEOD).Appendf("wanted %d bytes, %d available", len(p), c.Available())
	}
	n := copy(p, c.b[c.off:])
	c.off += n
	c.notify(n)
	return nil
}

func (c *ChunkSource) OnConsume(fn func(n int)) {
	c.consumed = fn
}

func (c *ChunkSource) notify(n int) {
	if c.consumed != nil {
		c.consumed(n)
	}
}

// StreamSource is a ByteSource over an io.Reader.  Reads go through a bufio.Reader.
//
// Available is the number of buffered bytes, plus what the underlying reader reports
// as readable if it has a Len(), Buffered() or Available() method.  In blocking mode
// CanSatisfy is always true, and reads block on the underlying reader until they are
// satisfied.  In non-blocking mode, CanSatisfy(n) is Available() >= n.
type StreamSource struct {
	r        io.Reader
	br       *bufio.Reader
	blocking bool
	eof      bool
	consumed func(int)
}

func NewStreamSource(r io.Reader, blocking bool) *StreamSource {
	return &StreamSource{
		r:        r,
		br:       bufio.NewReader(r),
		blocking: blocking,
	}
}

func (s *StreamSource) SetBlocking(blocking bool) {
	s.blocking = blocking
}

func (s *StreamSource) Blocking() bool {
	return s.blocking
}

func (s *StreamSource) Available() int {
	n := s.br.Buffered()
	switch r := s.r.(type) {
	case interface{ Len() int }:
		n += r.Len()
	case interface{ Buffered() int }:
		n += r.Buffered()
	case interface{ Available() int }:
		n += r.Available()
	}
	return n
}

func (s *StreamSource) CanSatisfy(n int) bool {
	return s.blocking || s.Available() >= n
}

func (s *StreamSource) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err != nil {
		return 0, s.readErr(err)
	}
	s.notify(1)
	return b, nil
}

func (s *StreamSource) ReadFull(p []byte) error {
	n, err := io.ReadFull(s.br, p)
	if n > 0 {
		s.notify(n)
	}
	if err != nil {
		return s.readErr(err)
	}
	return nil
}

func (s *StreamSource) OnConsume(fn func(n int)) {
	s.consumed = fn
}

// Wait blocks until at least one byte can be read.  It returns io.EOF if the
// underlying reader is exhausted.
func (s *StreamSource) Wait() error {
	_, err := s.br.Peek(1)
	if err == io.EOF {
		s.eof = true
	}
	return err
}

// Ended reports, without blocking, whether the underlying reader is known to be
// exhausted: a previous read hit io.EOF, the reader reports Ended() itself, or it
// is a bytes.Reader or strings.Reader with nothing left.
func (s *StreamSource) Ended() bool {
	if s.br.Buffered() > 0 {
		return false
	}
	if s.eof {
		return true
	}
	switch r := s.r.(type) {
	case interface{ Ended() bool }:
		return r.Ended()
	case *bytes.Reader:
		return r.Len() == 0
	case *strings.Reader:
		return r.Len() == 0
	}
	return false
}

func (s *StreamSource) readErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.eof = true
		return merry.Here(ErrUnexpectedEOD).WithCause(io.ErrUnexpectedEOF)
	}
	return merry.Wrap(err)
}

func (s *StreamSource) notify(n int) {
	if s.consumed != nil {
		s.consumed(n)
	}
}
