package tlv

import (
	"github.com/ansel1/merry"
)

// readChunk caps how much fixed length content a single step reads from a blocking
// source, so huge declared lengths grow the buffer as the bytes arrive.
const readChunk = 32 << 10

// Tokenizer is an incremental BER/DER TLV parser.  It consumes bytes from a
// ByteSource in whatever amounts are available, keeps the state of every open TLV
// in a stack of frames, and emits an Event for every completed top-level value.
//
// A Tokenizer is not safe for concurrent use.  Only one goroutine may call Advance
// at a time.
type Tokenizer struct {
	decoder ValueDecoder
	strip   bool

	// frames is the stack of open TLVs, root first.
	frames []frame
	events []*Event

	// overrun is set when bytes are consumed past the end of a definite length.
	overrun error
}

// NewTokenizer returns a Tokenizer which hands each completed TLV to dec.  If dec is
// nil, objects are emitted with their raw bytes only.
//
// With stripSequence, an outermost constructed TLV is treated as transparent
// framing: it produces an EventBeginSequence when its header is complete, each of
// its children is emitted as an object, and an EventEndSequence closes it.
func NewTokenizer(dec ValueDecoder, stripSequence bool) *Tokenizer {
	return &Tokenizer{
		decoder: dec,
		strip:   stripSequence,
		frames:  make([]frame, 0, 8),
	}
}

func (t *Tokenizer) StripSequence() bool {
	return t.strip
}

// Depth returns the number of open frames.
func (t *Tokenizer) Depth() int {
	return len(t.frames)
}

// Idle reports whether t sits on a top-level TLV boundary, holding no partial TLV.
func (t *Tokenizer) Idle() bool {
	return len(t.frames) == 0 || (len(t.frames) == 1 && t.frames[0].step == stepTagBegin)
}

// Reset discards all parse state.
func (t *Tokenizer) Reset() {
	t.frames = t.frames[:0]
	t.events = nil
	t.overrun = nil
}

// Advance reads as many bytes as src has available and returns the events they
// completed, in order.  It never waits for bytes a non-blocking source doesn't have;
// calling it again when more bytes arrive resumes exactly where it stopped.
//
// If src may block (CanSatisfy is true without available bytes), Advance keeps
// reading while a TLV is in progress and no event has been produced yet.
//
// On a structural error, the events completed before the error are returned along
// with it, and the state of t is no longer meaningful.
func (t *Tokenizer) Advance(src ByteSource) ([]*Event, error) {
	t.events = nil
	if t.overrun != nil {
		return nil, t.overrun
	}
	src.OnConsume(t.consume)
	defer src.OnConsume(nil)

	for src.Available() > 0 || (len(t.events) == 0 && !t.Idle() && src.CanSatisfy(1)) {
		if len(t.frames) == 0 {
			t.frames = append(t.frames, newFrame(0))
		}
		mark := len(t.events)
		err := t.step(src)
		if t.overrun != nil {
			// nothing completed by the overrunning step is valid
			t.events = t.events[:mark]
			err = t.overrun
		}
		if err != nil {
			return t.flush(), err
		}
	}
	return t.flush(), nil
}

func (t *Tokenizer) flush() []*Event {
	events := t.events
	t.events = nil
	return events
}

// consume charges n bytes to the active frame and every ancestor.
func (t *Tokenizer) consume(n int) {
	for i := range t.frames {
		f := &t.frames[i]
		if !f.consume(int64(n)) && t.overrun == nil {
			t.overrun = merry.Here(ErrMalformedLength).Appendf("content overruns the %d byte length of %s", f.length, TagString(f.class, f.tag))
		}
	}
}

// step advances the active frame by one state transition.
func (t *Tokenizer) step(src ByteSource) error {
	i := len(t.frames) - 1
	f := &t.frames[i]

	switch f.step {
	case stepTagBegin:
		b, err := src.ReadByte()
		if err != nil {
			return err
		}
		t.appendRaw(i, b)
		f.class = Class(b >> 6)
		f.constructed = b&0x20 != 0
		f.tag = uint64(b & 0x1f)
		if f.tag == 0x1f {
			f.tag = 0
			f.step = stepTagLong
		} else {
			f.step = stepTagLength
		}

	case stepTagLong:
		for src.CanSatisfy(1) {
			b, err := src.ReadByte()
			if err != nil {
				return err
			}
			t.appendRaw(i, b)
			f.tagBytes++
			if f.tagBytes > maxTagBytes {
				return merry.Here(ErrMalformedTag).Appendf("tag number exceeds %d bytes", maxTagBytes)
			}
			f.tag = f.tag<<7 | uint64(b&0x7f)
			if b&0x80 == 0 {
				f.step = stepTagLength
				break
			}
		}

	case stepTagLength:
		b, err := src.ReadByte()
		if err != nil {
			return err
		}
		t.appendRaw(i, b)
		switch {
		case f.isEOC(b):
			f.eoc = true
			f.length = 0
			f.remaining = 0
			return t.close(i)
		case b&0x80 == 0:
			f.length = int64(b)
			return t.headerDone(i)
		case b == 0x80:
			f.length = LengthIndefinite
			return t.headerDone(i)
		default:
			n := int(b & 0x7f)
			if n > maxLengthBytes {
				return merry.Here(ErrMalformedLength).Appendf("length field of %d bytes, max is %d", n, maxLengthBytes)
			}
			f.length = 0
			f.lenBytes = n
			f.step = stepTagLengthLong
		}

	case stepTagLengthLong:
		for f.lenBytes > 0 && src.CanSatisfy(1) {
			b, err := src.ReadByte()
			if err != nil {
				return err
			}
			t.appendRaw(i, b)
			f.length = f.length<<8 | int64(b)
			f.lenBytes--
		}
		if f.lenBytes == 0 {
			return t.headerDone(i)
		}

	case stepContent:
		if len(t.frames) > maxNesting {
			return merry.Here(ErrMalformedLength).Appendf("more than %d nested indefinite lengths", maxNesting)
		}
		t.frames = append(t.frames, newFrame(f.depth+1))

	case stepContentFixed:
		want := f.length - f.written
		if !src.CanSatisfy(int(want)) {
			if avail := int64(src.Available()); avail < want {
				want = avail
			}
		}
		if want > readChunk {
			want = readChunk
		}
		if want > 0 {
			if err := t.readRaw(i, src, int(want)); err != nil {
				return err
			}
			f.written += want
		}
		if f.written == f.length {
			return t.close(i)
		}

	case stepContentDone:
		return t.close(i)
	}
	return nil
}

// headerDone picks the content step of frame i once its length is known.
func (t *Tokenizer) headerDone(i int) error {
	f := &t.frames[i]

	if f.indefinite() {
		if !f.constructed && !f.segmentedString() {
			return merry.Here(ErrMalformedLength).Appendf("indefinite length on primitive %s", TagString(f.class, f.tag))
		}
		f.step = stepContent
	} else {
		f.remaining = f.length
		f.step = stepContentFixed
		if i > 0 {
			if p := &t.frames[i-1]; !p.indefinite() && f.length > p.remaining {
				return merry.Here(ErrMalformedLength).Appendf("length %d exceeds the %d bytes left in the enclosing TLV", f.length, p.remaining)
			}
		}
	}

	if i == 0 && t.strip && f.constructed {
		f.wrapper = true
		f.step = stepContent
		t.emitBegin(f)
	}

	if f.length == 0 {
		return t.close(i)
	}
	return nil
}

// close finishes frame i, which must be the active frame: emits it if it is an
// emitting frame, pops it, and closes enclosing frames it completes.
func (t *Tokenizer) close(i int) error {
	f := &t.frames[i]
	f.step = stepContentDone

	if t.emits(i) && !f.eoc {
		t.emitObject(f.buf)
	}

	closed := *f
	t.frames = t.frames[:i]

	if closed.wrapper {
		t.emitEnd(&closed)
		return nil
	}

	if i == 0 {
		return nil
	}
	p := &t.frames[i-1]

	if closed.eoc {
		if !p.indefinite() {
			return merry.Here(ErrMalformedLength).Append("end-of-contents inside definite length content")
		}
		return t.close(i - 1)
	}

	// a definite length frame completes with its last content byte
	if p.step == stepContent && !p.indefinite() && p.remaining == 0 {
		return t.close(i - 1)
	}
	return nil
}

// emits reports whether frame i is decoded and emitted as an object when it closes.
func (t *Tokenizer) emits(i int) bool {
	switch t.frames[i].depth {
	case 0:
		return !t.frames[i].wrapper
	case 1:
		return t.frames[0].wrapper
	}
	return false
}

// owner returns the index of the frame whose buffer receives the raw bytes read
// by frame i.
func (t *Tokenizer) owner(i int) int {
	for ; i > 0; i-- {
		if t.emits(i) {
			return i
		}
	}
	return 0
}

func (t *Tokenizer) appendRaw(i int, b byte) {
	o := t.owner(i)
	t.frames[o].buf = append(t.frames[o].buf, b)
}

func (t *Tokenizer) readRaw(i int, src ByteSource, n int) error {
	o := t.owner(i)
	buf := t.frames[o].buf
	l := len(buf)
	buf = append(buf, make([]byte, n)...)
	if err := src.ReadFull(buf[l:]); err != nil {
		return err
	}
	t.frames[o].buf = buf
	return nil
}

func (t *Tokenizer) emitObject(raw []byte) {
	ev := &Event{
		Type: EventObject,
		Raw:  TLV(raw),
	}
	if t.decoder != nil {
		v, err := t.decoder.DecodeValue(ev.Raw)
		if err != nil {
			ev.Err = merry.Here(ErrDecodeFailure).WithCause(err)
		} else {
			ev.Value = v
		}
	}
	t.events = append(t.events, ev)
}

func (t *Tokenizer) emitBegin(f *frame) {
	m := &SequenceMarker{Indefinite: f.indefinite()}
	if !f.indefinite() {
		// only header bytes have been read under f so far
		m.TotalLength = uint64(f.totalRead + f.length)
	}
	t.events = append(t.events, &Event{
		Type:     EventBeginSequence,
		Raw:      TLV(append([]byte(nil), f.buf...)),
		Sequence: m,
	})
}

func (t *Tokenizer) emitEnd(f *frame) {
	ev := &Event{
		Type: EventEndSequence,
		Sequence: &SequenceMarker{
			Indefinite:  f.indefinite(),
			TotalLength: uint64(f.totalRead),
		},
	}
	if f.indefinite() {
		ev.Raw = TLV{0x00, 0x00}
	}
	t.events = append(t.events, ev)
}
