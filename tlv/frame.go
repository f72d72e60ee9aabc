package tlv

// step is the position of a frame in the TLV state machine.
type step int

const (
	stepTagBegin step = iota
	stepTagLong
	stepTagLength
	stepTagLengthLong
	stepContent
	stepContentFixed
	stepContentDone
)

func (s step) String() string {
	switch s {
	case stepTagBegin:
		return "TAG_BEGIN"
	case stepTagLong:
		return "TAG_LONG"
	case stepTagLength:
		return "TAG_LENGTH"
	case stepTagLengthLong:
		return "TAG_LENGTH_LONG"
	case stepContent:
		return "CONTENT"
	case stepContentFixed:
		return "CONTENT_FIXED_LENGTH"
	case stepContentDone:
		return "CONTENT_DONE"
	}
	return "UNKNOWN"
}

// frame is the decode state of one open TLV.  Frames live in the Tokenizer's
// stack; the parent of the frame at index i is the frame at index i-1.
type frame struct {
	depth int
	step  step

	class       Class
	constructed bool
	tag         uint64
	tagBytes    int // long form tag bytes read

	// length is the declared content length, or LengthIndefinite.
	length   int64
	lenBytes int // long form length bytes still to read

	// written counts the content bytes read for fixed length content.
	written int64
	// remaining counts the content bytes still owed to this frame.  It is -1 until
	// the length is known, and stays -1 for indefinite lengths.
	remaining int64
	// totalRead counts every byte consumed while this frame was open, its own
	// header included.
	totalRead int64

	// wrapper marks the transparent outer sequence in sequence-stripping mode.
	wrapper bool
	eoc     bool

	// buf accumulates the raw bytes of the TLV this frame will emit.  Frames nested
	// below the emitting frame write into the emitting frame's buf instead.
	buf []byte
}

func newFrame(depth int) frame {
	return frame{
		depth:     depth,
		length:    LengthIndefinite,
		remaining: -1,
	}
}

func (f *frame) indefinite() bool {
	return f.length == LengthIndefinite
}

// segmentedString reports whether f is a universal BIT STRING or OCTET STRING, which
// may carry an indefinite length even with the primitive bit clear.
func (f *frame) segmentedString() bool {
	return f.class == ClassUniversal && (f.tag == TagBitString || f.tag == TagOctetString)
}

// isEOC reports whether the length byte l completes an end-of-contents marker.
func (f *frame) isEOC(l byte) bool {
	return f.class == ClassUniversal && !f.constructed && f.tag == TagEndOfContents && l == 0
}

// consume charges n bytes to f.  It returns false if f has a definite length and
// fewer than n bytes remain in it.
func (f *frame) consume(n int64) bool {
	f.totalRead += n
	if f.remaining < 0 {
		return true
	}
	if n > f.remaining {
		f.remaining = 0
		return false
	}
	f.remaining -= n
	return true
}
