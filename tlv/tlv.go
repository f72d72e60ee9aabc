package tlv

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ansel1/merry"
)

// LengthIndefinite is the Length of a Header using the indefinite length form.  The
// content of such a TLV is terminated by an end-of-contents marker.
const LengthIndefinite = -1

// maxLengthBytes is the largest number of long form length bytes accepted.  Longer
// length fields would describe values beyond 2^48 bytes.
const maxLengthBytes = 6

// maxTagBytes bounds long form tag numbers to 63 bits.
const maxTagBytes = 9

// Header is the identifier and length octets of a TLV.
type Header struct {
	Class       Class
	Constructed bool
	Tag         uint64
	// Length is the content length, or LengthIndefinite.
	Length int
	// HeaderLen is the number of bytes the identifier and length octets occupy.
	HeaderLen int
}

// IsEOC reports whether h is an end-of-contents marker.
func (h Header) IsEOC() bool {
	return h.Class == ClassUniversal && h.Tag == TagEndOfContents && !h.Constructed && h.Length == 0
}

func (h Header) String() string {
	if h.IsEOC() {
		return "EndOfContents"
	}
	s := TagString(h.Class, h.Tag)
	if h.Constructed {
		s += "/c"
	} else {
		s += "/p"
	}
	if h.Length == LengthIndefinite {
		return s + ":indefinite"
	}
	return s + fmt.Sprintf(":%d", h.Length)
}

// ParseHeader parses the identifier and length octets at the start of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < 1 {
		return h, merry.Here(ErrHeaderTruncated)
	}
	first := b[0]
	h.Class = Class(first >> 6)
	h.Constructed = first&0x20 != 0
	h.Tag = uint64(first & 0x1f)
	pos := 1
	if h.Tag == 0x1f {
		h.Tag = 0
		for {
			if pos >= len(b) {
				return h, merry.Here(ErrHeaderTruncated)
			}
			if pos > maxTagBytes {
				return h, merry.Here(ErrMalformedTag).Appendf("tag number exceeds %d bytes", maxTagBytes)
			}
			c := b[pos]
			pos++
			h.Tag = h.Tag<<7 | uint64(c&0x7f)
			if c&0x80 == 0 {
				break
			}
		}
	}

	if pos >= len(b) {
		return h, merry.Here(ErrHeaderTruncated)
	}
	l := b[pos]
	pos++
	switch {
	case l&0x80 == 0:
		h.Length = int(l)
	case l == 0x80:
		h.Length = LengthIndefinite
	default:
		n := int(l & 0x7f)
		if n > maxLengthBytes {
			return h, merry.Here(ErrMalformedLength).Appendf("length field of %d bytes, max is %d", n, maxLengthBytes)
		}
		if pos+n > len(b) {
			return h, merry.Here(ErrHeaderTruncated)
		}
		for _, c := range b[pos : pos+n] {
			h.Length = h.Length<<8 | int(c)
		}
		pos += n
	}
	h.HeaderLen = pos
	return h, nil
}

// TLV is a complete BER encoded tag-length-value, including nested content
// and, for indefinite lengths, the trailing end-of-contents marker.
type TLV []byte

// Header parses the identifier and length octets of t.
func (t TLV) Header() (Header, error) {
	return ParseHeader(t)
}

func (t TLV) Class() Class {
	// don't panic if header is truncated
	if len(t) < 1 {
		return ClassUniversal
	}
	return Class(t[0] >> 6)
}

func (t TLV) Constructed() bool {
	return len(t) > 0 && t[0]&0x20 != 0
}

// TagNumber returns the tag number, or 0 if the header is invalid.
func (t TLV) TagNumber() uint64 {
	h, err := t.Header()
	if err != nil {
		return 0
	}
	return h.Tag
}

// Len returns the declared content length, LengthIndefinite, or 0 if the header
// is invalid.
func (t TLV) Len() int {
	h, err := t.Header()
	if err != nil {
		return 0
	}
	return h.Length
}

func (t TLV) HeaderLen() int {
	h, err := t.Header()
	if err != nil {
		return 0
	}
	return h.HeaderLen
}

// IsEOC reports whether t starts with an end-of-contents marker.
func (t TLV) IsEOC() bool {
	return len(t) >= 2 && t[0] == 0 && t[1] == 0
}

// FullLen returns the number of bytes of the whole encoding, including header and,
// for indefinite lengths, the end-of-contents marker.  It returns -1 if t is
// truncated or malformed.
func (t TLV) FullLen() int {
	l, err := t.fullLen(0)
	if err != nil {
		return -1
	}
	return l
}

func (t TLV) fullLen(depth int) (int, error) {
	h, err := t.Header()
	if err != nil {
		return 0, err
	}
	if h.Length != LengthIndefinite {
		if len(t) < h.HeaderLen+h.Length {
			return 0, merry.Here(ErrValueTruncated)
		}
		return h.HeaderLen + h.Length, nil
	}
	if depth > maxNesting {
		return 0, merry.Here(ErrMalformedLength).Append("indefinite lengths nested too deep")
	}
	pos := h.HeaderLen
	for {
		inner := t[pos:]
		if len(inner) < 2 {
			return 0, merry.Here(ErrValueTruncated)
		}
		if inner.IsEOC() {
			return pos + 2, nil
		}
		n, err := inner.fullLen(depth + 1)
		if err != nil {
			return 0, err
		}
		pos += n
	}
}

// maxNesting bounds the recursion on nested indefinite lengths.
const maxNesting = 256

// Content returns the content octets of t.  For indefinite lengths the end-of-contents
// marker is excluded.  Truncated values return as much content as is present.
func (t TLV) Content() []byte {
	h, err := t.Header()
	if err != nil {
		return nil
	}
	end := len(t)
	if h.Length == LengthIndefinite {
		if fl := t.FullLen(); fl >= 0 {
			end = fl - 2
		}
	} else if h.HeaderLen+h.Length < end {
		end = h.HeaderLen + h.Length
	}
	if end <= h.HeaderLen {
		return nil
	}
	return t[h.HeaderLen:end]
}

// Inner returns the first nested TLV of a constructed t, or nil.  Iterate
// the rest with Next.
func (t TLV) Inner() TLV {
	if !t.Constructed() {
		return nil
	}
	c := t.Content()
	if len(c) == 0 {
		return nil
	}
	return TLV(c)
}

// Next returns the TLV following t in the same buffer, or nil when t is the last
// one, or is invalid.
func (t TLV) Next() TLV {
	l := t.FullLen()
	if l < 0 {
		return nil
	}
	n := t[l:]
	if len(n) == 0 {
		return nil
	}
	return n
}

// Valid checks that t is a single complete, well formed encoding.  Trailing bytes
// after the encoding are not checked.
func (t TLV) Valid() error {
	h, err := t.Header()
	if err != nil {
		return err
	}
	if _, err := t.fullLen(0); err != nil {
		return err
	}
	if h.Length == LengthIndefinite && !h.Constructed && !(h.Class == ClassUniversal && (h.Tag == TagBitString || h.Tag == TagOctetString)) {
		return merry.Here(ErrMalformedLength).Append("indefinite length on primitive encoding")
	}
	if h.Constructed || h.Length == LengthIndefinite {
		for n := TLV(t.Content()); len(n) > 0; n = n.Next() {
			if err := n.Valid(); err != nil {
				return merry.Prepend(err, TagString(h.Class, h.Tag))
			}
		}
	}
	return nil
}

func (t TLV) String() string {
	buf := bytes.NewBuffer(nil)
	_ = Print(buf, "", t)
	return buf.String()
}

// Print writes a human readable dump of t to w, one TLV per line, nested TLVs
// indented by a further two spaces.
func Print(w io.Writer, indent string, t TLV) (err error) {
	h, err := t.Header()
	if err != nil {
		_, _ = fmt.Fprintf(w, "%s(%s) %#x", indent, err.Error(), []byte(t))
		return err
	}

	fmt.Fprintf(w, "%s%v", indent, h)

	if err = t.Valid(); err != nil {
		// Something is wrong with the value.  Print the error, and the raw content
		fmt.Fprintf(w, ": (%s) %#x", err.Error(), t.Content())
		return err
	}

	if !h.Constructed && h.Length != LengthIndefinite {
		if c := t.Content(); len(c) > 0 {
			fmt.Fprintf(w, ": %#x", c)
		}
		return nil
	}

	indent += "  "
	for s := TLV(t.Content()); s != nil; s = s.Next() {
		fmt.Fprint(w, "\n")
		if err = Print(w, indent, s); err != nil {
			// an error means we've hit invalid bytes in the stream
			// there are no markers to pick back up again, so we have to give up
			return
		}
	}
	return nil
}
