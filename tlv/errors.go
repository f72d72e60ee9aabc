package tlv

import (
	"errors"
)

// ErrMalformedLength is returned when a length field can't be honored: it spans more
// than maxLengthBytes bytes, or an indefinite length is used on a primitive encoding
// which can't be split into segments.  The stream position is no longer trustworthy
// after this error.
var ErrMalformedLength = errors.New("malformed length")

// ErrUnexpectedEOD is returned when a source runs out of bytes inside a TLV.  It is
// distinct from a clean end of stream, which only happens on a TLV boundary.
var ErrUnexpectedEOD = errors.New("unexpected end of data")

// ErrDecodeFailure is the cause attached to Event.Err when the ValueDecoder rejects
// the bytes of a completed TLV.  It only affects that one event.
var ErrDecodeFailure = errors.New("value decode failure")

var ErrHeaderTruncated = errors.New("header truncated")
var ErrValueTruncated = errors.New("value truncated")

// ErrMalformedTag is returned when a long form tag number doesn't fit in 63 bits.
var ErrMalformedTag = errors.New("malformed tag")
