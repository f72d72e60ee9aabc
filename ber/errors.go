package ber

import (
	"errors"

	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream/tlv"
)

// ErrSyntax is returned when the content of a TLV doesn't follow the encoding rules
// of its universal type, e.g. a BOOLEAN with two content bytes.
var ErrSyntax = errors.New("ber syntax error")

// ErrTruncated is returned when the bytes handed to the decoder end before the
// encoding they start with.
var ErrTruncated = errors.New("ber encoding truncated")

type errKey int

const (
	errorKeyTag errKey = iota
)

func init() {
	merry.RegisterDetail("Tag", errorKeyTag)
}

// ErrorTag returns the tag of the value which failed to decode, formatted like
// tlv.TagString, or "" if err carries no tag.
func ErrorTag(err error) string {
	s, _ := merry.Value(err, errorKeyTag).(string)
	return s
}

func syntaxError(class tlv.Class, tag uint64, format string, args ...interface{}) merry.Error {
	s := tlv.TagString(class, tag)
	return merry.WrapSkipping(ErrSyntax, 1).
		WithValue(errorKeyTag, s).
		Appendf(s+": "+format, args...)
}
