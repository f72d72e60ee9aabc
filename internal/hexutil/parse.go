package hexutil

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
)

var ErrInvalidHexString = errors.New("invalid hex string")

// ParseUint parses an unsigned integer from a string.  The string
// may be a number, or a hex string, prefixed with "0x".
func ParseUint(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return 0, merry.Here(ErrInvalidHexString).WithCause(err)
		}
		if len(b) > 8 {
			return 0, merry.Here(ErrInvalidHexString).Append("must be max 8 bytes (16 hex characters)")
		}
		var v uint64
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		return v, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// DecodeString decodes hex, ignoring any characters which aren't hex digits, so
// annotated dumps like "30 06 | 02 01 01" can be decoded directly.  A leading
// "0x" is ignored as well.
func DecodeString(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	// strip non hex bytes
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		case r >= 'a' && r <= 'f':
		default:
			return -1 // drop
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, merry.Here(ErrInvalidHexString).WithCause(err)
	}
	return b, nil
}

// MustDecodeString is like DecodeString, but panics on error.  Intended for tests
// and literals.
func MustDecodeString(s string) []byte {
	b, err := DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
