package ber

import (
	"github.com/gemalto/asn1stream/tlv"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// decodeLatin1 decodes a TeletexString.  T.61 is approximated by ISO 8859-1, which
// shares its printable ASCII range.
func decodeLatin1(b []byte) (string, error) {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", syntaxError(tlv.ClassUniversal, tlv.TagT61String, "%v", err)
	}
	return string(s), nil
}

// decodeBMP decodes a BMPString: UCS-2, big endian.
func decodeBMP(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", syntaxError(tlv.ClassUniversal, tlv.TagBMPString, "odd length %d", len(b))
	}
	s, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", syntaxError(tlv.ClassUniversal, tlv.TagBMPString, "%v", err)
	}
	return string(s), nil
}

// decodeUniversal decodes a UniversalString: UCS-4, big endian.
func decodeUniversal(b []byte) (string, error) {
	if len(b)%4 != 0 {
		return "", syntaxError(tlv.ClassUniversal, tlv.TagUniversalString, "length %d not a multiple of 4", len(b))
	}
	s, err := utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", syntaxError(tlv.ClassUniversal, tlv.TagUniversalString, "%v", err)
	}
	return string(s), nil
}
