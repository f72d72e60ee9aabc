package ber

import (
	"encoding/asn1"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream/tlv"
)

// DefaultMaxDepth is the nesting limit of DefaultDecoder.
const DefaultMaxDepth = 64

// DefaultDecoder is the decoder Readers use unless configured otherwise.
var DefaultDecoder = &Decoder{MaxDepth: DefaultMaxDepth}

// Decoder decodes complete BER encoded TLVs into Object trees.  It implements
// tlv.ValueDecoder.  A Decoder is stateless and safe for concurrent use.
type Decoder struct {
	// MaxDepth bounds the nesting of constructed values.  Zero means DefaultMaxDepth.
	MaxDepth int
}

// DecodeValue implements tlv.ValueDecoder.  The value is always an *Object.
func (d *Decoder) DecodeValue(raw tlv.TLV) (interface{}, error) {
	obj, err := d.Decode(raw)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Decode decodes the TLV at the start of raw.  Bytes following it are ignored.
func (d *Decoder) Decode(raw tlv.TLV) (*Object, error) {
	return d.decode(raw, 0)
}

// Decode decodes raw with the DefaultDecoder.
func Decode(raw []byte) (*Object, error) {
	return DefaultDecoder.Decode(raw)
}

func (d *Decoder) maxDepth() int {
	if d.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return d.MaxDepth
}

func (d *Decoder) decode(raw tlv.TLV, depth int) (*Object, error) {
	h, err := raw.Header()
	if err != nil {
		if merry.Is(err, tlv.ErrHeaderTruncated) {
			return nil, merry.Here(ErrTruncated).WithCause(err)
		}
		return nil, merry.Here(ErrSyntax).WithCause(err)
	}
	n := raw.FullLen()
	if n < 0 {
		return nil, merry.Here(ErrTruncated).WithValue(errorKeyTag, tlv.TagString(h.Class, h.Tag))
	}
	raw = raw[:n]

	if depth > d.maxDepth() {
		return nil, syntaxError(h.Class, h.Tag, "nested more than %d levels deep", d.maxDepth())
	}
	if h.Length == tlv.LengthIndefinite && !h.Constructed &&
		!(h.Class == tlv.ClassUniversal && (h.Tag == tlv.TagBitString || h.Tag == tlv.TagOctetString)) {
		return nil, syntaxError(h.Class, h.Tag, "indefinite length on primitive encoding")
	}

	obj := &Object{
		Class:       h.Class,
		Tag:         h.Tag,
		Constructed: h.Constructed,
		Raw:         raw,
	}

	if h.Class != tlv.ClassUniversal {
		if h.Constructed {
			obj.Children, err = d.children(raw, depth)
			return obj, err
		}
		obj.Value = raw.Content()
		return obj, nil
	}

	switch h.Tag {
	case tlv.TagBitString:
		obj.Value, err = d.bitString(raw, depth)
	case tlv.TagOctetString:
		obj.Value, err = d.segments(raw, h.Tag, depth)
	case tlv.TagUTF8String, tlv.TagNumericString, tlv.TagPrintableString, tlv.TagT61String,
		tlv.TagVideotexString, tlv.TagIA5String, tlv.TagGraphicString, tlv.TagVisibleString,
		tlv.TagGeneralString, tlv.TagUniversalString, tlv.TagBMPString, tlv.TagObjectDescriptor,
		tlv.TagUTCTime, tlv.TagGeneralizedTime:
		var b []byte
		b, err = d.segments(raw, h.Tag, depth)
		if err == nil {
			obj.Value, err = decodeString(h.Tag, b)
		}
	default:
		if h.Constructed {
			obj.Children, err = d.children(raw, depth)
		} else {
			obj.Value, err = decodePrimitive(h.Tag, raw.Content())
		}
	}
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// children decodes the nested TLVs of a constructed raw.
func (d *Decoder) children(raw tlv.TLV, depth int) ([]*Object, error) {
	var children []*Object
	for rest := raw.Content(); len(rest) > 0; {
		n := tlv.TLV(rest).FullLen()
		if n < 0 {
			return nil, syntaxError(raw.Class(), raw.TagNumber(), "content is not a sequence of TLVs")
		}
		child, err := d.decode(rest[:n], depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		rest = rest[n:]
	}
	return children, nil
}

// segments returns the content of a string type.  Constructed strings are the
// concatenation of nested segments carrying the same universal tag.
func (d *Decoder) segments(raw tlv.TLV, tag uint64, depth int) ([]byte, error) {
	if !raw.Constructed() && raw.Len() != tlv.LengthIndefinite {
		return raw.Content(), nil
	}
	if depth > d.maxDepth() {
		return nil, syntaxError(tlv.ClassUniversal, tag, "segments nested more than %d levels deep", d.maxDepth())
	}
	var b []byte
	for rest := raw.Content(); len(rest) > 0; {
		seg := tlv.TLV(rest)
		n := seg.FullLen()
		if n < 0 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "truncated segment")
		}
		if seg.Class() != tlv.ClassUniversal || seg.TagNumber() != tag {
			return nil, syntaxError(tlv.ClassUniversal, tag, "segment with non-matching tag %s", tlv.TagString(seg.Class(), seg.TagNumber()))
		}
		c, err := d.segments(seg[:n], tag, depth+1)
		if err != nil {
			return nil, err
		}
		b = append(b, c...)
		rest = rest[n:]
	}
	return b, nil
}

// bitString decodes a primitive or segmented BIT STRING.  Only the last segment may
// have unused bits.
func (d *Decoder) bitString(raw tlv.TLV, depth int) (asn1.BitString, error) {
	var bs asn1.BitString
	if !raw.Constructed() && raw.Len() != tlv.LengthIndefinite {
		return parseBitString(raw.Content())
	}
	if depth > d.maxDepth() {
		return bs, syntaxError(tlv.ClassUniversal, tlv.TagBitString, "segments nested more than %d levels deep", d.maxDepth())
	}
	for rest := raw.Content(); len(rest) > 0; {
		seg := tlv.TLV(rest)
		n := seg.FullLen()
		if n < 0 {
			return bs, syntaxError(tlv.ClassUniversal, tlv.TagBitString, "truncated segment")
		}
		if seg.Class() != tlv.ClassUniversal || seg.TagNumber() != tlv.TagBitString {
			return bs, syntaxError(tlv.ClassUniversal, tlv.TagBitString, "segment with non-matching tag %s", tlv.TagString(seg.Class(), seg.TagNumber()))
		}
		if bs.BitLength%8 != 0 {
			return bs, syntaxError(tlv.ClassUniversal, tlv.TagBitString, "unused bits in a segment other than the last")
		}
		s, err := d.bitString(seg[:n], depth+1)
		if err != nil {
			return bs, err
		}
		bs.Bytes = append(bs.Bytes, s.Bytes...)
		bs.BitLength += s.BitLength
		rest = rest[n:]
	}
	return bs, nil
}

func parseBitString(c []byte) (asn1.BitString, error) {
	if len(c) == 0 {
		return asn1.BitString{}, syntaxError(tlv.ClassUniversal, tlv.TagBitString, "zero length")
	}
	padding := int(c[0])
	if padding > 7 || len(c) == 1 && padding > 0 {
		return asn1.BitString{}, syntaxError(tlv.ClassUniversal, tlv.TagBitString, "invalid padding bits")
	}
	b := make([]byte, len(c)-1)
	copy(b, c[1:])
	if len(b) > 0 {
		b[len(b)-1] &= ^byte(1<<uint(padding) - 1)
	}
	return asn1.BitString{Bytes: b, BitLength: len(b)*8 - padding}, nil
}

func decodePrimitive(tag uint64, c []byte) (interface{}, error) {
	switch tag {
	case tlv.TagBoolean:
		if len(c) != 1 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "content must be 1 byte, got %d", len(c))
		}
		return c[0] != 0, nil
	case tlv.TagInteger, tlv.TagEnumerated:
		if len(c) == 0 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "zero length")
		}
		return parseBigInt(c), nil
	case tlv.TagNull:
		if len(c) != 0 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "content must be empty, got %d bytes", len(c))
		}
		return nil, nil
	case tlv.TagOID:
		if len(c) == 0 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "zero length")
		}
		return parseOID(tag, c, true)
	case tlv.TagRelativeOID:
		return parseOID(tag, c, false)
	}
	return c, nil
}

// parseBigInt parses two's complement big endian bytes.
func parseBigInt(c []byte) *big.Int {
	ret := new(big.Int)
	if c[0]&0x80 == 0 {
		return ret.SetBytes(c)
	}
	// negative: invert, add one, negate
	notBytes := make([]byte, len(c))
	for i := range notBytes {
		notBytes[i] = ^c[i]
	}
	ret.SetBytes(notBytes)
	ret.Add(ret, big.NewInt(1))
	return ret.Neg(ret)
}

// parseOID decodes base 128 components.  For OBJECT IDENTIFIER the first component
// packs the first two arcs as 40*x+y.
func parseOID(tag uint64, c []byte, absolute bool) (asn1.ObjectIdentifier, error) {
	oid := make(asn1.ObjectIdentifier, 0, len(c)+1)
	var v int
	start := true
	for i, b := range c {
		if start && b == 0x80 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "non-minimal component encoding")
		}
		if v > (1<<31-1)>>7 {
			return nil, syntaxError(tlv.ClassUniversal, tag, "component too large")
		}
		v = v<<7 | int(b&0x7f)
		start = b&0x80 == 0
		if !start {
			if i == len(c)-1 {
				return nil, syntaxError(tlv.ClassUniversal, tag, "truncated component")
			}
			continue
		}
		if absolute && len(oid) == 0 {
			if v < 80 {
				oid = append(oid, v/40, v%40)
			} else {
				oid = append(oid, 2, v-80)
			}
		} else {
			oid = append(oid, v)
		}
		v = 0
	}
	return oid, nil
}

func decodeString(tag uint64, b []byte) (interface{}, error) {
	switch tag {
	case tlv.TagUTF8String:
		if !utf8.Valid(b) {
			return nil, syntaxError(tlv.ClassUniversal, tag, "invalid UTF-8")
		}
		return string(b), nil
	case tlv.TagT61String:
		return decodeLatin1(b)
	case tlv.TagBMPString:
		return decodeBMP(b)
	case tlv.TagUniversalString:
		return decodeUniversal(b)
	case tlv.TagUTCTime:
		t, err := parseUTCTime(string(b))
		if err != nil {
			return nil, syntaxError(tlv.ClassUniversal, tag, "%q: %v", b, err)
		}
		return t, nil
	case tlv.TagGeneralizedTime:
		t, err := parseGeneralizedTime(string(b))
		if err != nil {
			return nil, syntaxError(tlv.ClassUniversal, tag, "%q: %v", b, err)
		}
		return t, nil
	}
	return string(b), nil
}

var utcTimeLayouts = []string{
	"060102150405Z0700",
	"0601021504Z0700",
}

// parseUTCTime parses a UTCTime.  Two digit years from 50 map to 19xx.
func parseUTCTime(s string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range utcTimeLayouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return t, err
	}
	if t.Year() >= 2050 {
		t = t.AddDate(-100, 0, 0)
	}
	return t, nil
}

var generalizedTimeLayouts = []string{
	"20060102150405Z0700",
	"200601021504Z0700",
	"2006010215Z0700",
	// local time, no zone designator
	"20060102150405",
	"200601021504",
	"2006010215",
}

// parseGeneralizedTime parses a GeneralizedTime.  Fractional seconds are accepted
// with either a period or a comma.  Times without zone designator parse as UTC.
func parseGeneralizedTime(s string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range generalizedTimeLayouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return t, err
}
