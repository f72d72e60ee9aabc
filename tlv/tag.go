package tlv

import (
	"fmt"
	"strings"

	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream/internal/hexutil"
)

// Class is the two bit tag class from the identifier octet.
type Class byte

const (
	ClassUniversal       Class = 0
	ClassApplication     Class = 1
	ClassContextSpecific Class = 2
	ClassPrivate         Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "Universal"
	case ClassApplication:
		return "Application"
	case ClassContextSpecific:
		return "ContextSpecific"
	case ClassPrivate:
		return "Private"
	}
	return fmt.Sprintf("Class(%d)", byte(c))
}

// Universal tag numbers.  X.690 8.x
const (
	TagEndOfContents    uint64 = 0
	TagBoolean          uint64 = 1
	TagInteger          uint64 = 2
	TagBitString        uint64 = 3
	TagOctetString      uint64 = 4
	TagNull             uint64 = 5
	TagOID              uint64 = 6
	TagObjectDescriptor uint64 = 7
	TagExternal         uint64 = 8
	TagReal             uint64 = 9
	TagEnumerated       uint64 = 10
	TagEmbeddedPDV      uint64 = 11
	TagUTF8String       uint64 = 12
	TagRelativeOID      uint64 = 13
	TagSequence         uint64 = 16
	TagSet              uint64 = 17
	TagNumericString    uint64 = 18
	TagPrintableString  uint64 = 19
	TagT61String        uint64 = 20
	TagVideotexString   uint64 = 21
	TagIA5String        uint64 = 22
	TagUTCTime          uint64 = 23
	TagGeneralizedTime  uint64 = 24
	TagGraphicString    uint64 = 25
	TagVisibleString    uint64 = 26
	TagGeneralString    uint64 = 27
	TagUniversalString  uint64 = 28
	TagBMPString        uint64 = 30
)

// RegisterUniversalTag associates a name with a universal tag number.  The name
// is used by UniversalTagName, and a normalized form of it is accepted by
// ParseUniversalTag.
func RegisterUniversalTag(tag uint64, name string) {
	_TagValueToFullNameMap[tag] = name
	name = hexutil.NormalizeName(name)
	_TagNameToValueMap[name] = tag
	_TagValueToNameMap[tag] = name
}

// UniversalTagName returns the normalized name of a universal tag, e.g. "OctetString".
// Unregistered tags format as "Universal(n)".
func UniversalTagName(tag uint64) string {
	if s, ok := _TagValueToNameMap[tag]; ok {
		return s
	}
	return fmt.Sprintf("Universal(%d)", tag)
}

// UniversalTagFullName returns the name as registered, e.g. "OCTET STRING".
func UniversalTagFullName(tag uint64) string {
	if s, ok := _TagValueToFullNameMap[tag]; ok {
		return s
	}
	return UniversalTagName(tag)
}

// ParseUniversalTag parses a universal tag name ("OCTET STRING", "octetString",
// "OctetString") or a number, decimal or "0x" prefixed hex.
func ParseUniversalTag(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, merry.New("empty tag name")
	}
	if s[0] >= '0' && s[0] <= '9' {
		v, err := hexutil.ParseUint(s)
		if err != nil {
			return 0, merry.Prependf(err, "invalid tag %q", s)
		}
		return v, nil
	}
	if v, ok := _TagNameToValueMap[hexutil.NormalizeName(s)]; ok {
		return v, nil
	}
	return 0, merry.Errorf("invalid tag \"%s\"", s)
}

// TagString formats a class and tag number for humans: universal tags use their
// names, everything else is "[Class n]".
func TagString(class Class, tag uint64) string {
	if class == ClassUniversal {
		return UniversalTagName(tag)
	}
	return fmt.Sprintf("[%v %d]", class, tag)
}

var _TagValueToFullNameMap = map[uint64]string{}
var _TagValueToNameMap = map[uint64]string{}
var _TagNameToValueMap = map[string]uint64{}

func init() {
	m := map[uint64]string{
		TagEndOfContents:    "END OF CONTENTS",
		TagBoolean:          "BOOLEAN",
		TagInteger:          "INTEGER",
		TagBitString:        "BIT STRING",
		TagOctetString:      "OCTET STRING",
		TagNull:             "NULL",
		TagOID:              "OBJECT IDENTIFIER",
		TagObjectDescriptor: "ObjectDescriptor",
		TagExternal:         "EXTERNAL",
		TagReal:             "REAL",
		TagEnumerated:       "ENUMERATED",
		TagEmbeddedPDV:      "EMBEDDED PDV",
		TagUTF8String:       "UTF8String",
		TagRelativeOID:      "RELATIVE-OID",
		TagSequence:         "SEQUENCE",
		TagSet:              "SET",
		TagNumericString:    "NumericString",
		TagPrintableString:  "PrintableString",
		TagT61String:        "T61String",
		TagVideotexString:   "VideotexString",
		TagIA5String:        "IA5String",
		TagUTCTime:          "UTCTime",
		TagGeneralizedTime:  "GeneralizedTime",
		TagGraphicString:    "GraphicString",
		TagVisibleString:    "VisibleString",
		TagGeneralString:    "GeneralString",
		TagUniversalString:  "UniversalString",
		TagBMPString:        "BMPString",
	}
	for tag, name := range m {
		RegisterUniversalTag(tag, name)
	}
}
