package ber

import (
	"bytes"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/gemalto/asn1stream/tlv"
)

// maxJSONInt is the largest integer JSON numbers represent exactly.  Larger integers
// are written as hex strings.
var maxJSONInt = big.NewInt(1 << 53)

// Object is one decoded BER value.
//
// Value holds the Go representation of primitive and string values:
//
//	| ASN.1 type                     | Go type               |
//	| ------------------------------ | --------------------- |
//	| BOOLEAN                        | bool                  |
//	| INTEGER, ENUMERATED            | *big.Int              |
//	| BIT STRING                     | asn1.BitString        |
//	| OCTET STRING                   | []byte                |
//	| NULL                           | nil                   |
//	| OBJECT IDENTIFIER, RELATIVE-OID | asn1.ObjectIdentifier |
//	| character string types         | string                |
//	| UTCTime, GeneralizedTime       | time.Time             |
//
// Values of other primitive types, including all non-universal primitive values,
// are the raw content bytes.  Constructed values have Children instead, except
// segmented strings, which are reassembled into Value.
type Object struct {
	Class       tlv.Class
	Tag         uint64
	Constructed bool
	// Raw is the complete encoding of the object.
	Raw      tlv.TLV
	Value    interface{}
	Children []*Object
}

// TypeName returns the universal type name, or "[Class n]" for other classes.
func (o *Object) TypeName() string {
	return tlv.TagString(o.Class, o.Tag)
}

func (o *Object) String() string {
	buf := bytes.NewBuffer(nil)
	Print(buf, "", o)
	return buf.String()
}

// FormatValue formats the value of o for humans.  It returns "" for objects with
// children, and for NULL.
func (o *Object) FormatValue() string {
	switch v := o.Value.(type) {
	case nil:
		return ""
	case []byte:
		return fmt.Sprintf("%#x", v)
	case string:
		return fmt.Sprintf("%q", v)
	case *big.Int:
		return v.String()
	case asn1.BitString:
		return fmt.Sprintf("%#x (%d bits)", v.Bytes, v.BitLength)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(o.Value)
}

// Print writes o to w, one value per line, children indented by a further two
// spaces.
func Print(w io.Writer, indent string, o *Object) {
	fmt.Fprintf(w, "%s%s", indent, o.TypeName())
	if v := o.FormatValue(); v != "" {
		fmt.Fprintf(w, ": %s", v)
	}
	for _, c := range o.Children {
		fmt.Fprint(w, "\n")
		Print(w, indent+"  ", c)
	}
}

// MarshalJSON encodes o as {"tag":<type name>,"value":<value>}.  Constructed values
// have an array of children as value.
func (o *Object) MarshalJSON() ([]byte, error) {
	var sb strings.Builder

	sb.WriteString(`{"tag":`)
	name, err := json.Marshal(o.TypeName())
	if err != nil {
		return nil, err
	}
	sb.Write(name)
	sb.WriteString(`,"value":`)

	if o.Constructed && o.Value == nil {
		sb.WriteString("[")
		for i, c := range o.Children {
			if i > 0 {
				sb.WriteString(",")
			}
			v, err := c.MarshalJSON()
			if err != nil {
				return nil, err
			}
			sb.Write(v)
		}
		sb.WriteString("]}")
		return []byte(sb.String()), nil
	}

	switch v := o.Value.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if v {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case *big.Int:
		if v.CmpAbs(maxJSONInt) < 0 {
			sb.WriteString(v.String())
		} else {
			sb.WriteString(`"0x`)
			sb.WriteString(hex.EncodeToString(o.Raw.Content()))
			sb.WriteString(`"`)
		}
	case []byte:
		sb.WriteString(`"`)
		sb.WriteString(hex.EncodeToString(v))
		sb.WriteString(`"`)
	case asn1.BitString:
		fmt.Fprintf(&sb, `{"bits":%d,"bytes":"%s"}`, v.BitLength, hex.EncodeToString(v.Bytes))
	case asn1.ObjectIdentifier:
		sb.WriteString(`"`)
		sb.WriteString(v.String())
		sb.WriteString(`"`)
	case time.Time:
		val, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		sb.Write(val)
	default:
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		sb.Write(val)
	}

	sb.WriteString(`}`)
	return []byte(sb.String()), nil
}
