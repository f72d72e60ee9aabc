// Package ber decodes complete BER and DER encoded values into Object trees.
//
// Decoder implements tlv.ValueDecoder, so it can be plugged into a tlv.Tokenizer
// or an asn1stream.Reader, which use DefaultDecoder unless configured otherwise.
// Universal types are mapped to Go types as listed on Object.  Values of other
// classes are kept as raw content bytes or, when constructed, decoded into
// children, since their meaning depends on the ASN.1 module defining them.
package ber
