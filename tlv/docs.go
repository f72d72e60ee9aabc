// Package tlv tokenizes BER and DER encoded ASN.1 streams.
//
// The core representation of an encoded value is the tlv.TLV type, a []byte holding
// one complete tag-length-value, nested content and end-of-contents markers included.
// TLV has accessors for the header fields and for walking nested values, and Print
// dumps a TLV in a human readable form.
//
// Tokenizer is an incremental parser.  It reads from a ByteSource in whatever
// amounts the source has, keeps the state of each open TLV in a stack of frames,
// and turns completed top-level TLVs into Events.  Parsing can stop at any byte
// and resume when more bytes arrive, so the events produced don't depend on how
// the input was split into chunks.
//
// Tokenizers support both the definite and the indefinite length forms, long form
// tags and lengths, and an optional sequence stripping mode, in which the outermost
// constructed TLV is reported as a pair of begin/end markers around its children,
// rather than as one object.
//
// Value decoding is pluggable through the ValueDecoder interface.  The ber package
// provides the default decoder.
package tlv
