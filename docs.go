// Package asn1stream reads streams of BER and DER encoded ASN.1 values incrementally.
//
// Features
//
// Reader: Turns a byte stream into a sequence of tlv.Events: one per complete
// top-level value, plus begin/end markers around the outermost SEQUENCE when
// sequence stripping is enabled.  Values are decoded with a pluggable
// tlv.ValueDecoder, ber.DefaultDecoder by default.
//
// Delivery modes: A Reader over a PushSource is driven by the producer's writes,
// on the producer's goroutine.  A Reader with an OnEvent callback (or the
// Background option) runs a goroutine which reads the stream and delivers events.
// Otherwise, the consumer drives the Reader by polling with ReadEvent or
// ReadEventTimeout.
//
// Server: A TCP/TLS server which runs a background Reader per connection and hands
// the events to an EventHandler.
//
// The wire level parsing lives in the tlv package, value decoding in the ber package.
package asn1stream
