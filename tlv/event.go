package tlv

import (
	"fmt"
	"strings"
)

// EventType identifies what an Event reports.
type EventType int

const (
	// EventClose is delivered to a callback when its reader is closed by its owner.
	EventClose EventType = iota
	// EventEOF reports that the source ended.  It is delivered once.
	EventEOF
	// EventBeginSequence reports the header of a stripped outer sequence.
	EventBeginSequence
	// EventEndSequence reports the end of a stripped outer sequence.
	EventEndSequence
	// EventObject carries one complete, decoded TLV.
	EventObject
)

func (t EventType) String() string {
	switch t {
	case EventClose:
		return "CLOSE"
	case EventEOF:
		return "EOF"
	case EventBeginSequence:
		return "BEGIN_SEQUENCE"
	case EventEndSequence:
		return "END_SEQUENCE"
	case EventObject:
		return "OBJECT"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// SequenceMarker describes a stripped outer sequence.
type SequenceMarker struct {
	// Indefinite is true if the sequence used the indefinite length form.
	Indefinite bool
	// TotalLength is the number of bytes of the whole sequence encoding, header
	// and end-of-contents included.  On a begin marker of an indefinite sequence
	// it is 0, since it isn't known yet.
	TotalLength uint64
}

// Event is one unit of output from a Tokenizer.  Events are never modified after
// they are produced.
type Event struct {
	Type EventType
	// Raw holds the bytes the event corresponds to: the whole TLV for objects,
	// the header for begin markers, the end-of-contents bytes for the end marker
	// of an indefinite sequence.  Nil for CLOSE and EOF.
	Raw TLV
	// Value is the result of the ValueDecoder for objects.
	Value interface{}
	// Sequence is set on begin and end markers.
	Sequence *SequenceMarker
	// Err is set when decoding an object's value failed, or on an EOF event
	// when the source ended inside a TLV.
	Err error
}

func (e *Event) String() string {
	var sb strings.Builder
	sb.WriteString(e.Type.String())
	if e.Sequence != nil {
		fmt.Fprintf(&sb, " indefinite=%v length=%d", e.Sequence.Indefinite, e.Sequence.TotalLength)
	}
	if len(e.Raw) > 0 {
		fmt.Fprintf(&sb, " raw=%x", []byte(e.Raw))
	}
	if e.Value != nil {
		fmt.Fprintf(&sb, " value=%v", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, " err=%v", e.Err)
	}
	return sb.String()
}

// ValueDecoder turns the raw bytes of one complete TLV into a typed value.
type ValueDecoder interface {
	DecodeValue(raw TLV) (interface{}, error)
}

// DecoderFunc adapts a function to the ValueDecoder interface.
type DecoderFunc func(raw TLV) (interface{}, error)

func (f DecoderFunc) DecodeValue(raw TLV) (interface{}, error) {
	return f(raw)
}
