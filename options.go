package asn1stream

import (
	"time"

	"github.com/gemalto/asn1stream/ber"
	"github.com/gemalto/asn1stream/tlv"
	"github.com/gemalto/flume"
)

var log = flume.New("asn1stream")

const (
	DefaultQueueSize      = 64
	DefaultReadBufferSize = 4096
	DefaultPollInterval   = 10 * time.Millisecond
)

// Options configure a Reader.  A nil *Options, and zero values of the fields,
// select the defaults.
type Options struct {
	// StripSequence reports the outermost constructed value as a pair of
	// EventBeginSequence/EventEndSequence markers around its children, instead
	// of as one object.
	StripSequence bool

	// OnEvent receives every event, in order.  Setting it selects callback
	// delivery: the polling methods of the Reader return ErrCallbackMode.
	//
	// For a Reader over a PushSource, OnEvent is called on the goroutine writing
	// to the source, before the write returns.  Otherwise, it's called from the
	// Reader's background goroutine, and must not call Reader.Close.
	OnEvent func(ev *tlv.Event)

	// OnError receives errors which stop a background Reader.
	OnError func(err error)

	// Decoder decodes each emitted value.  Defaults to ber.DefaultDecoder.
	Decoder tlv.ValueDecoder

	// Background runs a background goroutine even without OnEvent.  The
	// goroutine stays at most QueueSize events ahead of the consumer.
	Background bool

	// QueueSize bounds the events a background Reader queues for polling.
	QueueSize int

	// ReadBufferSize is the size of the chunks a background Reader reads.
	ReadBufferSize int

	// PollInterval is how long ReadEventTimeout sleeps between polls of a pull
	// mode Reader.
	PollInterval time.Duration

	// Logger defaults to a logger named "asn1stream".
	Logger flume.Logger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Decoder == nil {
		opts.Decoder = ber.DefaultDecoder
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log
	}
	return opts
}
