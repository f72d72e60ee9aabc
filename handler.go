package asn1stream

import (
	"context"
	"crypto/tls"

	"github.com/gemalto/asn1stream/tlv"
	"github.com/gemalto/flume"
)

// ConnInfo describes the connection a Server decodes events from.
type ConnInfo struct {
	// ID is a unique correlation id, which is also attached to the logger of
	// the connection's context.
	ID         string
	RemoteAddr string
	LocalAddr  string
	TLS        *tls.ConnectionState
}

// EventHandler receives the events decoded from a Server connection, in order, on
// the connection's reading goroutine.  The context carries the connection's
// logger, available with flume.FromContext.
type EventHandler interface {
	HandleEvent(ctx context.Context, conn *ConnInfo, ev *tlv.Event)
}

type HandlerFunc func(context.Context, *ConnInfo, *tlv.Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, conn *ConnInfo, ev *tlv.Event) {
	f(ctx, conn, ev)
}

// LogHandler logs every event.  It's the handler of a Server without one.
var LogHandler = HandlerFunc(func(ctx context.Context, conn *ConnInfo, ev *tlv.Event) {
	logger := flume.FromContext(ctx)
	switch ev.Type {
	case tlv.EventObject:
		h, _ := ev.Raw.Header()
		args := []interface{}{"header", h.String(), "len", len(ev.Raw)}
		if ev.Value != nil {
			args = append(args, "value", ev.Value)
		}
		if ev.Err != nil {
			args = append(args, "err", ev.Err)
		}
		logger.Info("object", args...)
	case tlv.EventBeginSequence, tlv.EventEndSequence:
		logger.Info("sequence", "event", ev.Type.String(), "indefinite", ev.Sequence.Indefinite, "len", ev.Sequence.TotalLength)
	case tlv.EventEOF:
		if ev.Err != nil {
			logger.Info("stream truncated", "err", ev.Err)
			return
		}
		logger.Debug("end of stream")
	default:
		logger.Debug(ev.Type.String())
	}
})
