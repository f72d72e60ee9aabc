package asn1stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gemalto/asn1stream/ber"
	"github.com/gemalto/asn1stream/internal/hexutil"
	"github.com/gemalto/asn1stream/tlv"
	"github.com/gemalto/flume/flumetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func init() {
	flumetest.SetDefaults()
}

func hex2bytes(s string) []byte {
	return hexutil.MustDecodeString(s)
}

// summary reduces an event to a comparable string.
func summary(ev *tlv.Event) string {
	s := ev.Type.String()
	if len(ev.Raw) > 0 {
		s += " " + hex.EncodeToString(ev.Raw)
	}
	if ev.Sequence != nil {
		s += fmt.Sprintf(" %v/%d", ev.Sequence.Indefinite, ev.Sequence.TotalLength)
	}
	if ev.Err != nil {
		s += " err"
	}
	return s
}

func summaries(events []*tlv.Event) []string {
	s := []string{}
	for _, ev := range events {
		s = append(s, summary(ev))
	}
	return s
}

// drain polls r until the end of the stream.
func drain(t *testing.T, r *Reader, nonBlocking bool) []*tlv.Event {
	t.Helper()
	var events []*tlv.Event
	deadline := time.Now().Add(5 * time.Second)
	for !r.IsEndOfStream() {
		require.True(t, time.Now().Before(deadline), "stream didn't end")
		ev, err := r.ReadEvent(nonBlocking)
		require.NoError(t, err)
		if ev == nil {
			if nonBlocking {
				time.Sleep(time.Millisecond)
			}
			continue
		}
		events = append(events, ev)
	}
	return events
}

// writeChunks writes p to w in chunks of n bytes, then closes w.
func writeChunks(w io.WriteCloser, p []byte, n int) {
	for len(p) > 0 {
		if n > len(p) {
			n = len(p)
		}
		if _, err := w.Write(p[:n]); err != nil {
			return
		}
		p = p[n:]
	}
	_ = w.Close()
}

// collector gathers the events delivered to a callback.
type collector struct {
	mu     sync.Mutex
	events []*tlv.Event
	eof    chan struct{}
}

func newCollector() *collector {
	return &collector{eof: make(chan struct{})}
}

func (c *collector) onEvent(ev *tlv.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if ev.Type == tlv.EventEOF {
		close(c.eof)
	}
}

func (c *collector) wait(t *testing.T) []*tlv.Event {
	t.Helper()
	select {
	case <-c.eof:
	case <-time.After(5 * time.Second):
		t.Fatal("no EOF event")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tlv.Event(nil), c.events...)
}

const testStream = "30 06 02 01 01 02 01 02  04 03 41 42 43  30 80 05 00 00 00"

// readAll reads the whole of in with each delivery mode.
var modes = []struct {
	name string
	read func(t *testing.T, in []byte, opts Options) []*tlv.Event
}{
	{
		name: "pull",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			r, err := NewReader(bytes.NewReader(in), &opts)
			require.NoError(t, err)
			defer r.Close()
			return drain(t, r, false)
		},
	},
	{
		name: "pullnonblocking",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			r, err := NewReader(bytes.NewReader(in), &opts)
			require.NoError(t, err)
			defer r.Close()
			return drain(t, r, true)
		},
	},
	{
		name: "pullpipe",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			pr, pw := io.Pipe()
			go writeChunks(pw, in, 3)
			r, err := NewReader(pr, &opts)
			require.NoError(t, err)
			defer r.Close()
			return drain(t, r, false)
		},
	},
	{
		name: "pullpipenonblocking",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			pr, pw := io.Pipe()
			go writeChunks(pw, in, 2)
			r, err := NewReader(pr, &opts)
			require.NoError(t, err)
			defer r.Close()
			return drain(t, r, true)
		},
	},
	{
		name: "push",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			src := NewPushSource()
			r, err := NewReader(src, &opts)
			require.NoError(t, err)
			defer r.Close()
			for _, b := range in {
				require.NoError(t, src.WriteByte(b))
			}
			require.NoError(t, src.Close())
			return drain(t, r, true)
		},
	},
	{
		name: "pushcallback",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			c := newCollector()
			opts.OnEvent = c.onEvent
			src := NewPushSource()
			r, err := NewReader(src, &opts)
			require.NoError(t, err)
			defer r.Close()
			_, err = src.Write(in)
			require.NoError(t, err)
			require.NoError(t, src.Close())
			return c.wait(t)
		},
	},
	{
		name: "background",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			pr, pw := io.Pipe()
			go writeChunks(pw, in, 5)
			opts.Background = true
			opts.QueueSize = 1
			r, err := NewReader(pr, &opts)
			require.NoError(t, err)
			defer r.Close()
			return drain(t, r, false)
		},
	},
	{
		name: "backgroundcallback",
		read: func(t *testing.T, in []byte, opts Options) []*tlv.Event {
			c := newCollector()
			opts.OnEvent = c.onEvent
			opts.ReadBufferSize = 4
			r, err := NewReader(bytes.NewReader(in), &opts)
			require.NoError(t, err)
			defer r.Close()
			return c.wait(t)
		},
	},
}

func TestReader(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name  string
		in    string
		strip bool
		exp   []string
	}{
		{
			name: "objects",
			in:   testStream,
			exp: []string{
				"OBJECT 3006020101020102",
				"OBJECT 0403414243",
				"OBJECT 308005000000",
				"EOF",
			},
		},
		{
			name:  "stripped",
			in:    testStream,
			strip: true,
			exp: []string{
				"BEGIN_SEQUENCE 3006 false/8",
				"OBJECT 020101",
				"OBJECT 020102",
				"END_SEQUENCE false/8",
				"OBJECT 0403414243",
				"BEGIN_SEQUENCE 3080 true/0",
				"OBJECT 0500",
				"END_SEQUENCE 0000 true/6",
				"EOF",
			},
		},
		{
			name: "empty",
			in:   "",
			exp:  []string{"EOF"},
		},
		{
			name: "truncated",
			in:   "02 01 01 30 06 02 01",
			exp:  []string{"OBJECT 020101", "EOF err"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := hex2bytes(tc.in)
			for _, m := range modes {
				t.Run(m.name, func(t *testing.T) {
					events := m.read(t, in, Options{StripSequence: tc.strip})
					assert.Equal(t, tc.exp, summaries(events))
				})
			}
		})
	}
}

func TestReader_values(t *testing.T) {
	r, err := NewReader(bytes.NewReader(hex2bytes("02 01 2A 0C 02 68 69")), nil)
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.ReadEvent(false)
	require.NoError(t, err)
	require.IsType(t, &ber.Object{}, ev.Value)
	assert.Equal(t, "42", ev.Value.(*ber.Object).FormatValue())

	ev, err = r.ReadEvent(false)
	require.NoError(t, err)
	assert.Equal(t, "hi", ev.Value.(*ber.Object).Value)
}

func TestReader_truncatedEOF(t *testing.T) {
	r, err := NewReader(bytes.NewReader(hex2bytes("30 80 02 01 01")), nil)
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.ReadEvent(false)
	require.NoError(t, err)
	assert.Equal(t, tlv.EventEOF, ev.Type)
	assert.True(t, Is(ev.Err, ErrUnexpectedEOD))
	assert.True(t, r.IsEndOfStream())

	// EOF is delivered once
	ev, err = r.ReadEvent(false)
	require.NoError(t, err)
	assert.Nil(t, ev)
	ev, err = r.ReadEventTimeout(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestReader_decodeFailure(t *testing.T) {
	failNull := tlv.DecoderFunc(func(raw tlv.TLV) (interface{}, error) {
		if raw.TagNumber() == tlv.TagNull {
			return nil, errors.New("no nulls")
		}
		return raw.TagNumber(), nil
	})

	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			events := m.read(t, hex2bytes("05 00 02 01 01"), Options{Decoder: failNull})
			require.Len(t, events, 3)
			assert.True(t, Is(events[0].Err, ErrDecodeFailure))
			assert.Nil(t, events[0].Value)
			// the stream goes on
			assert.NoError(t, events[1].Err)
			assert.Equal(t, tlv.TagInteger, events[1].Value)
			assert.Equal(t, tlv.EventEOF, events[2].Type)
		})
	}
}

func TestReader_malformed(t *testing.T) {
	defer goleak.VerifyNone(t)
	in := hex2bytes("05 00 02 80 01 01 00 00")

	t.Run("pull", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader(in), nil)
		require.NoError(t, err)
		defer r.Close()

		ev, err := r.ReadEvent(false)
		require.NoError(t, err)
		assert.Equal(t, "OBJECT 0500", summary(ev))

		_, err = r.ReadEvent(false)
		assert.True(t, Is(err, ErrMalformedLength))
		_, err = r.ReadEvent(true)
		assert.True(t, Is(err, ErrMalformedLength))
		assert.True(t, Is(r.Err(), ErrMalformedLength))
		assert.True(t, r.IsEndOfStream())
	})

	t.Run("background", func(t *testing.T) {
		errs := make(chan error, 1)
		r, err := NewReader(bytes.NewReader(in), &Options{
			Background: true,
			OnError:    func(err error) { errs <- err },
		})
		require.NoError(t, err)
		defer r.Close()

		select {
		case err := <-errs:
			assert.True(t, Is(err, ErrMalformedLength))
		case <-time.After(5 * time.Second):
			t.Fatal("OnError not called")
		}

		ev, err := r.ReadEvent(false)
		require.NoError(t, err)
		assert.Equal(t, "OBJECT 0500", summary(ev))
		_, err = r.ReadEvent(false)
		assert.True(t, Is(err, ErrMalformedLength))
		assert.True(t, r.IsEndOfStream())
	})
}

func TestReader_ReadEventTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, background := range []bool{false, true} {
		t.Run(fmt.Sprintf("background=%v", background), func(t *testing.T) {
			pr, pw := io.Pipe()
			r, err := NewReader(pr, &Options{Background: background, PollInterval: time.Millisecond})
			require.NoError(t, err)
			defer r.Close()

			start := time.Now()
			ev, err := r.ReadEventTimeout(context.Background(), 20*time.Millisecond)
			require.NoError(t, err)
			assert.Nil(t, ev)
			assert.GreaterOrEqual(t, int64(time.Since(start)), int64(20*time.Millisecond))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = r.ReadEventTimeout(ctx, time.Second)
			assert.True(t, Is(err, ErrWaitCancelled))

			// cancelling a pending wait unblocks it long before its deadline
			ctx, cancel = context.WithCancel(context.Background())
			time.AfterFunc(20*time.Millisecond, cancel)
			start = time.Now()
			ev, err = r.ReadEventTimeout(ctx, 5*time.Second)
			assert.Nil(t, ev)
			assert.True(t, Is(err, ErrWaitCancelled), "expected cancelled, got %v", err)
			assert.Less(t, int64(time.Since(start)), int64(time.Second))

			go func() { _, _ = pw.Write(hex2bytes("02 01 07")) }()
			ev, err = r.ReadEventTimeout(context.Background(), 5*time.Second)
			require.NoError(t, err)
			require.NotNil(t, ev)
			assert.Equal(t, "OBJECT 020107", summary(ev))

			ev, err = r.ReadEventTimeout(context.Background(), 0)
			require.NoError(t, err)
			assert.Nil(t, ev)
		})
	}
}

func TestReader_callbackMode(t *testing.T) {
	c := newCollector()
	src := NewPushSource()
	r, err := NewReader(src, &Options{OnEvent: c.onEvent})
	require.NoError(t, err)

	_, err = r.ReadEvent(true)
	assert.True(t, Is(err, ErrCallbackMode))
	_, err = r.ReadEventTimeout(context.Background(), time.Millisecond)
	assert.True(t, Is(err, ErrCallbackMode))
	_, err = r.Buffered()
	assert.True(t, Is(err, ErrCallbackMode))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	// one CLOSE, even if closed twice
	assert.Equal(t, []string{"CLOSE"}, summaries(c.events))
}

func TestReader_Buffered(t *testing.T) {
	src := NewPushSource()
	r, err := NewReader(src, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = src.Write(hex2bytes(testStream))
	require.NoError(t, err)
	n, err := r.Buffered()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, r.IsEndOfStream())

	require.NoError(t, src.Close())
	n, _ = r.Buffered()
	assert.Equal(t, 4, n)
	assert.False(t, r.IsEndOfStream())

	events := drain(t, r, true)
	assert.Len(t, events, 4)
	n, _ = r.Buffered()
	assert.Zero(t, n)
}

func TestReader_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("background", func(t *testing.T) {
		pr, _ := io.Pipe()
		c := newCollector()
		r, err := NewReader(pr, &Options{OnEvent: c.onEvent})
		require.NoError(t, err)

		// interrupts the blocked read, and joins the goroutine
		require.NoError(t, r.Close())
		assert.Equal(t, []string{"CLOSE"}, summaries(c.events))
	})

	t.Run("pull", func(t *testing.T) {
		pr, _ := io.Pipe()
		r, err := NewReader(pr, nil)
		require.NoError(t, err)
		require.NoError(t, r.Close())

		_, err = r.ReadEvent(true)
		assert.True(t, Is(err, ErrClosed))
		_, err = r.ReadEventTimeout(context.Background(), time.Second)
		assert.True(t, Is(err, ErrClosed))
	})

	t.Run("unblocksWaiter", func(t *testing.T) {
		pr, _ := io.Pipe()
		r, err := NewReader(pr, &Options{Background: true})
		require.NoError(t, err)

		errs := make(chan error)
		go func() {
			_, err := r.ReadEvent(false)
			errs <- err
		}()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, r.Close())

		select {
		case err := <-errs:
			assert.True(t, Is(err, ErrClosed))
		case <-time.After(5 * time.Second):
			t.Fatal("waiter not woken by Close")
		}
	})

	t.Run("unblocksPullWaiter", func(t *testing.T) {
		pr, pw := io.Pipe()
		r, err := NewReader(pr, nil)
		require.NoError(t, err)

		// half a TLV, so the pending read can't complete
		_, err = pw.Write(hex2bytes("30 06 02 01"))
		require.NoError(t, err)

		type result struct {
			ev  *tlv.Event
			err error
		}
		results := make(chan result)
		go func() {
			ev, err := r.ReadEvent(false)
			results <- result{ev, err}
		}()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, r.Close())

		select {
		case res := <-results:
			assert.Nil(t, res.ev)
			assert.True(t, Is(res.err, ErrClosed), "expected closed, got %v", res.err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter not woken by Close")
		}
		assert.False(t, r.IsEndOfStream())
	})

	t.Run("closesSource", func(t *testing.T) {
		q := NewQueueStream()
		r, err := NewReader(q, nil)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.True(t, q.Closed())
	})
}

func TestNewReader(t *testing.T) {
	_, err := NewReader(nil, nil)
	assert.Error(t, err)
}

func TestNewReader_polledDirectly(t *testing.T) {
	in := hex2bytes("02 01 01 05 00")
	tests := []struct {
		name   string
		r      io.Reader
		pumped bool
	}{
		{name: "bytesReader", r: bytes.NewReader(in)},
		{name: "bytesBuffer", r: bytes.NewBuffer(in)},
		{name: "bufioReader", r: bufio.NewReader(bytes.NewReader(in))},
		{name: "multiReader", r: io.MultiReader(bytes.NewReader(in)), pumped: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewReader(tc.r, nil)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, tc.pumped, r.pump != nil)
			assert.Equal(t, []string{"OBJECT 020101", "OBJECT 0500", "EOF"}, summaries(drain(t, r, false)))
		})
	}
}
