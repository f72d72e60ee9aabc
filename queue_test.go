package asn1stream

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueStream(t *testing.T) {
	q := NewQueueStream()
	assert.True(t, q.Offer([]byte{1, 2, 3}))
	n, err := q.Write([]byte{4, 5})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 5, q.Available())

	buf := make([]byte, 4)
	n, err = q.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Close())
	assert.True(t, q.Closed())
	assert.False(t, q.Ended())
	assert.False(t, q.Offer([]byte{6}))
	_, err = q.Write([]byte{6})
	assert.True(t, Is(err, ErrClosed))

	// drains before reporting the end
	n, err = q.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, buf[:n])
	assert.True(t, q.Ended())
	_, err = q.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestQueueStream_offerCopies(t *testing.T) {
	q := NewQueueStream()
	p := []byte{1, 2}
	q.Offer(p)
	p[0] = 9
	b, err := io.ReadAll(io.LimitReader(q, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
}

func TestQueueStream_blockingRead(t *testing.T) {
	q := NewQueueStream()
	read := make(chan []byte)
	go func() {
		buf := make([]byte, 8)
		n, _ := q.Read(buf)
		read <- buf[:n]
	}()

	select {
	case <-read:
		t.Fatal("read should block until bytes are offered")
	case <-time.After(20 * time.Millisecond):
	}

	q.Offer([]byte{7})
	select {
	case b := <-read:
		assert.Equal(t, []byte{7}, b)
	case <-time.After(time.Second):
		t.Fatal("read not woken by offer")
	}
}

func TestQueueStream_CloseWithError(t *testing.T) {
	q := NewQueueStream()
	boom := errors.New("boom")
	q.Offer([]byte{1})
	require.NoError(t, q.CloseWithError(boom))
	// closing twice is a no-op
	require.NoError(t, q.Close())

	b, err := io.ReadAll(q)
	assert.Equal(t, boom, err)
	assert.Equal(t, []byte{1}, b)
}
