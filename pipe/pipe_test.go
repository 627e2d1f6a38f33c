package pipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNonBlockingReadOnEmptyReturnsEAgain(t *testing.T) {
	p := New(16)
	buf := make([]byte, 4)
	n, err := p.Read(buf, false)
	require.Equal(t, 0, n)
	require.Equal(t, "EAGAIN", err.String())
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	p := New(16)
	n, err := p.Write([]byte("hi"), true)
	require.True(t, err.Ok())
	require.Equal(t, 2, n)

	buf := make([]byte, 16)
	n, err = p.Read(buf, false)
	require.True(t, err.Ok())
	require.Equal(t, "hi", string(buf[:n]))
}

func TestBlockingReadWakesOnWrite(t *testing.T) {
	p := New(16)
	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := p.Read(buf, true)
		if !err.Ok() {
			done <- ""
			return
		}
		done <- string(buf[:n])
	}()

	time.Sleep(10 * time.Millisecond)
	_, werr := p.Write([]byte("later"), true)
	require.True(t, werr.Ok())

	select {
	case got := <-done:
		require.Equal(t, "later", got)
	case <-time.After(time.Second):
		t.Fatal("blocking read never woke up")
	}
}

func TestReadAfterWriterClosedReturnsEOF(t *testing.T) {
	p := New(16)
	p.CloseWriter()
	buf := make([]byte, 4)
	n, err := p.Read(buf, true)
	require.True(t, err.Ok())
	require.Equal(t, 0, n)
}
