package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKernelBufferRoundTrip(t *testing.T) {
	kb := KernelBuffer{Bytes: make([]byte, 16)}
	n, err := kb.WriteFrom([]byte("hello"), 2)
	require.True(t, err.Ok())
	require.Equal(t, 5, n)

	got := make([]byte, 5)
	n, err = kb.ReadTo(got, 2)
	require.True(t, err.Ok())
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(got))
}

func TestSubsetWindows(t *testing.T) {
	kb := KernelBuffer{Bytes: make([]byte, 16)}
	sub := Subset{Inner: kb, Offset: 4, Length: 4}
	_, err := sub.WriteFrom([]byte("abcde"), 0)
	require.False(t, err.Ok())

	n, err := sub.WriteFrom([]byte("abcd"), 0)
	require.True(t, err.Ok())
	require.Equal(t, 4, n)
	require.Equal(t, "abcd", string(kb.Bytes[4:8]))
}

type point struct {
	X, Y int32
}

func TestBitwiseObjectBufferRoundTrip(t *testing.T) {
	var p point
	buf := NewBitwiseObjectBuffer(&p)
	require.EqualValues(t, 8, buf.Size())

	src := point{X: 7, Y: -3}
	srcBuf := NewBitwiseObjectBuffer(&src)
	data := make([]byte, srcBuf.Size())
	n, err := srcBuf.ReadTo(data, 0)
	require.True(t, err.Ok())
	require.EqualValues(t, srcBuf.Size(), n)

	n, err = buf.WriteFrom(data, 0)
	require.True(t, err.Ok())
	require.EqualValues(t, buf.Size(), n)
	require.Equal(t, src, p)
}

func TestIovecBufferSpansSegments(t *testing.T) {
	a := KernelBuffer{Bytes: make([]byte, 4)}
	b := KernelBuffer{Bytes: make([]byte, 4)}
	v := IovecBuffer{Segments: []TransactionalBuffer{a, b}}

	n, err := v.WriteFrom([]byte("abcdefgh"), 0)
	require.True(t, err.Ok())
	require.Equal(t, 8, n)
	require.Equal(t, "abcd", string(a.Bytes))
	require.Equal(t, "efgh", string(b.Bytes))

	got := make([]byte, 8)
	n, err = v.ReadTo(got, 0)
	require.True(t, err.Ok())
	require.Equal(t, 8, n)
	require.Equal(t, "abcdefgh", string(got))
}
