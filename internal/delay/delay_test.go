package delay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func block(n int, v float32) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestBoundRespectedAfterPush(t *testing.T) {
	// §8 invariant 5: at all times after any producer push, size <= 100*blockSamples.
	b := New(960)
	for i := 0; i < 200; i++ {
		b.Push(block(960, float32(i)), 960)
		require.LessOrEqual(t, b.Len(), b.Capacity())
	}
}

func TestHeadDropKeepsFreshest(t *testing.T) {
	b := New(10)
	for i := 0; i < 150; i++ {
		b.Push(block(10, float32(i)), 10)
	}
	require.LessOrEqual(t, b.Len(), b.Capacity())

	dst := make([]float32, 10)
	b.Pop(dst)
	require.NotEqual(t, float32(0), dst[0])
}

func TestUnderrunFillsSilence(t *testing.T) {
	b := New(960)
	dst := make([]float32, 960)
	real := b.Pop(dst)
	require.Equal(t, 0, real)
	for _, s := range dst {
		require.Equal(t, float32(0), s)
	}
	require.Equal(t, int64(1), b.Underruns())
}

func TestPopDrainsExactCountWithPartialDeficit(t *testing.T) {
	b := New(960)
	b.Push(block(5, 1.0), 960)

	dst := make([]float32, 10)
	real := b.Pop(dst)
	require.Equal(t, 5, real)
	for i := 0; i < 5; i++ {
		require.Equal(t, float32(1.0), dst[i])
	}
	for i := 5; i < 10; i++ {
		require.Equal(t, float32(0), dst[i])
	}
}
