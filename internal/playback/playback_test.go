package playback

import (
	"testing"

	"github.com/cuervo-blanco/udp-voice/internal/delay"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	writes int
	out    *[]float32
}

func (f *fakeStream) Start() error { return nil }
func (f *fakeStream) Stop() error  { return nil }
func (f *fakeStream) Close() error { return nil }
func (f *fakeStream) Write() error {
	f.writes++
	return nil
}

func TestTickFillsExactRequestedSamples(t *testing.T) {
	buf := delay.New(4)
	buf.Push([]float32{1, 2, 3, 4}, 4)

	out := make([]float32, 4)
	cb := &Callback{stream: &fakeStream{}, buf: buf, out: out}

	require.NoError(t, cb.Tick())
	require.Equal(t, []float32{1, 2, 3, 4}, cb.out)
}

func TestTickSubstitutesSilenceOnUnderrun(t *testing.T) {
	// E5 — underrun: empty delay buffer produces all-zero output, no panic.
	buf := delay.New(4)
	out := make([]float32, 4)
	cb := &Callback{stream: &fakeStream{}, buf: buf, out: out}

	require.NoError(t, cb.Tick())
	for _, s := range cb.out {
		require.Equal(t, float32(0), s)
	}
	require.Equal(t, int64(1), buf.Underruns())
}
