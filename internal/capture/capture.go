// Package capture produces a lazy sequence of PCM blocks at device rate,
// either from the microphone via PortAudio or from a synthetic sine
// generator. Both sources feed the encoder stage identically.
package capture

import (
	"context"
	"math"

	"github.com/cuervo-blanco/udp-voice/internal/settings"
	"github.com/gordonklaus/portaudio"
)

// Source is anything that can produce PCM blocks on demand. Blocks are
// interleaved float32, length settings.StreamParams.BlockLength().
type Source interface {
	// Next blocks until one PCM block is available, or ctx is done.
	Next(ctx context.Context) ([]float32, error)
	// Close releases any underlying device resources.
	Close() error
}

// SineSource is a synthetic tone generator, useful for testing the send
// path without a microphone.
type SineSource struct {
	params    settings.StreamParams
	frequency float32
	phase     float32
}

// NewSineSource builds a sine generator at frequencyHz.
func NewSineSource(params settings.StreamParams, frequencyHz float32) *SineSource {
	return &SineSource{params: params, frequency: frequencyHz}
}

// Next synthesizes one block of sine samples, repeated across channels.
func (s *SineSource) Next(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	block := make([]float32, s.params.BlockLength())
	increment := 2 * math.Pi * float64(s.frequency) / float64(s.params.SampleRate)

	for i := 0; i < s.params.BlockSamples; i++ {
		sample := float32(math.Sin(float64(s.phase)))
		for c := 0; c < s.params.Channels; c++ {
			block[i*s.params.Channels+c] = sample
		}
		s.phase += float32(increment)
		if s.phase > 2*math.Pi {
			s.phase -= float32(2 * math.Pi)
		}
	}
	return block, nil
}

// Close is a no-op for SineSource; it owns no device.
func (s *SineSource) Close() error { return nil }

// paStream is the subset of *portaudio.Stream the MicSource uses,
// narrowed for testability.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
}

// MicSource captures PCM blocks from a PortAudio input stream.
type MicSource struct {
	stream paStream
	buf    []float32
}

// OpenMicSource opens the default input device at params' rate and block
// size and starts the stream.
func OpenMicSource(params settings.StreamParams) (*MicSource, error) {
	buf := make([]float32, params.BlockLength())
	stream, err := portaudio.OpenDefaultStream(params.Channels, 0, float64(params.SampleRate), params.BlockSamples, buf)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}
	return &MicSource{stream: stream, buf: buf}, nil
}

// Next reads one block from the input device. The read blocks until the
// device delivers a block; ctx is not consulted.
func (m *MicSource) Next(ctx context.Context) ([]float32, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]float32, len(m.buf))
	copy(out, m.buf)
	return out, nil
}

// Close stops and closes the underlying PortAudio stream.
func (m *MicSource) Close() error {
	_ = m.stream.Stop()
	return m.stream.Close()
}
